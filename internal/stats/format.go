package stats

import "fmt"

var sizeUnits = [...]string{"B", "K", "M", "G", "T", "P", "E", "Z", "Y"}

// FormatSize renders a byte count with at most four integer digits,
// dividing by 1024 each time the value reaches 1000.
func FormatSize(num float64) string {
	unit := 0
	for num >= 1000 && unit < len(sizeUnits)-1 {
		num /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", num, sizeUnits[unit])
}
