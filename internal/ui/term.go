package ui

import (
	"os"

	"golang.org/x/term"
)

// Terminal reports whether f is a terminal and, if it is, its width in
// columns (80 when the size cannot be read).
func Terminal(f *os.File) (isTTY bool, width int) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return false, 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return true, 80
	}
	return true, w
}
