// Package size parses the byte-size syntax accepted on the command line.
package size

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every error returned from Parse.
var ErrSyntax = errors.New("invalid size")

// suffixes maps each unit letter to its power of 1024.
var suffixes = map[byte]uint{
	'K': 1,
	'M': 2,
	'G': 3,
	'T': 4,
	'P': 5,
	'E': 6,
	'Z': 7,
	'Y': 8,
}

// Parse converts a size such as "512", "64K" or "1G" into bytes.
// The number must be a plain decimal integer, optionally followed by exactly
// one of K, M, G, T, P, E, Z, Y (powers of 1024, matching rsync).
// Values that do not fit in a uint64 saturate at math.MaxUint64.
func Parse(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrSyntax)
	}

	numStr := s
	var power uint
	if p, ok := suffixes[s[len(s)-1]]; ok {
		numStr = s[:len(s)-1]
		power = p
	}

	if numStr == "" || strings.TrimLeft(numStr, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}

	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxUint64, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}

	for i := uint(0); i < power; i++ {
		hi, lo := bits.Mul64(n, 1024)
		if hi != 0 {
			return math.MaxUint64, nil
		}
		n = lo
	}
	return n, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) uint64 {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}
