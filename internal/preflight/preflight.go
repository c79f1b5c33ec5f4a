// Package preflight validates sources, destination and bucket directory
// before any work starts.
package preflight

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrSourceNotDir   = errors.New("source is not a directory")
	ErrSourceAccess   = errors.New("no access to source directory")
	ErrDestCreate     = errors.New("cannot create destination directory")
	ErrDestIsFile     = errors.New("destination already exists and is a file")
	ErrDestNotDir     = errors.New("destination is not a directory")
	ErrDestAccess     = errors.New("destination directory not writable")
	ErrBucketsMissing = errors.New("bucket directory does not exist")
	ErrBucketsAccess  = errors.New("bucket directory is not writable")
)

// Sources checks that every source is a readable, searchable directory.
func Sources(srcs []string) error {
	for _, src := range srcs {
		info, err := os.Stat(src)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrSourceNotDir, src)
		}
		if err := unix.Access(src, unix.R_OK|unix.X_OK); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSourceAccess, src, err)
		}
	}
	return nil
}

// Destination creates dst when it does not exist, like rsync would, and
// checks that it is a writable directory.
func Destination(dst string) error {
	info, err := os.Stat(dst)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.Mkdir(dst, 0o755); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDestCreate, dst, err)
		}
		info, err = os.Stat(dst)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDestAccess, dst, err)
	}
	if info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrDestIsFile, dst)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestNotDir, dst)
	}
	if err := unix.Access(dst, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDestAccess, dst, err)
	}
	return nil
}

// BucketsDir checks an operator-supplied parent for the bucket tree.
// An empty dir means the system temporary directory and is always accepted.
func BucketsDir(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrBucketsMissing, dir)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBucketsAccess, dir, err)
	}
	return nil
}
