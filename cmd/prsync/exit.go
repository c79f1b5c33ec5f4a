package main

import (
	"errors"
	"fmt"

	"github.com/prsync/prsync/internal/preflight"
	"github.com/prsync/prsync/internal/transfer"
)

// Fatal exit statuses. A run that gets as far as transferring exits with
// the number of failed buckets instead, capped at maxFailureExit.
const (
	exitOptions        = 97
	exitBucketsMissing = 11
	exitBucketsDir     = 12
	exitNoBinary       = 14
	exitSourceNotDir   = 15
	exitSourceAccess   = 16
	exitDestAccess     = 17
	exitDestNotDir     = 18
	exitOptionsCheck   = 19
	exitDestIsFile     = 23
	exitDestCreate     = 24
	exitInterrupted    = 27

	maxFailureExit = 255
)

type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// fatal wraps err with the exit status its cause maps to.
func fatal(err error) error {
	return &exitError{err: err, code: exitCodeFor(err)}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errNoBinary):
		return exitNoBinary
	case errors.Is(err, preflight.ErrSourceNotDir):
		return exitSourceNotDir
	case errors.Is(err, preflight.ErrSourceAccess):
		return exitSourceAccess
	case errors.Is(err, preflight.ErrDestCreate):
		return exitDestCreate
	case errors.Is(err, preflight.ErrDestIsFile):
		return exitDestIsFile
	case errors.Is(err, preflight.ErrDestNotDir):
		return exitDestNotDir
	case errors.Is(err, preflight.ErrDestAccess):
		return exitDestAccess
	case errors.Is(err, preflight.ErrBucketsMissing):
		return exitBucketsMissing
	case errors.Is(err, preflight.ErrBucketsAccess), errors.Is(err, errBucketsCreate):
		return exitBucketsDir
	case errors.Is(err, transfer.ErrOptionsCheck):
		return exitOptionsCheck
	default:
		return exitOptions
	}
}

// failureExit maps the number of failed buckets to an exit status.
func failureExit(errs int64) int {
	return int(min(max(errs, 0), maxFailureExit))
}

var (
	errNoBinary      = errors.New("cannot find rsync executable")
	errBucketsCreate = errors.New("cannot create bucket directory")
)
