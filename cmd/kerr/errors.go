package main

import (
	"errors"
	"fmt"

	"github.com/kerrnet/kerr/internal/kquic"
)

// usageError marks an invalid-argument failure, mapped to exit code 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

// exitCodeFor maps an error to the §6 exit code the caller should use.
func exitCodeFor(err error) int {
	var ue *usageError
	switch {
	case errors.As(err, &ue):
		return exitUsage
	case errors.Is(err, kquic.ErrUnreachable):
		return exitUnreachable
	default:
		return exitError
	}
}
