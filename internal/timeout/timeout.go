// Package timeout holds the error reported when an external call runs past
// its deadline. Callers treat it as recoverable.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Error struct {
	Op    string
	After time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// Is reports whether err is (or wraps) a timeout.
func Is(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Check converts a deadline-exceeded context into an *Error, otherwise
// returns err unchanged.
func Check(ctx context.Context, op string, after time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, After: after}
	}
	return err
}
