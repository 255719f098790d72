package cli

import (
	"errors"
	"fmt"

	"github.com/tOgg1/bazaar/internal/market"
)

// Exit codes returned by the bazaar binary.
const (
	ExitCodeFailure    = 1
	ExitCodeUsage      = 2
	ExitCodeAuth       = 3
	ExitCodeValidation = 4
	ExitCodeNotFound   = 5
)

// ExitError carries a process exit code. Printed is set when the command
// already reported the failure to the user.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exitf builds an ExitError from a format string.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// exitFor maps a classified API error to its exit code, wrapping it with
// context for the user.
func exitFor(err error, what string) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	code := ExitCodeFailure
	switch market.KindOf(err) {
	case market.KindAuth:
		code = ExitCodeAuth
	case market.KindValidation:
		code = ExitCodeValidation
	case market.KindNotFound:
		code = ExitCodeNotFound
	}
	return &ExitError{Code: code, Err: fmt.Errorf("%s: %w", what, err)}
}
