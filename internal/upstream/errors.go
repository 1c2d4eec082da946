package upstream

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a request that exhausted its retry budget. Use
// errors.Is against it; the concrete *UnavailableError keeps the last
// attempt's cause for diagnostics.
var ErrUnavailable = errors.New("backend unavailable (server may be waking up)")

type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	if e.Cause == nil {
		return ErrUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrUnavailable.Error(), e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// StatusError is a non-2xx response. 4xx codes are final and never
// retried; 5xx codes are transient and feed the retry loop.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (%d)", e.Code)
}

func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}
