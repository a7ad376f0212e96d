package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures for the boundary layer. Everything not
// named here is recovered internally and never surfaces as an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindRateLimited
	KindTimeout
)

// Error carries a failure kind plus the wrapped cause. Validation and
// rate-limit errors keep their diagnostic detail; internal errors surface a
// generic message at the boundary.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate-limited"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

func validationError(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

var errRateExhausted = errors.New("rate limit exhausted")

// KindOf extracts the failure kind, defaulting to internal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
