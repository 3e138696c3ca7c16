package internal

import (
	"errors"
	"strings"
)

// ErrForbidden marks an action on a resource the session user does not own.
var ErrForbidden = errors.New("you do not have permissions to do that")

// TransportError is a request that never completed. Its message is the
// generic "try again later" text of the action that failed.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Action == "" {
		return "Something went wrong. Please try again later."
	}
	return "Something went wrong while " + e.Action + ". Please try again later."
}

func (e *TransportError) Unwrap() error { return e.Err }

// AppError is a well formed error response; Message is shown verbatim.
type AppError struct {
	Status  int
	Message string
}

func (e *AppError) Error() string { return e.Message }

// ValidationError lists client side rule violations in display order.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "\n")
}

// Retryable reports whether a manual retry makes sense for err.
func Retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Describe is the text a view shows for err. Wrapping added on the way up
// is dropped so backend and validation messages appear verbatim.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var parts []string
		for _, e := range j.Unwrap() {
			parts = append(parts, Describe(e))
		}
		return strings.Join(parts, "\n")
	}
	var (
		ve *ValidationError
		te *TransportError
		ae *AppError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.Is(err, ErrForbidden):
		return "You do not have permissions to do that."
	case errors.As(err, &te):
		return te.Error()
	case errors.As(err, &ae):
		return ae.Message
	}
	return err.Error()
}
