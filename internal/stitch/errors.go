package stitch

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindSynthesis    Kind = "synthesis"
	KindAssembly     Kind = "assembly"
)

// Error tags a failure with its Kind so the transport boundary can pick a
// status code.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func invalidInput(format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Err: fmt.Errorf(format, args...)}
}

func synthesisFailure(err error) error {
	return &Error{Kind: KindSynthesis, Err: err}
}

func assemblyFailure(err error) error {
	return &Error{Kind: KindAssembly, Err: err}
}

// KindOf returns the kind of err. Untagged errors count as assembly
// failures so they still surface as server errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindAssembly
}

// StatusCode maps err onto an HTTP status.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == KindInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
