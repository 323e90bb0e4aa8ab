package model

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentduet/core"
)

var (
	// ErrTransport matches any *Error classified as a transport failure.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedResponse matches any *Error classified as a malformed response.
	ErrMalformedResponse = errors.New("malformed response")
)

// Error is the distinguished failure value returned by backends.
type Error struct {
	Kind    core.ErrorKind
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the classification sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == core.ErrorTransport
	case ErrMalformedResponse:
		return e.Kind == core.ErrorMalformedResponse
	default:
		return false
	}
}

// TransportError classifies err as a transport failure of backend.
func TransportError(backend string, err error) *Error {
	return &Error{Kind: core.ErrorTransport, Backend: backend, Err: err}
}

// MalformedResponseError classifies err as a malformed response of backend.
func MalformedResponseError(backend string, err error) *Error {
	return &Error{Kind: core.ErrorMalformedResponse, Backend: backend, Err: err}
}

// KindOf returns the classification of err. Unclassified errors count as
// transport failures.
func KindOf(err error) core.ErrorKind {
	if err == nil {
		return core.ErrorNone
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return core.ErrorTransport
}
