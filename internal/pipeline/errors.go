package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindServiceUnavailable     Kind = "service_unavailable"
	KindEmptyOrBlockedResponse Kind = "empty_or_blocked_response"
	KindInvalidRequest         Kind = "invalid_request"
)

// Sentinels for errors.Is.
var (
	ErrServiceUnavailable   = errors.New("generation service unavailable")
	ErrEmptyOrBlocked       = errors.New("generation returned no usable content")
	ErrInvalidRequest       = errors.New("invalid generation request")
	ErrGenerationInProgress = errors.New("a quiz is already being generated")
)

// Error is the single typed failure the pipeline surfaces to its caller.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.sentinel().Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.sentinel(), e.Err}
	}
	return []error{e.sentinel()}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindServiceUnavailable:
		return ErrServiceUnavailable
	case KindEmptyOrBlockedResponse:
		return ErrEmptyOrBlocked
	default:
		return ErrInvalidRequest
	}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindServiceUnavailable, Reason: err.Error(), Err: err}
}

func blocked(format string, args ...any) *Error {
	return &Error{Kind: KindEmptyOrBlockedResponse, Reason: fmt.Sprintf(format, args...)}
}

func invalid(reason string) *Error {
	return &Error{Kind: KindInvalidRequest, Reason: reason}
}
