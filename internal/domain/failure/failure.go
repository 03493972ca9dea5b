// Package failure defines the error kinds raised by the recap pipeline and
// maps them onto the small set of categories shown to users.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies where and how a failure happened.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindEngineLoad
	KindTranscode
	KindOverloaded
	KindInvalidAPIKey
	KindMalformedResponse
	KindNetwork
	KindAPI
	KindSideEffect
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEngineLoad:
		return "engine_load"
	case KindTranscode:
		return "transcode"
	case KindOverloaded:
		return "overloaded"
	case KindInvalidAPIKey:
		return "invalid_api_key"
	case KindMalformedResponse:
		return "malformed_response"
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindSideEffect:
		return "side_effect"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error carries a Kind next to the user-facing message and the cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

func EngineLoad(op string, err error) *Error {
	return Wrap(KindEngineLoad, op, err, "video engine failed to load")
}

func Transcode(op string, err error, message string) *Error {
	return Wrap(KindTranscode, op, err, message)
}

// KindOf returns the Kind of the first *Error in err's chain. Context
// cancellation that never reached a typed error is reported as KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// IsValidation reports whether err is a precondition failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
