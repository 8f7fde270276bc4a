// Package apperr defines the error kinds returned by the service layer.
//
// Services return *Error values (usually one of their package-level sentinels,
// sometimes with a more specific message). errors.Is matches on Kind, so a
// detailed error such as "insufficient stock for Widget" still satisfies
// errors.Is(err, service.ErrInsufficientStock). Anything that is not an *Error
// is treated as Internal by the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Internal Kind = iota
	Unauthorized
	Forbidden
	NotFound
	Validation
	Conflict
	InsufficientStock
	EmptyCart
	InvalidStatus
	InvalidTransition
	InvalidOrder
	NotDelivered
)

var kindNames = map[Kind]string{
	Internal:          "internal",
	Unauthorized:      "unauthorized",
	Forbidden:         "forbidden",
	NotFound:          "not_found",
	Validation:        "validation",
	Conflict:          "conflict",
	InsufficientStock: "insufficient_stock",
	EmptyCart:         "empty_cart",
	InvalidStatus:     "invalid_status",
	InvalidTransition: "invalid_transition",
	InvalidOrder:      "invalid_order",
	NotDelivered:      "not_delivered",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf reports the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the client-facing message for err. Internal errors never
// leak their cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal server error"
}
