// Package errs defines the error taxonomy shared across the engine.
//
// Every error that can cross a command boundary is an *AppError with a
// Kind drawn from this fixed set, matching the behavior of the session's
// Rust ancestor: all errors serialize to a single human-readable string.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError for callers that need to branch on category
// (e.g. telling a Network failure apart from a JSONDecode one via KindOf).
type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	IO              Kind = "io"
	Network         Kind = "network"
	WebSocket       Kind = "websocket"
	JSONDecode      Kind = "json_decode"
	FloatParse      Kind = "float_parse"
	WindowNotFound  Kind = "window_not_found"
	Persistence     Kind = "persistence"
	Migration       Kind = "migration"
)

// AppError wraps a Kind and an optional cause. It satisfies the error
// interface and round-trips to a plain string at any command boundary.
type AppError struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *AppError {
	return &AppError{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *AppError {
	return &AppError{Kind: kind, Msg: msg, Cause: cause}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *AppError) Unwrap() error { return e.Cause }

// IsKind reports whether e carries the given Kind. To classify an error
// that may wrap an *AppError, use KindOf.
func (e *AppError) IsKind(kind Kind) bool { return e.Kind == kind }

// KindOf extracts the Kind from err if it is (or wraps) an *AppError.
func KindOf(err error) (Kind, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
