// Package apperr defines the error taxonomy shared by every component of
// the orchestration kernel and its mapping onto JSON-RPC error objects.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies one of the kernel's error kinds. The zero value is not a
// valid code; every constructor below sets one explicitly.
type Code string

const (
	Unauthenticated  Code = "Unauthenticated"
	Forbidden        Code = "Forbidden"
	RateLimited      Code = "RateLimited"
	InvalidArgument  Code = "InvalidArgument"
	NotFound         Code = "NotFound"
	Conflict         Code = "Conflict"
	Misconfigured    Code = "Misconfigured"
	Unavailable      Code = "Unavailable"
	DeadlineExceeded Code = "DeadlineExceeded"
	Cancelled        Code = "Cancelled"
	Internal         Code = "Internal"
)

// jsonRPCCode maps each Code onto the integer space JSON-RPC 2.0 expects.
// Application codes use -32001..-32009, inside the -32000..-32099 band
// JSON-RPC leaves for implementation-defined server errors;
// InvalidArgument and Internal reuse the standard protocol codes.
var jsonRPCCode = map[Code]int{
	Unauthenticated:  -32001,
	Forbidden:        -32002,
	RateLimited:      -32003,
	InvalidArgument:  -32602, // JSON-RPC "Invalid params"
	NotFound:         -32004,
	Conflict:         -32005,
	Misconfigured:    -32006,
	Unavailable:      -32007,
	DeadlineExceeded: -32008,
	Cancelled:        -32009,
	Internal:         -32603, // JSON-RPC "Internal error"
}

// Error is the typed error every component returns. Message must already be
// sanitized: no file paths, stack frames, or secret material.
type Error struct {
	Code          Code
	Message       string
	CorrelationID string // set only for Internal
	cause         error
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (correlation_id=%s)", e.Code, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// JSONRPCCode returns the JSON-RPC code mapped to this error's Code. The
// MCP transports do not send it; they report a failure as a tool result
// flagged as an error, with "Code: message" as its text.
func (e *Error) JSONRPCCode() int {
	if c, ok := jsonRPCCode[e.Code]; ok {
		return c
	}
	return jsonRPCCode[Internal]
}

// New builds a typed error for Code with a sanitized message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error that preserves cause for logging (via Unwrap)
// without leaking cause.Error() into Message.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the Code of err, or Internal if err is not an *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return Internal
}
