// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-chrdev.

package api

import "fmt"

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidID
	ErrCodeBusy
	ErrCodeNotFound
	ErrCodeReadOnly
	ErrCodeWouldBlock
	ErrCodeInterrupted
	ErrCodeOutOfMemory
	ErrCodeFault
	ErrCodeOutOfIDs
	ErrCodeInvalidArgument
	ErrCodeNotSupported
	ErrCodeNoDevice
	ErrCodeClosed
)

var codeNames = [...]string{
	ErrCodeOK:              "ok",
	ErrCodeInvalidID:       "invalid id",
	ErrCodeBusy:            "busy",
	ErrCodeNotFound:        "not found",
	ErrCodeReadOnly:        "read-only",
	ErrCodeWouldBlock:      "would block",
	ErrCodeInterrupted:     "interrupted",
	ErrCodeOutOfMemory:     "out of memory",
	ErrCodeFault:           "fault",
	ErrCodeOutOfIDs:        "out of ids",
	ErrCodeInvalidArgument: "invalid argument",
	ErrCodeNotSupported:    "not supported",
	ErrCodeNoDevice:        "no device",
	ErrCodeClosed:          "closed",
}

func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Common errors used across the library. Errors returned by operations carry
// extra context but match these through errors.Is.
var (
	ErrInvalidID       = NewError(ErrCodeInvalidID, "invalid device id")
	ErrBusy            = NewError(ErrCodeBusy, "device id is busy")
	ErrNotFound        = NewError(ErrCodeNotFound, "device not found")
	ErrReadOnly        = NewError(ErrCodeReadOnly, "device is read-only")
	ErrWouldBlock      = NewError(ErrCodeWouldBlock, "operation would block")
	ErrInterrupted     = NewError(ErrCodeInterrupted, "wait interrupted")
	ErrOutOfMemory     = NewError(ErrCodeOutOfMemory, "cannot allocate device storage")
	ErrFault           = NewError(ErrCodeFault, "bad buffer")
	ErrOutOfIDs        = NewError(ErrCodeOutOfIDs, "no free id range")
	ErrInvalidArgument = NewError(ErrCodeInvalidArgument, "invalid argument")
	ErrNotSupported    = NewError(ErrCodeNotSupported, "operation not supported")
	ErrNoDevice        = NewError(ErrCodeNoDevice, "no such device")
	ErrClosed          = NewError(ErrCodeClosed, "resource is closed")
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeOK for nil and
// ErrCodeInvalidArgument for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	for err != nil {
		if x, ok := err.(*Error); ok {
			e = x
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ErrCodeInvalidArgument
	}
	return e.Code
}
