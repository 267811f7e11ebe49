package cmm

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrorCode classifies every failure returned by this package. The numeric values are stable
// and grouped by area: 1xx allocation, 2xx mapping and cache maintenance, 3xx platform.
type ErrorCode int32

const (
	Success                ErrorCode = 0
	InvalidArgument        ErrorCode = 1
	OutOfRange             ErrorCode = 2
	NotInitialized         ErrorCode = 3
	AlreadyInitialized     ErrorCode = 4
	AllocationFailed       ErrorCode = 100
	MemoryTooLarge         ErrorCode = 101
	NoAllocation           ErrorCode = 102
	NotOwned               ErrorCode = 103
	ReferencesRemain       ErrorCode = 104
	MemFreeFailed          ErrorCode = 105
	MapFailed              ErrorCode = 200
	UnmapFailed            ErrorCode = 201
	FlushFailed            ErrorCode = 202
	InvalidateFailed       ErrorCode = 203
	ViewRegistrationFailed ErrorCode = 204
	SystemInitFailed       ErrorCode = 300
	SystemCallFailed       ErrorCode = 301
	Unknown                ErrorCode = 999
)

var errorCodeMapping = make(map[ErrorCode]string)

func (c ErrorCode) String() string {
	str, ok := errorCodeMapping[c]
	if !ok {
		return "ErrorCode(" + strconv.Itoa(int(c)) + ")"
	}
	return str
}

// Error lets an ErrorCode act as a sentinel: errors.Is(err, cmm.ReferencesRemain) matches any
// *Error carrying that code
func (c ErrorCode) Error() string {
	return c.String()
}

func init() {
	errorCodeMapping[Success] = "Success"
	errorCodeMapping[InvalidArgument] = "InvalidArgument"
	errorCodeMapping[OutOfRange] = "OutOfRange"
	errorCodeMapping[NotInitialized] = "NotInitialized"
	errorCodeMapping[AlreadyInitialized] = "AlreadyInitialized"
	errorCodeMapping[AllocationFailed] = "AllocationFailed"
	errorCodeMapping[MemoryTooLarge] = "MemoryTooLarge"
	errorCodeMapping[NoAllocation] = "NoAllocation"
	errorCodeMapping[NotOwned] = "NotOwned"
	errorCodeMapping[ReferencesRemain] = "ReferencesRemain"
	errorCodeMapping[MemFreeFailed] = "MemFreeFailed"
	errorCodeMapping[MapFailed] = "MapFailed"
	errorCodeMapping[UnmapFailed] = "UnmapFailed"
	errorCodeMapping[FlushFailed] = "FlushFailed"
	errorCodeMapping[InvalidateFailed] = "InvalidateFailed"
	errorCodeMapping[ViewRegistrationFailed] = "ViewRegistrationFailed"
	errorCodeMapping[SystemInitFailed] = "SystemInitFailed"
	errorCodeMapping[SystemCallFailed] = "SystemCallFailed"
	errorCodeMapping[Unknown] = "Unknown"
}

// Error is the concrete error type returned by this package. The message is only built the
// first time it is asked for, so failures on hot paths cost no formatting unless inspected.
type Error struct {
	code  ErrorCode
	cause error

	once    sync.Once
	factory func() string
	message string
}

func newError(code ErrorCode, factory func() string) *Error {
	return &Error{code: code, factory: factory}
}

func newErrorf(code ErrorCode, format string, args ...any) *Error {
	return newError(code, func() string {
		return fmt.Sprintf(format, args...)
	})
}

// wrapError attaches the platform failure that caused the error
func wrapError(code ErrorCode, cause error, factory func() string) *Error {
	err := newError(code, factory)
	err.cause = cause
	return err
}

func (e *Error) Code() ErrorCode {
	return e.code
}

// Message returns the description without the code or the cause
func (e *Error) Message() string {
	e.once.Do(func() {
		if e.factory != nil {
			e.message = e.factory()
			e.factory = nil
		}
	})
	return e.message
}

func (e *Error) Error() string {
	msg := e.code.String()
	if text := e.Message(); text != "" {
		msg += ": " + text
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && code == e.code
}

// CodeOf returns the code of the first *Error in err's chain. nil maps to Success and
// errors from outside this package map to Unknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}

	var cmmErr *Error
	if errors.As(err, &cmmErr) {
		return cmmErr.code
	}

	var code ErrorCode
	if errors.As(err, &code) {
		return code
	}

	return Unknown
}

// combine keeps first as the primary error and attaches any further failures as secondary
// errors, so the reported code is always that of first
func combine(first error, others ...error) error {
	err := first
	for _, other := range others {
		err = errors.CombineErrors(err, other)
	}
	return err
}
