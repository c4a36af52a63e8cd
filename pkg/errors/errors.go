/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"runtime"
	"strings"
)

const maxStackDepth = 32

// Error carries an error code, a human readable message, the stack at
// creation time and an optional inner error.
type Error struct {
	Stack      []runtime.Frame
	InnerError error
	Code       int
	Message    string
}

func newError(code int, message string) *Error {
	return &Error{
		Stack:   callers(),
		Code:    code,
		Message: message,
	}
}

func callers() []runtime.Frame {
	pc := make([]uintptr, maxStackDepth)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	result := make([]runtime.Frame, 0, n)
	for {
		frame, more := frames.Next()
		result = append(result, frame)
		if !more {
			break
		}
	}
	return result
}

func (e *Error) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.InnerError)
	}
	return e.Message
}

// Unwrap returns the inner error, if any.
func (e *Error) Unwrap() error {
	return e.InnerError
}

// GetStackString formats the recorded stack one frame per line.
func (e *Error) GetStackString() string {
	var sb strings.Builder
	for _, frame := range e.Stack {
		sb.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
	}
	return sb.String()
}

// WithCode replaces the error code.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// WithMessage replaces the message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// WithError attaches an inner error.
func (e *Error) WithError(err error) *Error {
	e.InnerError = err
	return e
}
