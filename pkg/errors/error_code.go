/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the analysis pipeline. HTTP-shaped codes map
// directly onto response status codes; pipeline codes start at 1000.
const (
	CodeBadRequest    = http.StatusBadRequest
	CodeUnauthorized  = http.StatusUnauthorized
	CodeForbidden     = http.StatusForbidden
	CodeNotFound      = http.StatusNotFound
	CodeInternalError = http.StatusInternalServerError

	CodeDispatching          = 1000
	CodeMissingConfiguration = 1001
	CodeModuleInit           = 1002
	CodeModuleExecution      = 1003
)

// NewBadRequest returns a new BadRequest error.
func NewBadRequest(format string, args ...interface{}) *Error {
	return newError(CodeBadRequest, fmt.Sprintf(format, args...))
}

// NewUnauthorized returns a new Unauthorized error.
func NewUnauthorized(format string, args ...interface{}) *Error {
	return newError(CodeUnauthorized, fmt.Sprintf(format, args...))
}

// NewForbidden returns a new Forbidden error.
func NewForbidden(format string, args ...interface{}) *Error {
	return newError(CodeForbidden, fmt.Sprintf(format, args...))
}

// NewNotFound returns a new NotFound error.
func NewNotFound(format string, args ...interface{}) *Error {
	return newError(CodeNotFound, fmt.Sprintf(format, args...))
}

// NewInternalError returns a new InternalError error.
func NewInternalError(format string, args ...interface{}) *Error {
	return newError(CodeInternalError, fmt.Sprintf(format, args...))
}

// NewDispatchingError reports that no execution path could be found for a
// target module.
func NewDispatchingError(format string, args ...interface{}) *Error {
	return newError(CodeDispatching, fmt.Sprintf(format, args...))
}

// NewMissingConfiguration reports an unset required module setting.
func NewMissingConfiguration(format string, args ...interface{}) *Error {
	return newError(CodeMissingConfiguration, fmt.Sprintf(format, args...))
}

// NewModuleInitializationError reports that a module could not initialize.
func NewModuleInitializationError(module, reason string) *Error {
	return newError(CodeModuleInit, fmt.Sprintf("%s: initialization failed: %s", module, reason))
}

// NewModuleExecutionError reports a module failure during execution.
func NewModuleExecutionError(module string, err error) *Error {
	return newError(CodeModuleExecution, fmt.Sprintf("%s: execution failed", module)).WithError(err)
}

func hasCode(err error, code int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsBadRequest checks whether err carries the BadRequest code.
func IsBadRequest(err error) bool {
	return hasCode(err, CodeBadRequest)
}

// IsUnauthorized checks whether err carries the Unauthorized code.
func IsUnauthorized(err error) bool {
	return hasCode(err, CodeUnauthorized)
}

// IsForbidden checks whether err carries the Forbidden code.
func IsForbidden(err error) bool {
	return hasCode(err, CodeForbidden)
}

// IsNotFound checks whether err carries the NotFound code.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsDispatchingError checks whether err carries the Dispatching code.
func IsDispatchingError(err error) bool {
	return hasCode(err, CodeDispatching)
}

// IsMissingConfiguration checks whether err carries the MissingConfiguration code.
func IsMissingConfiguration(err error) bool {
	return hasCode(err, CodeMissingConfiguration)
}

// IsModuleExecutionError checks whether err carries the ModuleExecution code.
func IsModuleExecutionError(err error) bool {
	return hasCode(err, CodeModuleExecution)
}

// HTTPStatus maps an error to the status code of its HTTP rendering.
// Pipeline codes render as 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeBadRequest, CodeUnauthorized, CodeForbidden, CodeNotFound:
		return e.Code
	default:
		return http.StatusInternalServerError
	}
}
