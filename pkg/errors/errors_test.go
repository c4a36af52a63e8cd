/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"testing"

	"gotest.tools/assert"
)

func TestErrorCodes(t *testing.T) {
	err := NewNotFound("analysis %s not found", "42")
	assert.Equal(t, err.Code, http.StatusNotFound)
	assert.Equal(t, err.Error(), "analysis 42 not found")
	assert.Assert(t, IsNotFound(err))
	assert.Assert(t, !IsBadRequest(err))
}

func TestErrorWrapping(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := NewInternalError("saving results").WithError(inner)
	assert.Equal(t, err.Error(), "saving results: connection refused")
	assert.Equal(t, err.Unwrap(), inner)

	wrapped := fmt.Errorf("run module: %w", err)
	assert.Assert(t, !IsNotFound(wrapped))
	assert.Equal(t, HTTPStatus(wrapped), http.StatusInternalServerError)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, HTTPStatus(NewBadRequest("no file")), http.StatusBadRequest)
	assert.Equal(t, HTTPStatus(NewForbidden("wrong task")), http.StatusForbidden)
	assert.Equal(t, HTTPStatus(NewDispatchingError("no path")), http.StatusInternalServerError)
	assert.Equal(t, HTTPStatus(fmt.Errorf("plain")), http.StatusInternalServerError)
}

func TestStackRecorded(t *testing.T) {
	err := NewDispatchingError("no path to %s", "pdf_extract")
	assert.Assert(t, len(err.Stack) > 0)
	assert.Assert(t, len(err.GetStackString()) > 0)
}
