/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/assert"
)

func TestHashReader(t *testing.T) {
	h, err := HashReader(strings.NewReader("malware"))
	assert.NilError(t, err)
	assert.Equal(t, h.MD5, "f3f0c6e992b7562598d9865b6fe8b3a6")
	assert.Equal(t, h.SHA1, "316ca0099385ebe6d7fcb9d5e0785deafedfe791")
	assert.Equal(t, h.SHA256, "2f293f67aa33f2ce247b28d6fb2fef2623cfde731f96b3d7f84ae74e9e192bdd")
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	assert.NilError(t, os.WriteFile(path, []byte("malware"), 0o644))
	fromFile, err := HashFile(path)
	assert.NilError(t, err)
	fromReader, err := HashReader(strings.NewReader("malware"))
	assert.NilError(t, err)
	assert.Equal(t, fromFile.SHA256, fromReader.SHA256)
}

func TestListValue(t *testing.T) {
	assert.DeepEqual(t, ListValue("pe, pdf,,pe , excel"), []string{"pe", "pdf", "excel"})
	assert.DeepEqual(t, ListValue(""), []string{})
}

func TestOrderedListValue(t *testing.T) {
	assert.DeepEqual(t, OrderedListValue("b, a ,b"), []string{"b", "a", "b"})
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, SanitizeFilename("../../etc/passwd"), "passwd")
	assert.Equal(t, SanitizeFilename("invoice (1).pdf"), "invoice _1_.pdf")
	assert.Equal(t, SanitizeFilename("..."), "file")
}

func TestTempDir(t *testing.T) {
	root := t.TempDir()
	a, err := TempDir(root)
	assert.NilError(t, err)
	b, err := TempDir(root)
	assert.NilError(t, err)
	assert.Assert(t, a != b)
	info, err := os.Stat(a)
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())
}
