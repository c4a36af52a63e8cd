/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Hashes holds the three digests recorded for every submitted file.
type Hashes struct {
	MD5    string
	SHA1   string
	SHA256 string
}

// HashFile computes md5, sha1 and sha256 of the file at path in one pass.
func HashFile(path string) (*Hashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader computes md5, sha1 and sha256 of everything read from r.
func HashReader(r io.Reader) (*Hashes, error) {
	md5h := md5.New()
	sha1h := sha1.New()
	sha256h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5h, sha1h, sha256h), r); err != nil {
		return nil, err
	}
	return &Hashes{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
	}, nil
}

// MD5String returns the hex md5 digest of s.
func MD5String(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ListValue splits a comma separated value into trimmed, de-duplicated,
// non-empty elements.
func ListValue(value string) []string {
	result := make([]string, 0)
	seen := make(map[string]bool)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}

// OrderedListValue splits a comma separated value into trimmed non-empty
// elements, preserving order and duplicates.
func OrderedListValue(value string) []string {
	result := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		result = append(result, item)
	}
	return result
}

// StringInSlice reports whether s is an element of list.
func StringInSlice(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// RemoveString returns list without any occurrence of s.
func RemoveString(s string, list []string) []string {
	result := make([]string, 0, len(list))
	for _, item := range list {
		if item != s {
			result = append(result, item)
		}
	}
	return result
}

// SanitizeFilename maps a submitted file name to a name safe for on-disk
// storage. Path separators and control characters are replaced.
func SanitizeFilename(name string) string {
	name = filepath.Base(name)
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	result := strings.Trim(sb.String(), ". ")
	if result == "" {
		result = "file"
	}
	return result
}

// TempDir creates a fresh scratch directory under root, named after a
// random uuid.
func TempDir(root string) (string, error) {
	dir := filepath.Join(root, strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
