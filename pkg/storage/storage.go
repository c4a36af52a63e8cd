/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package storage manages the permanent file store and the shared scratch
// directories of the pipeline.
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

const (
	supportDir   = "support_files"
	generatedDir = "generated_files"
)

// Archiver mirrors stored files into an object store. Optional.
type Archiver interface {
	Archive(ctx context.Context, key, path string) error
	Retrieve(ctx context.Context, key, path string) error
}

// Store lays files out under a permanent root, one directory per sha256,
// and hands out scratch directories under a shared temp root.
type Store struct {
	root     string
	tempRoot string
	archiver Archiver
}

// New creates a store rooted at the given directories. archiver may be
// nil.
func New(root, tempRoot string, archiver Archiver) (*Store, error) {
	for _, dir := range []string{root, tempRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: root, tempRoot: tempRoot, archiver: archiver}, nil
}

// FilePath returns where the content with the given digest is stored.
func (s *Store) FilePath(sha256, name string) string {
	return filepath.Join(s.root, sha256, utils.SanitizeFilename(name))
}

// Root returns the permanent storage root.
func (s *Store) Root() string {
	return s.root
}

// TempRoot returns the scratch root.
func (s *Store) TempRoot() string {
	return s.tempRoot
}

// StoreFile persists content under its digest. Storing the same digest
// again is a no-op returning the existing location.
func (s *Store) StoreFile(ctx context.Context, sha256, name string, src io.Reader) (string, error) {
	dir := filepath.Join(s.root, sha256)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, utils.SanitizeFilename(name))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := writeFile(path, src); err != nil {
		return "", err
	}
	if s.archiver != nil {
		key := sha256 + "/" + utils.SanitizeFilename(name)
		if err := s.archiver.Archive(ctx, key, path); err != nil {
			klog.ErrorS(err, "failed to archive file", "key", key)
		}
	}
	return path, nil
}

// RetrieveFile makes sure the content with the given digest is present
// locally, pulling it from the archive when needed.
func (s *Store) RetrieveFile(ctx context.Context, sha256, name string) (string, error) {
	path := s.FilePath(sha256, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if s.archiver == nil {
		return "", errors.NewNotFound("file %s is not in the store", sha256)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	key := sha256 + "/" + utils.SanitizeFilename(name)
	if err := s.archiver.Retrieve(ctx, key, path); err != nil {
		return "", err
	}
	return path, nil
}

// StoreSupportFile persists a file a module produced for operators, under
// support_files/<module>/<analysis>/. The stored name is returned.
func (s *Store) StoreSupportFile(module, analysisId, name string, src io.Reader) (string, string, error) {
	dir := filepath.Join(s.root, supportDir, module, analysisId)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	safe := utils.SanitizeFilename(name)
	path := filepath.Join(dir, safe)
	if err := writeFile(path, src); err != nil {
		return "", "", err
	}
	return safe, path, nil
}

// SupportFilePath returns where a support file is stored.
func (s *Store) SupportFilePath(module, analysisId, name string) string {
	return filepath.Join(s.root, supportDir, module, analysisId, utils.SanitizeFilename(name))
}

// GeneratedFilesDir returns the scratch directory shared by the modules
// of one analysis, creating it on first use.
func (s *Store) GeneratedFilesDir(analysisId string) (string, error) {
	dir := filepath.Join(s.tempRoot, generatedDir, analysisId)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// StoreGeneratedFile copies a produced file into the analysis scratch
// directory so other workers can pick it up.
func (s *Store) StoreGeneratedFile(analysisId, name string, src io.Reader) (string, error) {
	dir, err := s.GeneratedFilesDir(analysisId)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, utils.SanitizeFilename(name))
	if err := writeFile(path, src); err != nil {
		return "", err
	}
	return path, nil
}

// TempDir hands out a fresh private scratch directory.
func (s *Store) TempDir() (string, error) {
	return utils.TempDir(s.tempRoot)
}

// CleanTemp removes scratch entries unmodified for longer than maxAge.
func (s *Store) CleanTemp(maxAge time.Duration) error {
	deadline := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(s.tempRoot)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == generatedDir {
			if err := cleanOld(filepath.Join(s.tempRoot, generatedDir), deadline); err != nil {
				klog.ErrorS(err, "failed to clean generated files")
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(deadline) {
			if err := os.RemoveAll(filepath.Join(s.tempRoot, entry.Name())); err != nil {
				klog.ErrorS(err, "failed to remove stale temp entry", "name", entry.Name())
			}
		}
	}
	return nil
}

func cleanOld(dir string, deadline time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(deadline) {
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeFile(path string, src io.Reader) error {
	dst, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(dst.Name())
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Rename(dst.Name(), path)
}
