/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package analysis

import (
	"context"
	"os"
	"path/filepath"

	"github.com/certsocietegenerale/fame/pkg/database/client"
)

// FileStrategy abstracts how file content moves between a module run and
// the store. The local strategy works directly on the shared filesystem;
// remote workers replace it with one that ships bytes over HTTP.
type FileStrategy interface {
	// LocalPath makes a stored file reachable on the local filesystem
	// and returns the path to use.
	LocalPath(ctx context.Context, path string) (string, error)
	// SaveGenerated persists a file a module produced and returns its
	// canonical path.
	SaveGenerated(ctx context.Context, analysisId, path string) (string, error)
	// SaveSupport persists a module by-product and returns its stored
	// name.
	SaveSupport(ctx context.Context, analysisId, moduleName, path string) (string, error)
	// SaveSubmission registers new content in the store. The boolean
	// reports whether the content was already known.
	SaveSubmission(ctx context.Context, name, path string) (*client.File, bool, error)
}

// LocalFiles is the strategy of processes with direct access to the
// store's filesystem.
type LocalFiles struct {
	service *Service
}

func (l *LocalFiles) LocalPath(_ context.Context, path string) (string, error) {
	return path, nil
}

func (l *LocalFiles) SaveGenerated(_ context.Context, analysisId, path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	return l.service.store.StoreGeneratedFile(analysisId, filepath.Base(path), src)
}

func (l *LocalFiles) SaveSupport(_ context.Context, analysisId, moduleName, path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	name, _, err := l.service.store.StoreSupportFile(moduleName, analysisId, filepath.Base(path), src)
	return name, err
}

func (l *LocalFiles) SaveSubmission(ctx context.Context, name, path string) (*client.File, bool, error) {
	return l.service.SubmitFilePath(ctx, name, path, nil, "")
}
