/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"archive/zip"
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/worker"
)

// DownloadModules streams a zip of the current module tree, so workers
// can install module assets and scripts locally.
// GET /modules/download
func (h *Handler) DownloadModules(c *gin.Context) {
	if h.modulesPath == "" {
		abortWithError(c, errors.NewNotFound("no module tree configured"))
		return
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="modules.zip"`)
	c.Status(http.StatusOK)

	archive := zip.NewWriter(c.Writer)
	defer archive.Close()
	err := filepath.Walk(h.modulesPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(h.modulesPath, path)
		if err != nil {
			return err
		}
		entry, err := archive.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
	if err != nil {
		klog.ErrorS(err, "failed to archive module tree", "path", h.modulesPath)
	}
}

// UpdateRepository replaces one module repository from an uploaded zip
// and signals workers through the updates singleton.
// PUT /modules/repository/{id}/update
func (h *Handler) UpdateRepository(c *gin.Context) {
	handle(c, h.updateRepository)
}

func (h *Handler) updateRepository(c *gin.Context) (interface{}, error) {
	if h.modulesPath == "" {
		return nil, errors.NewNotFound("no module tree configured")
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, errors.NewBadRequest("invalid zip payload: %v", err)
	}

	target := filepath.Join(h.modulesPath, filepath.Base(c.Param("id")))
	for _, entry := range archive.File {
		name := filepath.Clean(filepath.FromSlash(entry.Name))
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return nil, errors.NewBadRequest("zip entry escapes the repository: %s", entry.Name)
		}
		dst := filepath.Join(target, name)
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := extractEntry(entry, dst); err != nil {
			return nil, err
		}
	}
	return nil, h.db.TouchInternal(c.Request.Context(), worker.UpdatesInternal)
}

func extractEntry(entry *zip.File, dst string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
