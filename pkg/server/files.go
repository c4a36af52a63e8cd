/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

// UploadFile registers new file content. Content already known by hash is
// not duplicated; the existing record is returned.
// POST /files/
func (h *Handler) UploadFile(c *gin.Context) {
	handle(c, h.uploadFile)
}

func (h *Handler) uploadFile(c *gin.Context) (interface{}, error) {
	upload, err := c.FormFile("file")
	if err != nil {
		return nil, errors.NewBadRequest("missing file: %v", err)
	}
	src, err := upload.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	f, existing, err := h.service.SubmitFile(c.Request.Context(), upload.Filename, src, nil, "")
	if err != nil {
		return nil, err
	}
	return gin.H{"file": f, "existing": existing}, nil
}

// DownloadFile streams stored content to a remote worker.
// POST /files/download
func (h *Handler) DownloadFile(c *gin.Context) {
	var req struct {
		Filepath string `json:"filepath" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.NewBadRequest("invalid request: %v", err))
		return
	}
	path, err := h.resolvePath(req.Filepath)
	if err != nil {
		abortWithError(c, err)
		return
	}
	local, err := h.retrieve(c, path)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.FileAttachment(local, filepath.Base(local))
}
