/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"encoding/json"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// CreateAnalysis submits a file or a hash and starts its analysis.
// POST /analyses/
func (h *Handler) CreateAnalysis(c *gin.Context) {
	handle(c, h.createAnalysis)
}

func (h *Handler) createAnalysis(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	groups := utils.ListValue(c.PostForm("groups"))
	modules := utils.ListValue(c.PostForm("modules"))
	analyst := c.PostForm("analyst")

	options := map[string]interface{}{}
	if raw := c.PostForm("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &options); err != nil {
			return nil, errors.NewBadRequest("invalid options: %v", err)
		}
	}

	var f *client.File
	var err error
	if upload, formErr := c.FormFile("file"); formErr == nil {
		src, openErr := upload.Open()
		if openErr != nil {
			return nil, openErr
		}
		defer src.Close()
		f, _, err = h.service.SubmitFile(ctx, upload.Filename, src, groups, analyst)
	} else if hash := c.PostForm("hash"); hash != "" {
		f, _, err = h.service.SubmitHash(ctx, hash, groups, analyst)
	} else {
		return nil, errors.NewBadRequest("either a file or a hash is required")
	}
	if err != nil {
		return nil, err
	}

	a, err := h.service.Analyze(ctx, f, groups, analyst, modules, options)
	if err != nil {
		return nil, err
	}
	return gin.H{"analysis": a}, nil
}

// UploadGeneratedFile stores a produced artifact in the analysis scratch
// directory and returns its canonical path.
// POST /analyses/{id}/generated_file
func (h *Handler) UploadGeneratedFile(c *gin.Context) {
	handle(c, h.uploadGeneratedFile)
}

func (h *Handler) uploadGeneratedFile(c *gin.Context) (interface{}, error) {
	upload, err := c.FormFile("file")
	if err != nil {
		return nil, errors.NewBadRequest("missing file: %v", err)
	}
	src, err := upload.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	path, err := h.store.StoreGeneratedFile(c.Param("id"), upload.Filename, src)
	if err != nil {
		return nil, err
	}
	return gin.H{"path": path}, nil
}

// UploadSupportFile stores a module by-product and returns its stored
// name.
// POST /analyses/{id}/support_file/{module}
func (h *Handler) UploadSupportFile(c *gin.Context) {
	handle(c, h.uploadSupportFile)
}

func (h *Handler) uploadSupportFile(c *gin.Context) (interface{}, error) {
	upload, err := c.FormFile("file")
	if err != nil {
		return nil, errors.NewBadRequest("missing file: %v", err)
	}
	src, err := upload.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	name, _, err := h.store.StoreSupportFile(c.Param("module"), c.Param("id"), upload.Filename, src)
	if err != nil {
		return nil, err
	}
	return gin.H{"name": name}, nil
}

// GetAnalysisFile downloads one file of an analysis, addressed by the md5
// of its original path.
// GET /analyses/{id}/get_file/{hash}
func (h *Handler) GetAnalysisFile(c *gin.Context) {
	ctx := c.Request.Context()
	a, err := h.db.GetAnalysis(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	hash := c.Param("hash")
	for _, path := range h.analysisPaths(c, a) {
		if utils.MD5String(path) != hash {
			continue
		}
		local, err := h.retrieve(c, path)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.FileAttachment(local, filepath.Base(path))
		return
	}
	abortWithError(c, errors.NewNotFound("analysis has no file with digest %s", hash))
}

// analysisPaths collects every path an analysis may legitimately hand
// out: its main file, its generated artifacts and its support files.
func (h *Handler) analysisPaths(c *gin.Context, a *client.Analysis) []string {
	var paths []string
	if f, err := h.db.GetFile(c.Request.Context(), a.FileId); err == nil && f.FilePath.Valid {
		paths = append(paths, f.FilePath.String)
	}
	generated := map[string][]string{}
	if len(a.GeneratedFiles) > 0 {
		if err := json.Unmarshal(a.GeneratedFiles, &generated); err == nil {
			for _, list := range generated {
				paths = append(paths, list...)
			}
		}
	}
	support := map[string][]string{}
	if len(a.SupportFiles) > 0 {
		if err := json.Unmarshal(a.SupportFiles, &support); err == nil {
			for moduleName, names := range support {
				for _, name := range names {
					paths = append(paths, h.store.SupportFilePath(moduleName, a.Id, name))
				}
			}
		}
	}
	return paths
}
