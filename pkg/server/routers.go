/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"github.com/gin-gonic/gin"
)

// InitServerRouters registers the orchestrator surface on the engine.
// Every route requires the worker API key.
func InitServerRouters(e *gin.Engine, h *Handler) {
	files := e.Group("/files", Authenticate())
	{
		files.POST("/", h.UploadFile)
		files.POST("/download", h.DownloadFile)
	}
	analyses := e.Group("/analyses", Authenticate())
	{
		analyses.POST("/", h.CreateAnalysis)
		analyses.POST("/:id/generated_file", h.UploadGeneratedFile)
		analyses.POST("/:id/support_file/:module", h.UploadSupportFile)
		analyses.GET("/:id/get_file/:hash", h.GetAnalysisFile)
	}
	modules := e.Group("/modules", Authenticate())
	{
		modules.GET("/download", h.DownloadModules)
		modules.PUT("/repository/:id/update", h.UpdateRepository)
	}
}
