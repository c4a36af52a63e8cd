/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package agent

import (
	"github.com/gin-gonic/gin"
)

// InitAgentRouters registers the agent surface on the engine.
func InitAgentRouters(e *gin.Engine, h *Handler) {
	e.GET("/ready", h.Ready)
	e.GET("/new_task", h.NewTask)
	group := e.Group("/:task")
	{
		group.POST("/module_update", h.ModuleUpdate)
		group.POST("/module_update_info", h.ModuleUpdateInfo)
		group.POST("/module_each/:type", h.ModuleEach)
		group.GET("/ready", h.TaskReady)
		group.GET("/results", h.Results)
		group.POST("/get_file", h.GetFile)
	}
}
