/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package agent is the HTTP server preinstalled in module VM images. It
// runs one module execution at a time against a buffered context and ships
// the accumulated outputs back to the worker.
package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/isolated"
	"github.com/certsocietegenerale/fame/pkg/module"
)

// Handler serves the agent protocol. A single task is active at any
// moment; requests scoped to any other task id are rejected with 403.
type Handler struct {
	registry *module.Registry
	workDir  string

	mu   sync.Mutex
	task *task
}

type task struct {
	id       string
	dir      string
	info     *isolated.ModuleInfo
	instance module.Processor
	buffer   *Buffer
	running  bool
	results  json.RawMessage
	restore  bool
}

// NewHandler creates a handler executing modules from registry, with
// workDir as scratch space for uploads.
func NewHandler(registry *module.Registry, workDir string) (*Handler, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	return &Handler{registry: registry, workDir: workDir}, nil
}

type handleFunc func(*gin.Context) (interface{}, error)

func handle(c *gin.Context, fn handleFunc) {
	response, err := fn(c)
	if err != nil {
		c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if response == nil {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Ready answers the health probe the worker uses to decide whether the VM
// needs a restore.
func (h *Handler) Ready(c *gin.Context) {
	c.Status(http.StatusOK)
}

// NewTask opens a fresh task scope, invalidating the previous one.
// GET /new_task
func (h *Handler) NewTask(c *gin.Context) {
	handle(c, h.newTask)
}

func (h *Handler) newTask(*gin.Context) (interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.task != nil && h.task.running {
		return nil, errors.NewBadRequest("a task is already executing")
	}
	id := uuid.NewString()
	dir := filepath.Join(h.workDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	h.task = &task{id: id, dir: dir}
	return gin.H{"task_id": id}, nil
}

// currentTask resolves the task the request is scoped to.
func (h *Handler) currentTask(c *gin.Context) (*task, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.task == nil || h.task.id != c.Param("task") {
		return nil, errors.NewForbidden("not the active task")
	}
	return h.task, nil
}

// ModuleUpdate receives the module asset archive. The agent executes from
// its compiled registry; the upload is kept next to the task for audit.
// POST /{task}/module_update
func (h *Handler) ModuleUpdate(c *gin.Context) {
	handle(c, h.moduleUpdate)
}

func (h *Handler) moduleUpdate(c *gin.Context) (interface{}, error) {
	t, err := h.currentTask(c)
	if err != nil {
		return nil, err
	}
	upload, err := c.FormFile("file")
	if err != nil {
		return nil, errors.NewBadRequest("missing file: %v", err)
	}
	dst := filepath.Join(t.dir, filepath.Base(upload.Filename))
	if err := c.SaveUploadedFile(upload, dst); err != nil {
		return nil, err
	}
	return nil, nil
}

// ModuleUpdateInfo selects and configures the module for this task.
// POST /{task}/module_update_info
func (h *Handler) ModuleUpdateInfo(c *gin.Context) {
	handle(c, h.moduleUpdateInfo)
}

func (h *Handler) moduleUpdateInfo(c *gin.Context) (interface{}, error) {
	t, err := h.currentTask(c)
	if err != nil {
		return nil, err
	}
	info := &isolated.ModuleInfo{}
	if err := c.ShouldBindJSON(info); err != nil {
		return nil, errors.NewBadRequest("invalid module info: %v", err)
	}
	registration, ok := h.registry.Get(info.Name)
	if !ok {
		return nil, errors.NewNotFound("module %s is not registered in this agent", info.Name)
	}
	instance := registration.Factory()
	if err := instance.Init(&module.Settings{Values: info.Config, Named: info.Named}); err != nil {
		return nil, errors.NewModuleInitializationError(info.Name, err.Error())
	}
	processor, ok := instance.(module.Processor)
	if !ok {
		return nil, errors.NewBadRequest("module %s cannot execute in a vm", info.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	t.info = info
	t.instance = processor
	t.buffer = NewBuffer(t.id, info.Config)
	return nil, nil
}

// ModuleEach starts the module against one target. The execution runs in
// its own goroutine; the worker polls the ready endpoint.
// POST /{task}/module_each/{type}
func (h *Handler) ModuleEach(c *gin.Context) {
	handle(c, h.moduleEach)
}

func (h *Handler) moduleEach(c *gin.Context) (interface{}, error) {
	t, err := h.currentTask(c)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	ready := t.instance != nil && !t.running
	h.mu.Unlock()
	if !ready {
		return nil, errors.NewBadRequest("task has no configured module or is already executing")
	}

	fileType := c.Param("type")
	target := c.PostForm("data")
	if upload, err := c.FormFile("file"); err == nil {
		dst := filepath.Join(t.dir, filepath.Base(upload.Filename))
		if err := c.SaveUploadedFile(upload, dst); err != nil {
			return nil, err
		}
		target = dst
	}
	if target == "" {
		return nil, errors.NewBadRequest("no target file or data given")
	}

	h.mu.Lock()
	t.running = true
	h.mu.Unlock()
	go h.run(t, target, fileType)
	return nil, nil
}

// run executes the module in the background. Failures request a snapshot
// restore: a module that crashed may have left the machine dirty.
func (h *Handler) run(t *task, target, fileType string) {
	defer func() {
		if p := recover(); p != nil {
			t.buffer.Log("error", "module execution panicked: %v", p)
			h.mu.Lock()
			t.restore = true
			h.mu.Unlock()
		}
		h.mu.Lock()
		t.running = false
		h.mu.Unlock()
	}()

	result, acted, err := t.instance.Each(context.Background(), t.buffer, target, fileType)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		t.buffer.Log("error", "error running module '%s' on '%s': %v", t.info.Name, target, err)
		t.restore = true
	}
	if acted {
		t.buffer.setResult(true)
		if result != nil {
			if data, err := json.Marshal(result); err == nil {
				t.results = data
			} else {
				klog.ErrorS(err, "failed to serialize module result", "module", t.info.Name)
			}
		}
	}
}

// TaskReady reports whether the current execution finished.
// GET /{task}/ready
func (h *Handler) TaskReady(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		t, err := h.currentTask(c)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		return gin.H{"ready": !t.running}, nil
	})
}

// Results returns the terminal payload of the task.
// GET /{task}/results
func (h *Handler) Results(c *gin.Context) {
	handle(c, h.results)
}

func (h *Handler) results(c *gin.Context) (interface{}, error) {
	t, err := h.currentTask(c)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.running {
		return nil, errors.NewBadRequest("task is still executing")
	}
	if t.buffer == nil {
		return nil, errors.NewBadRequest("task never executed a module")
	}
	return &isolated.TaskResults{
		Results:       t.results,
		Buffered:      t.buffer.Snapshot(),
		ShouldRestore: t.restore,
	}, nil
}

// GetFile streams a VM-local artifact referenced by the results payload.
// POST /{task}/get_file
func (h *Handler) GetFile(c *gin.Context) {
	if _, err := h.currentTask(c); err != nil {
		c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	path := c.PostForm("filepath")
	if path == "" {
		err := errors.NewBadRequest("missing filepath")
		c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if _, err := os.Stat(path); err != nil {
		notFound := errors.NewNotFound("no such file: %s", path)
		c.AbortWithStatusJSON(errors.HTTPStatus(notFound), gin.H{"error": notFound.Error()})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
