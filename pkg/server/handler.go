/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package server is the orchestrator's HTTP surface: file submission and
// retrieval for remote workers, analysis creation, and module tree
// distribution.
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/config"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/storage"
	"github.com/certsocietegenerale/fame/pkg/trace"
)

// Handler serves the orchestrator API.
type Handler struct {
	service     *analysis.Service
	db          client.Interface
	store       *storage.Store
	modulesPath string
}

// NewHandler creates the orchestrator handler.
func NewHandler(service *analysis.Service, store *storage.Store, modulesPath string) *Handler {
	return &Handler{
		service:     service,
		db:          service.Store(),
		store:       store,
		modulesPath: modulesPath,
	}
}

// InitHTTPHandlers builds the engine with authentication and all routes.
func InitHTTPHandlers(service *analysis.Service, store *storage.Store, modulesPath string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	if config.IsTracingEnable() {
		engine.Use(trace.Middleware("fame-server"))
	}
	engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": c.Request.RequestURI + " not found"})
	})
	InitServerRouters(engine, NewHandler(service, store, modulesPath))
	return engine
}

type handleFunc func(*gin.Context) (interface{}, error)

func handle(c *gin.Context, fn handleFunc) {
	response, err := fn(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if response == nil {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, response)
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{"error": err.Error()})
}

// Authenticate verifies the worker API key.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := config.GetServerAPIKey()
		if key == "" || c.GetHeader("X-API-KEY") != key {
			abortWithError(c, errors.NewUnauthorized("invalid api key"))
			return
		}
		c.Next()
	}
}

// resolvePath validates that a requested file path lives under one of the
// store's roots.
func (h *Handler) resolvePath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	for _, root := range []string{h.store.Root(), h.store.TempRoot()} {
		if strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return cleaned, nil
		}
	}
	return "", errors.NewForbidden("path is outside the store")
}

// retrieve makes sure the content behind a validated path is present
// locally, pulling archived permanent files back when needed.
func (h *Handler) retrieve(c *gin.Context, path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	rel, err := filepath.Rel(h.store.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.NewNotFound("no such file: %s", path)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return "", errors.NewNotFound("no such file: %s", path)
	}
	return h.store.RetrieveFile(c.Request.Context(), parts[0], parts[1])
}
