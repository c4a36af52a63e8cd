/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package agent

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/config"
	commonklog "github.com/certsocietegenerale/fame/pkg/klog"
	"github.com/certsocietegenerale/fame/pkg/module"
)

// Server is the in-VM agent process. It runs inside the analysis machine
// image and has no configuration file: everything it needs comes from
// flags and the driving worker.
type Server struct {
	port    int
	workDir string

	httpServer *http.Server
	ctx        context.Context
	stop       context.CancelFunc
	isInited   bool
}

// NewServer creates and initializes the agent server.
func NewServer() (*Server, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &Server{
		ctx:  ctx,
		stop: stop,
	}
	if err := s.init(); err != nil {
		stop()
		return nil, err
	}
	return s, nil
}

func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	flag.IntVar(&s.port, "port", config.GetAgentPort(), "Agent listen port")
	flag.StringVar(&s.workDir, "work_dir", filepath.Join(os.TempDir(), "fame-agent"),
		"Directory task targets and module payloads are written to")
	// Parses the flags as a side effect.
	if err := commonklog.Init("", 0); err != nil {
		klog.ErrorS(err, "failed to init logs")
		return err
	}
	if s.port <= 0 {
		return fmt.Errorf("the agent port is not defined")
	}

	handler, err := NewHandler(module.Default(), s.workDir)
	if err != nil {
		klog.ErrorS(err, "failed to init the agent handler")
		return err
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": c.Request.RequestURI + " not found"})
	})
	InitAgentRouters(engine, handler)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: engine,
	}
	s.isInited = true
	return nil
}

// Start runs the agent until a termination signal arrives.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init the agent first")
		return
	}
	klog.Infof("agent listen port: %d", s.port)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http server")
			os.Exit(-1)
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() {
	defer s.stop()
	klog.Info("shutting down agent...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		klog.ErrorS(err, "failed to shutdown the http server")
	}
	klog.Info("agent is stopped")
	klog.Flush()
}
