/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/config"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	commonklog "github.com/certsocietegenerale/fame/pkg/klog"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/options"
	"github.com/certsocietegenerale/fame/pkg/queue"
	"github.com/certsocietegenerale/fame/pkg/storage"
	"github.com/certsocietegenerale/fame/pkg/trace"
)

// Server is the orchestrator process: it owns the database client, the
// task queue, the file store and the HTTP surface workers talk to.
type Server struct {
	opts       *options.Options
	httpServer *http.Server
	ctx        context.Context
	stop       context.CancelFunc
	isInited   bool
}

// NewServer creates and initializes the orchestrator server.
func NewServer() (*Server, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &Server{
		opts: &options.Options{},
		ctx:  ctx,
		stop: stop,
	}
	if err := s.init(); err != nil {
		stop()
		return nil, err
	}
	return s, nil
}

// init performs flag parsing, logging and configuration setup, then wires
// the storage, queue and analysis layers together.
func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	var err error
	if err = s.opts.InitFlags(); err != nil {
		klog.ErrorS(err, "failed to parse flags")
		return err
	}
	if err = commonklog.Init(s.opts.LogfilePath, s.opts.LogFileSize); err != nil {
		klog.ErrorS(err, "failed to init logs")
		return err
	}
	if err = s.initConfig(); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}
	if err = trace.InitTracer("fame-server"); err != nil {
		klog.Warningf("failed to init tracer: %v", err)
	}

	db := client.NewClient()
	if db == nil {
		return fmt.Errorf("failed to init the database client")
	}
	q, err := queue.NewRedisQueue(s.ctx)
	if err != nil {
		klog.ErrorS(err, "failed to init the task queue")
		return err
	}

	var archiver storage.Archiver
	if config.IsS3Enable() {
		if archiver, err = storage.NewS3Archiver(s.ctx); err != nil {
			klog.ErrorS(err, "failed to init the s3 archiver")
			return err
		}
	}
	store, err := storage.New(config.GetStoragePath(), config.GetTempPath(), archiver)
	if err != nil {
		klog.ErrorS(err, "failed to init the file store")
		return err
	}

	registry := module.Default()
	if err = module.SyncRegistry(s.ctx, db, registry); err != nil {
		klog.ErrorS(err, "failed to sync the module registry")
		return err
	}
	catalog, err := module.NewCatalog(s.ctx, db, registry)
	if err != nil {
		klog.ErrorS(err, "failed to build the module catalog")
		return err
	}
	service := analysis.New(db, q, store, catalog)

	if config.GetServerPort() <= 0 {
		return fmt.Errorf("the server port is not defined")
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GetServerPort()),
		Handler: InitHTTPHandlers(service, store, config.GetModulesPath()),
	}
	s.isInited = true
	return nil
}

func (s *Server) initConfig() error {
	fullPath, err := filepath.Abs(s.opts.Config)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}
	return nil
}

// Start runs the HTTP server until a termination signal arrives.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init the server first")
		return
	}
	klog.Infof("http-server listen port: %d", config.GetServerPort())
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http server")
			os.Exit(-1)
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

// Stop gracefully shuts down the HTTP server and flushes logs.
func (s *Server) Stop() {
	defer s.stop()
	klog.Info("shutting down http server...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		klog.ErrorS(err, "failed to shutdown the http server")
	}
	if err := trace.CloseTracer(); err != nil {
		klog.ErrorS(err, "failed to close tracer")
	}
	klog.Info("server is stopped")
	klog.Flush()
}
