/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

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

// Server is the worker process wrapper: it parses flags, loads the
// configuration and runs one Worker until a termination signal arrives.
type Server struct {
	opts *options.Options

	concurrency     int
	refreshInterval int
	remote          bool

	worker   *Worker
	ctx      context.Context
	stop     context.CancelFunc
	isInited bool
}

// NewServer creates and initializes the worker server. Queue names are
// positional arguments; without any the worker consumes the default queue
// of the current platform.
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

func (s *Server) init() error {
	flag.IntVar(&s.concurrency, "concurrency", 4, "How many module tasks may run at once")
	flag.IntVar(&s.refreshInterval, "refresh_interval", 0,
		"Seconds between module update checks. 0 uses the configured interval.")
	flag.BoolVar(&s.remote, "remote", false,
		"Fetch and push files through the server API instead of the shared store")
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
	if err = trace.InitTracer("fame-worker"); err != nil {
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
	if config.IsS3Enable() && !s.remote {
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

	refresh := s.refreshInterval
	if refresh <= 0 {
		refresh = config.GetWorkerRefreshIntervalSecond()
	}
	opts := Options{
		Queues:          defaultQueues(flag.Args()),
		Concurrency:     s.concurrency,
		RefreshInterval: time.Duration(refresh) * time.Second,
		ModulesPath:     config.GetModulesPath(),
		CleanTemp:       !s.remote && config.IsWorkerTempCleanEnable(),
	}
	if s.remote {
		opts.Files, err = s.remoteFiles()
		if err != nil {
			klog.ErrorS(err, "failed to init the remote file strategy")
			return err
		}
	}
	if s.worker, err = New(s.ctx, db, q, store, module.Default(), opts); err != nil {
		klog.ErrorS(err, "failed to init the worker")
		return err
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

func (s *Server) remoteFiles() (analysis.FileStrategy, error) {
	serverURL := config.GetServerURL()
	if serverURL == "" {
		return nil, fmt.Errorf("the server url is not defined")
	}
	cacheDir := filepath.Join(config.GetTempPath(), "remote-cache")
	return NewRemoteFiles(serverURL, config.GetServerAPIKey(), cacheDir)
}

// defaultQueues returns the queues from the command line, or the default
// queue of the current platform when none were given.
func defaultQueues(args []string) []string {
	if len(args) > 0 {
		return args
	}
	if runtime.GOOS == "windows" {
		return []string{"windows"}
	}
	return []string{module.DefaultQueue}
}

// Start consumes tasks until a termination signal arrives.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init the worker first")
		return
	}
	klog.Infof("worker consuming queues %v with concurrency %d", s.worker.opts.Queues, s.worker.opts.Concurrency)
	if err := s.worker.Run(s.ctx); err != nil && s.ctx.Err() == nil {
		klog.ErrorS(err, "worker stopped with error")
	}
	s.Stop()
}

// Stop flushes logs and releases the signal handler.
func (s *Server) Stop() {
	defer s.stop()
	if err := trace.CloseTracer(); err != nil {
		klog.ErrorS(err, "failed to close tracer")
	}
	klog.Info("worker is stopped")
	klog.Flush()
}
