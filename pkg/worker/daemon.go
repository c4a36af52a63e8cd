/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/isolated"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/queue"
	"github.com/certsocietegenerale/fame/pkg/storage"
)

// UpdatesInternal is the singleton row the orchestrator touches whenever
// module code or configuration changes. Workers poll it and rebuild their
// catalog when it advances.
const UpdatesInternal = "updates"

// tempMaxAge is how old scratch entries may get before the cleaner removes
// them.
const tempMaxAge = 7 * 24 * time.Hour

// popTimeout bounds one blocking queue read so the consumer notices
// catalog reloads and shutdown.
const popTimeout = 30 * time.Second

// Options configures one worker daemon.
type Options struct {
	// Queues to consume, in priority order.
	Queues []string
	// Concurrency is how many tasks may run at once.
	Concurrency int
	// RefreshInterval is how often the updates singleton is polled.
	RefreshInterval time.Duration
	// ModulesPath holds per-module assets and install scripts.
	ModulesPath string
	// CleanTemp enables the hourly scratch cleaner. Only workers local
	// to the store should run it.
	CleanTemp bool
	// Files overrides the file strategy; nil means direct store access.
	Files analysis.FileStrategy
}

// Worker consumes module tasks until its context is cancelled. The
// analysis service is swapped atomically on catalog reloads, in-flight
// tasks keep the service they started with.
type Worker struct {
	db       client.Interface
	queue    queue.Interface
	store    *storage.Store
	registry *module.Registry
	opts     Options

	mu         sync.RWMutex
	runner     *Runner
	lastUpdate time.Time
}

// New builds a worker and its first catalog generation.
func New(ctx context.Context, db client.Interface, q queue.Interface, store *storage.Store,
	registry *module.Registry, opts Options) (*Worker, error) {
	if len(opts.Queues) == 0 {
		return nil, errors.NewBadRequest("worker needs at least one queue")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	w := &Worker{db: db, queue: q, store: store, registry: registry, opts: opts}
	if err := w.rebuild(ctx); err != nil {
		return nil, err
	}
	if internal, err := db.GetInternal(ctx, UpdatesInternal); err == nil && internal.LastUpdate.Valid {
		w.lastUpdate = internal.LastUpdate.Time
	}
	return w, nil
}

// Run consumes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.opts.CleanTemp {
		c := cron.New()
		if _, err := c.AddFunc("@hourly", func() {
			if err := w.store.CleanTemp(tempMaxAge); err != nil {
				klog.ErrorS(err, "temp cleanup failed")
			}
		}); err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	if w.opts.RefreshInterval > 0 {
		go w.watchUpdates(ctx)
	}

	klog.Infof("worker consuming queues %v with concurrency %d", w.opts.Queues, w.opts.Concurrency)
	sem := make(chan struct{}, w.opts.Concurrency)
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		default:
		}
		task, queueName, err := w.queue.Pop(ctx, w.opts.Queues, popTimeout)
		if err != nil {
			klog.ErrorS(err, "failed to pop task")
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if task == nil {
			continue
		}
		klog.V(2).Infof("task %s/%s from queue %s", task.AnalysisId, task.Module, queueName)
		sem <- struct{}{}
		wg.Add(1)
		runner := w.currentRunner()
		go func(task *queue.Task) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := runner.RunModule(ctx, task); err != nil {
				klog.ErrorS(err, "task failed", "analysis", task.AnalysisId, "module", task.Module)
			}
		}(task)
	}
}

func (w *Worker) currentRunner() *Runner {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.runner
}

// watchUpdates polls the updates singleton and reloads the catalog when it
// advances.
func (w *Worker) watchUpdates(ctx context.Context) {
	ticker := time.NewTicker(w.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		internal, err := w.db.GetInternal(ctx, UpdatesInternal)
		if err != nil {
			if !errors.IsNotFound(err) {
				klog.ErrorS(err, "failed to check for module updates")
			}
			continue
		}
		if !internal.LastUpdate.Valid || !internal.LastUpdate.Time.After(w.lastUpdate) {
			continue
		}
		klog.Infof("module updates detected, reloading catalog")
		w.runInstallScripts(ctx)
		if err := w.rebuild(ctx); err != nil {
			klog.ErrorS(err, "catalog reload failed")
			continue
		}
		w.lastUpdate = internal.LastUpdate.Time
	}
}

// runInstallScripts executes each module's install script before the new
// catalog takes over, so module dependencies are in place.
func (w *Worker) runInstallScripts(ctx context.Context) {
	if w.opts.ModulesPath == "" {
		return
	}
	entries, err := os.ReadDir(w.opts.ModulesPath)
	if err != nil {
		klog.ErrorS(err, "failed to list module directories", "path", w.opts.ModulesPath)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		script := filepath.Join(w.opts.ModulesPath, entry.Name(), "install.sh")
		if _, err := os.Stat(script); err != nil {
			continue
		}
		cmd := exec.CommandContext(ctx, script)
		cmd.Dir = filepath.Dir(script)
		if out, err := cmd.CombinedOutput(); err != nil {
			klog.ErrorS(err, "install script failed", "module", entry.Name(), "output", string(out))
		}
	}
}

// rebuild creates a fresh catalog generation and swaps the runner.
func (w *Worker) rebuild(ctx context.Context) error {
	catalog, err := module.NewCatalog(ctx, w.db, w.registry)
	if err != nil {
		return err
	}
	service := analysis.New(w.db, w.queue, w.store, catalog)
	if w.opts.Files != nil {
		service = service.WithFiles(w.opts.Files)
	}
	iso := isolated.NewRunner(w.db, service)
	iso.ModulesPath = w.opts.ModulesPath
	w.mu.Lock()
	w.runner = NewRunner(service).WithIsolated(iso)
	w.mu.Unlock()
	return nil
}
