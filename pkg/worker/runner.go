/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package worker consumes module tasks from the queues and executes them,
// locally or against the orchestrator for remote deployments.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/isolated"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/queue"
)

// Runner executes one task at a time against an analysis service.
type Runner struct {
	service  *analysis.Service
	isolated *isolated.Runner
}

// NewRunner creates a runner bound to the given service.
func NewRunner(service *analysis.Service) *Runner {
	return &Runner{service: service}
}

// WithIsolated enables VM execution for modules declaring one.
func (r *Runner) WithIsolated(iso *isolated.Runner) *Runner {
	r.isolated = iso
	return r
}

// RunModule executes one queued module. The executed set works as the
// claim: whoever appends the module name first runs it, every later
// delivery is a no-op. The analysis always resumes afterwards, whatever
// the outcome.
func (r *Runner) RunModule(ctx context.Context, task *queue.Task) error {
	svc := r.service
	db := svc.Store()

	a, err := db.GetAnalysis(ctx, task.AnalysisId)
	if err != nil {
		return err
	}
	claimed, err := db.AddAnalysisToSet(ctx, a.Id, client.AnalysisExecutedModules, task.Module)
	if err != nil {
		return err
	}
	if !claimed {
		klog.V(2).Infof("module %s already ran for analysis %s", task.Module, a.Id)
		return r.finish(ctx, a.Id, task.Module)
	}

	entry, ok := svc.Catalog().Entry(task.Module)
	if !ok {
		r.demote(ctx, a.Id, task.Module, "module has been removed or disabled.")
		return r.finish(ctx, a.Id, task.Module)
	}
	instance, err := svc.Catalog().NewInstance(entry, svc.Options(a))
	if err != nil {
		r.demote(ctx, a.Id, task.Module, err.Error())
		return r.finish(ctx, a.Id, task.Module)
	}

	if task.Preload {
		if _, err := db.UpdateAnalysisStatusIf(ctx, a.Id,
			[]string{client.AnalysisStatusPending}, client.AnalysisStatusPreloading); err != nil {
			return err
		}
	} else {
		if _, err := db.UpdateAnalysisStatusIf(ctx, a.Id,
			[]string{client.AnalysisStatusPending, client.AnalysisStatusPreloading},
			client.AnalysisStatusRunning); err != nil {
			return err
		}
	}

	f, err := db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	runCtx := analysis.NewRunContext(ctx, svc, a, task.Module)

	if runErr := r.execute(ctx, entry, instance, a, f, task, runCtx); runErr != nil {
		r.demote(ctx, a.Id, task.Module, runErr.Error())
	} else {
		svc.Log(ctx, a.Id, "debug", "Done with module '%s'", task.Module)
	}
	return r.finish(ctx, a.Id, task.Module)
}

// execute dispatches to the module kind. A panic inside module code is
// turned into a module execution error carrying the stack.
func (r *Runner) execute(ctx context.Context, entry *module.Entry, instance module.Module,
	a *client.Analysis, f *client.File, task *queue.Task, runCtx *analysis.RunContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.NewModuleExecutionError(task.Module, fmt.Errorf("panic: %v\n%s", p, debug.Stack()))
		}
	}()

	svc := r.service
	if entry.Info.VM != nil {
		if r.isolated == nil {
			return errors.NewModuleExecutionError(task.Module,
				fmt.Errorf("no isolated runner available for vm module"))
		}
		return r.isolated.Run(ctx, entry, a, f, runCtx)
	}

	switch m := instance.(type) {
	case module.Preloader:
		// A preloader coming up empty is not a failure, the next one in
		// line gets its turn through resume.
		done, err := m.Preload(ctx, runCtx, svc.MainFile(f))
		if err != nil {
			return err
		}
		if !done {
			svc.Log(ctx, a.Id, "debug", "module '%s' found nothing for '%s'", task.Module, svc.MainFile(f))
		}
		return nil

	case module.Processor:
		return r.runProcessor(ctx, entry, m, a, f, task.Module, runCtx)

	case module.AntivirusScanner:
		local, err := svc.LocalPath(ctx, svc.MainFile(f))
		if err != nil {
			return err
		}
		result, err := m.ScanFile(ctx, local)
		if err != nil {
			return err
		}
		return svc.RecordAntivirusResult(ctx, f.Id, task.Module, result)

	default:
		return errors.NewModuleExecutionError(task.Module, fmt.Errorf("module kind cannot run as a task"))
	}
}

// runProcessor runs a processing module over every file it acts on. One
// failing target does not stop the others. When the module acted on any
// target its result document is stored and the module name becomes a tag,
// along with name(tag) for each tag the module declared.
func (r *Runner) runProcessor(ctx context.Context, entry *module.Entry, m module.Processor,
	a *client.Analysis, f *client.File, name string, runCtx *analysis.RunContext) error {
	svc := r.service

	types := entry.Record.ActsOn
	if len(types) == 0 {
		types = []string{f.Type}
	}

	acted := false
	var result interface{}
	for _, fileType := range types {
		for _, path := range svc.GetFiles(a, f, fileType) {
			local, err := svc.LocalPath(ctx, path)
			if err != nil {
				svc.Log(ctx, a.Id, "error", "error running module '%s' on '%s': %v", name, path, err)
				continue
			}
			res, ok, err := m.Each(ctx, runCtx, local, fileType)
			if err != nil {
				svc.Log(ctx, a.Id, "error", "error running module '%s' on '%s': %v", name, path, err)
				continue
			}
			if ok {
				acted = true
				if res != nil {
					result = res
				}
			}
		}
	}

	if !acted {
		return nil
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if err := svc.Store().SetAnalysisResult(ctx, a.Id, name, data); err != nil {
			return err
		}
	}
	if err := svc.AddTag(ctx, a.Id, name); err != nil {
		return err
	}
	for _, tag := range runCtx.DeclaredTags() {
		if err := svc.AddTag(ctx, a.Id, fmt.Sprintf("%s(%s)", name, tag)); err != nil {
			return err
		}
	}
	return nil
}

// demote records a module failure. The executed claim stays: a failed
// module is both executed and canceled and is never queued again.
func (r *Runner) demote(ctx context.Context, analysisId, name, reason string) {
	r.service.ErrorWithModule(ctx, analysisId, name, reason)
}

// finish clears the scheduling state of the module and resumes the
// analysis.
func (r *Runner) finish(ctx context.Context, analysisId, name string) error {
	db := r.service.Store()
	if _, err := db.RemoveAnalysisFromSet(ctx, analysisId, client.AnalysisPendingModules, name); err != nil {
		return err
	}
	if _, err := db.RemoveAnalysisFromSet(ctx, analysisId, client.AnalysisWaitingModules, name); err != nil {
		return err
	}
	return r.service.Resume(ctx, analysisId)
}
