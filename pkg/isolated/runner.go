/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package isolated

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

const (
	// readyPoll is the interval between readiness probes, for both the
	// restoring VM and the executing agent task.
	readyPoll = 5 * time.Second
	// restoreTimeout bounds how long a VM may take to come back after a
	// snapshot restore.
	restoreTimeout = 120 * time.Second
)

// Runner executes one module inside a locked virtual machine through the
// in-VM agent.
type Runner struct {
	service *analysis.Service
	locks   *LockManager

	// ModulesPath, when set, is searched for per-module asset archives
	// ({name}.zip) uploaded to the agent for audit.
	ModulesPath string
}

// NewRunner creates an isolated runner bound to the analysis service.
func NewRunner(db client.Interface, service *analysis.Service) *Runner {
	return &Runner{service: service, locks: NewLockManager(db)}
}

// Locks exposes the lock manager, mainly so daemons can tune its timing.
func (r *Runner) Locks() *LockManager {
	return r.locks
}

// Run executes the module of entry against the analysis inside one of its
// declared virtual machines. It blocks until a VM lock is won, drives the
// whole agent protocol, replays the buffered outputs onto the analysis and
// handles the VM lifecycle afterwards.
func (r *Runner) Run(ctx context.Context, entry *module.Entry, a *client.Analysis,
	f *client.File, run *analysis.RunContext) error {
	vm := entry.Info.VM
	name := entry.Record.Name

	slots, err := parseSlots(name, vm)
	if err != nil {
		return err
	}
	drvEntry, ok := r.service.Catalog().VirtualizationEntry(vm.Driver)
	if !ok {
		return errors.NewModuleExecutionError(name,
			fmt.Errorf("virtualization driver %q is not enabled", vm.Driver))
	}

	slot, err := r.locks.Acquire(ctx, vm.Driver, slots)
	if err != nil {
		return err
	}
	defer r.locks.Release(ctx, vm.Driver, slot.Label)
	klog.V(2).Infof("module %s running on %s/%s", name, vm.Driver, slot.Label)

	instance, err := r.service.Catalog().NewInstance(drvEntry, nil)
	if err != nil {
		return err
	}
	drv, ok := instance.(module.Virtualizer)
	if !ok {
		return errors.NewModuleExecutionError(name,
			fmt.Errorf("module %q is not a virtualization driver", vm.Driver))
	}
	if err := drv.Configure(slot.Label, slot.IP, slot.Port); err != nil {
		return err
	}

	agent := NewAgentClient("http://" + net.JoinHostPort(slot.IP, strconv.Itoa(slot.Port)))
	if err := r.prepare(ctx, drv, agent, vm.Snapshot); err != nil {
		return err
	}

	settings, err := r.service.Catalog().Settings(entry, r.service.Options(a))
	if err != nil {
		return err
	}
	task, err := agent.NewTask(ctx)
	if err != nil {
		return err
	}
	if archive := r.moduleArchive(name); archive != "" {
		if err := agent.ModuleUpdate(ctx, task, archive); err != nil {
			return err
		}
	}
	info := &ModuleInfo{Name: name, Config: settings.Values, Named: settings.Named}
	if err := agent.ModuleUpdateInfo(ctx, task, info); err != nil {
		return err
	}

	types := entry.Record.ActsOn
	if len(types) == 0 {
		types = []string{f.Type}
	}
	for _, fileType := range types {
		for _, path := range r.service.GetFiles(a, f, fileType) {
			local, err := r.service.LocalPath(ctx, path)
			if err != nil {
				r.service.Log(ctx, a.Id, "error", "error running module '%s' on '%s': %v", name, path, err)
				continue
			}
			if err := agent.Each(ctx, task, fileType, local); err != nil {
				return err
			}
			if err := r.waitTask(ctx, agent, task); err != nil {
				return err
			}
		}
	}

	results, err := agent.Results(ctx, task)
	if err != nil {
		return err
	}
	if err := r.replay(ctx, run, agent, task, a, name, results); err != nil {
		return err
	}
	r.lifecycle(ctx, drv, vm, slot, name, results.ShouldRestore)
	return nil
}

// parseSlots expands the comma-delimited parallel label and address lists
// of a VM declaration.
func parseSlots(name string, vm *module.VMConfig) ([]Slot, error) {
	labels := utils.OrderedListValue(vm.Label)
	ips := utils.OrderedListValue(vm.IPAddress)
	if len(labels) == 0 {
		return nil, errors.NewModuleInitializationError(name, "no virtual machine label declared")
	}
	if len(labels) != len(ips) {
		return nil, errors.NewModuleInitializationError(name,
			"label and ip_address lists differ in length")
	}
	slots := make([]Slot, len(labels))
	for i := range labels {
		slots[i] = Slot{Label: labels[i], IP: ips[i], Port: vm.Port}
	}
	return slots, nil
}

func (r *Runner) moduleArchive(name string) string {
	if r.ModulesPath == "" {
		return ""
	}
	archive := filepath.Join(r.ModulesPath, name+".zip")
	if _, err := os.Stat(archive); err != nil {
		return ""
	}
	return archive
}

// prepare makes sure the VM runs and its agent answers. An unresponsive
// machine gets a full snapshot restore before any task is opened.
func (r *Runner) prepare(ctx context.Context, drv module.Virtualizer, agent *AgentClient, snapshot string) error {
	if err := drv.Prepare(ctx); err != nil {
		return err
	}
	if drv.IsReady(ctx) && agent.Ready(ctx) {
		return nil
	}
	return r.restore(ctx, drv, snapshot)
}

// restore runs the full stop / restore snapshot / start cycle and waits for
// the machine to come back.
func (r *Runner) restore(ctx context.Context, drv module.Virtualizer, snapshot string) error {
	if err := drv.Stop(ctx); err != nil {
		return err
	}
	if err := drv.RestoreSnapshot(ctx, snapshot); err != nil {
		return err
	}
	if err := drv.Start(ctx); err != nil {
		return err
	}
	wait := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(readyPoll), uint64(restoreTimeout/readyPoll)), ctx)
	return backoff.Retry(func() error {
		if drv.IsReady(ctx) {
			return nil
		}
		return errors.NewInternalError("virtual machine is not ready")
	}, wait)
}

// waitTask polls the agent until the current execution completes. The wait
// is unbounded; only ctx cancellation interrupts it.
func (r *Runner) waitTask(ctx context.Context, agent *AgentClient, task string) error {
	wait := backoff.WithContext(backoff.NewConstantBackOff(readyPoll), ctx)
	return backoff.Retry(func() error {
		ready, err := agent.TaskReady(ctx, task)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ready {
			return errors.NewInternalError("task still running")
		}
		return nil
	}, wait)
}

// replay applies everything the module accumulated inside the VM to the
// analysis. Artifact paths in the payload are VM-local and are fetched
// through the agent first.
func (r *Runner) replay(ctx context.Context, run *analysis.RunContext, agent *AgentClient,
	task string, a *client.Analysis, name string, results *TaskResults) error {
	svc := r.service
	buffered := &results.Buffered

	// Agent log lines arrive already formatted.
	for _, line := range buffered.Logs {
		if err := svc.Store().AppendAnalysisLog(ctx, a.Id, line); err != nil {
			return err
		}
	}
	for _, tag := range buffered.Tags {
		if err := run.AddTag(tag); err != nil {
			return err
		}
	}
	for _, ioc := range buffered.IOCs {
		if err := run.AddIOC(ioc.Value, ioc.Tags...); err != nil {
			return err
		}
	}
	for _, extraction := range buffered.Extractions {
		if err := run.AddExtraction(extraction.Label, extraction.Content); err != nil {
			return err
		}
	}
	for _, probable := range buffered.ProbableNames {
		if err := run.AddProbableName(probable); err != nil {
			return err
		}
	}

	dir, err := os.MkdirTemp("", "vmresults")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	for fileType, paths := range buffered.GeneratedFiles {
		locals := make([]string, 0, len(paths))
		for _, path := range paths {
			local, err := agent.GetFile(ctx, task, path, dir)
			if err != nil {
				return err
			}
			locals = append(locals, local)
		}
		if err := run.RegisterFiles(fileType, locals...); err != nil {
			return err
		}
	}
	for _, path := range buffered.ExtractedFiles {
		local, err := agent.GetFile(ctx, task, path, dir)
		if err != nil {
			return err
		}
		if err := run.AddExtractedFile(local); err != nil {
			return err
		}
	}
	for _, path := range buffered.SupportFiles {
		local, err := agent.GetFile(ctx, task, path, dir)
		if err != nil {
			return err
		}
		if err := run.AddSupportFile(name, local); err != nil {
			return err
		}
	}

	if !buffered.Result {
		return nil
	}
	if len(results.Results) > 0 {
		if err := svc.Store().SetAnalysisResult(ctx, a.Id, name, results.Results); err != nil {
			return err
		}
	}
	if err := svc.AddTag(ctx, a.Id, name); err != nil {
		return err
	}
	for _, tag := range buffered.Tags {
		if err := svc.AddTag(ctx, a.Id, fmt.Sprintf("%s(%s)", name, tag)); err != nil {
			return err
		}
	}
	return nil
}

// lifecycle applies the post-execution VM policy: always-ready machines
// are snapshot-restored once the per-module counter reaches restore_after
// or when the module asked for it, everything else is stopped.
func (r *Runner) lifecycle(ctx context.Context, drv module.Virtualizer, vm *module.VMConfig,
	slot *Slot, name string, shouldRestore bool) {
	count, err := r.locks.db.IncrVMLockCounter(ctx, vm.Driver, slot.Label, name)
	if err != nil {
		klog.ErrorS(err, "failed to count vm execution", "driver", vm.Driver, "label", slot.Label)
	}

	if !vm.AlwaysReady {
		if err := drv.Stop(ctx); err != nil {
			klog.ErrorS(err, "failed to stop vm", "driver", vm.Driver, "label", slot.Label)
		}
		return
	}
	if !shouldRestore && (vm.RestoreAfter <= 0 || count < vm.RestoreAfter) {
		return
	}
	if err := r.restore(ctx, drv, vm.Snapshot); err != nil {
		klog.ErrorS(err, "failed to restore vm", "driver", vm.Driver, "label", slot.Label)
		return
	}
	if err := r.locks.db.ResetVMLockCounter(ctx, vm.Driver, slot.Label, name); err != nil {
		klog.ErrorS(err, "failed to reset vm counter", "driver", vm.Driver, "label", slot.Label)
	}
}
