/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package analysis owns the lifecycle of analysis records: creation,
// module queueing, the resume control loop and every mutation modules
// apply while they run.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/queue"
	"github.com/certsocietegenerale/fame/pkg/storage"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// Service wires the store, the task queues, the file store and the module
// catalog together. One Service instance serves one catalog generation;
// workers build a fresh Service after a catalog reload.
type Service struct {
	db      client.Interface
	queue   queue.Interface
	store   *storage.Store
	catalog *module.Catalog
	files   FileStrategy
}

// New creates a service with local file access.
func New(db client.Interface, q queue.Interface, store *storage.Store, catalog *module.Catalog) *Service {
	s := &Service{db: db, queue: q, store: store, catalog: catalog}
	s.files = &LocalFiles{service: s}
	return s
}

// WithFiles replaces the file access strategy. Remote workers install an
// HTTP-backed strategy here.
func (s *Service) WithFiles(files FileStrategy) *Service {
	s.files = files
	return s
}

// Catalog returns the catalog this service resolves modules from.
func (s *Service) Catalog() *module.Catalog {
	return s.catalog
}

// Store returns the document store handle.
func (s *Service) Store() client.Interface {
	return s.db
}

// Log appends a timestamped line to the analysis log.
func (s *Service) Log(ctx context.Context, analysisId, level, format string, args ...interface{}) {
	line := fmt.Sprintf("%s: %s: %s",
		time.Now().Format("2006-01-02 15:04"), level, fmt.Sprintf(format, args...))
	if err := s.db.AppendAnalysisLog(ctx, analysisId, line); err != nil {
		klog.ErrorS(err, "failed to append analysis log", "analysis", analysisId)
	}
}

// Options returns the per-analysis runtime options.
func (s *Service) Options(a *client.Analysis) map[string]interface{} {
	options := map[string]interface{}{}
	if len(a.Options) > 0 {
		if err := json.Unmarshal(a.Options, &options); err != nil {
			klog.ErrorS(err, "failed to decode analysis options", "analysis", a.Id)
		}
	}
	return options
}

// MagicEnabled reports whether automatic module scheduling is on for this
// analysis. Only an explicit false turns it off.
func (s *Service) MagicEnabled(a *client.Analysis) bool {
	raw, ok := s.Options(a)["magic_enabled"]
	if !ok {
		return true
	}
	enabled, err := module.CoerceOptionValue(module.OptionBool, raw)
	if err != nil {
		return true
	}
	return enabled.(bool)
}

func (s *Service) generatedFiles(a *client.Analysis) map[string][]string {
	files := map[string][]string{}
	if len(a.GeneratedFiles) > 0 {
		if err := json.Unmarshal(a.GeneratedFiles, &files); err != nil {
			klog.ErrorS(err, "failed to decode generated files", "analysis", a.Id)
		}
	}
	return files
}

// TypesAvailable lists the file types modules can currently act on.
func (s *Service) TypesAvailable(a *client.Analysis, f *client.File) []string {
	files := s.generatedFiles(a)
	types := make([]string, 0, len(files)+1)
	for fileType := range files {
		types = append(types, fileType)
	}
	if _, ok := files[f.Type]; !ok {
		types = append(types, f.Type)
	}
	return types
}

func (s *Service) needsPreloading(f *client.File) bool {
	return f.Type == "hash"
}

func (s *Service) triedModules(a *client.Analysis) []string {
	return append(append([]string{}, a.ExecutedModules...), a.CanceledModules...)
}

// MainFile returns the path of the analysis target. For a hash submission
// this is the hash itself.
func (s *Service) MainFile(f *client.File) string {
	return f.FilePath.String
}

// LocalPath makes a stored file reachable on the local filesystem.
func (s *Service) LocalPath(ctx context.Context, path string) (string, error) {
	return s.files.LocalPath(ctx, path)
}

// RecordAntivirusResult stores the verdict of one antivirus module on the
// file's antivirus map.
func (s *Service) RecordAntivirusResult(ctx context.Context, fileId, moduleName string, result interface{}) error {
	f, err := s.db.GetFile(ctx, fileId)
	if err != nil {
		return err
	}
	verdicts := map[string]interface{}{}
	if len(f.Antivirus) > 0 {
		if err := json.Unmarshal(f.Antivirus, &verdicts); err != nil {
			klog.ErrorS(err, "failed to decode antivirus map", "file", fileId)
		}
	}
	verdicts[moduleName] = result
	data, err := json.Marshal(verdicts)
	if err != nil {
		return err
	}
	return s.db.UpdateFileAntivirus(ctx, fileId, data)
}

// GetFiles returns the stored paths of every file of the given type this
// analysis can see: generated files plus the main target.
func (s *Service) GetFiles(a *client.Analysis, f *client.File, fileType string) []string {
	var results []string
	results = append(results, s.generatedFiles(a)[fileType]...)
	if f.Type == fileType {
		results = append(results, s.MainFile(f))
	}
	return results
}

// Resume drives the analysis forward: enqueue pending work, cancel dead
// ends, and mark the analysis finished when nothing is left. Safe to call
// redundantly.
func (s *Service) Resume(ctx context.Context, analysisId string) error {
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	f, err := s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}

	resumed := false
	switch {
	case len(a.PendingModules) > 0:
		// Work already in flight.
		resumed = true
	case s.needsPreloading(f):
		next, err := s.catalog.NextPreloadingModule(a.PreloadingModules, s.triedModules(a))
		switch {
		case err == nil:
			if err := s.QueueModules(ctx, a, f, []string{next}, true); err != nil {
				return err
			}
			resumed = true
		case errors.IsDispatchingError(err):
			s.Log(ctx, a.Id, "warning", "no preloading module was able to find a file for submitted hash")
			for _, waiting := range a.WaitingModules {
				if err := s.cancelModule(ctx, a.Id, waiting); err != nil {
					return err
				}
			}
		default:
			return err
		}
	default:
		for _, waiting := range a.WaitingModules {
			next, err := s.catalog.NextModule(s.TypesAvailable(a, f), waiting, s.triedModules(a))
			switch {
			case err == nil:
				if err := s.QueueModules(ctx, a, f, []string{next}, true); err != nil {
					return err
				}
				resumed = true
			case errors.IsDispatchingError(err):
				if err := s.cancelModule(ctx, a.Id, waiting); err != nil {
					return err
				}
			default:
				return err
			}
		}
	}

	if !resumed && a.Status != client.AnalysisStatusFinished && a.Status != client.AnalysisStatusError {
		return s.markFinished(ctx, a.Id)
	}
	return nil
}

// QueueModules hands the named modules to their queues. Modules already
// executed or pending are skipped; modules that cannot run yet go to the
// waiting set when fallbackWaiting is set, and are dropped with a debug
// line otherwise.
func (s *Service) QueueModules(ctx context.Context, a *client.Analysis, f *client.File, names []string, fallbackWaiting bool) error {
	for _, name := range names {
		s.Log(ctx, a.Id, "debug", "Trying to queue module '%s'", name)
		if utils.StringInSlice(name, a.ExecutedModules) || utils.StringInSlice(name, a.PendingModules) {
			continue
		}
		entry, ok := s.catalog.Entry(name)
		if !ok {
			s.ErrorWithModule(ctx, a.Id, name, "module has been removed or disabled.")
			continue
		}
		switch {
		case s.canExecute(entry, a, f):
			added, err := s.db.AddAnalysisToSet(ctx, a.Id, client.AnalysisPendingModules, name)
			if err != nil {
				return err
			}
			if added {
				task := &queue.Task{
					AnalysisId: a.Id,
					Module:     name,
					Preload:    entry.Info.Type == module.TypePreloading,
				}
				if err := s.queue.Push(ctx, entry.Record.Queue, task); err != nil {
					return err
				}
			}
		case fallbackWaiting:
			if _, err := s.db.AddAnalysisToSet(ctx, a.Id, client.AnalysisWaitingModules, name); err != nil {
				return err
			}
		default:
			s.Log(ctx, a.Id, "debug", "module '%s' cannot run yet, skipped", name)
		}
	}
	return nil
}

// canExecute reports whether a module could run against the current state
// of the analysis.
func (s *Service) canExecute(entry *module.Entry, a *client.Analysis, f *client.File) bool {
	if s.needsPreloading(f) {
		return entry.Info.Type == module.TypePreloading
	}
	if len(entry.Record.ActsOn) == 0 {
		return true
	}
	available := s.TypesAvailable(a, f)
	for _, sourceType := range entry.Record.ActsOn {
		if utils.StringInSlice(sourceType, available) {
			return true
		}
	}
	return false
}

func (s *Service) cancelModule(ctx context.Context, analysisId, name string) error {
	if _, err := s.db.RemoveAnalysisFromSet(ctx, analysisId, client.AnalysisWaitingModules, name); err != nil {
		return err
	}
	if _, err := s.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisCanceledModules, name); err != nil {
		return err
	}
	s.Log(ctx, analysisId, "warning", "could not find execution path to %q (cancelled)", name)
	return nil
}

// ErrorWithModule records a module failure: the module is canceled and
// the reason lands in the analysis log.
func (s *Service) ErrorWithModule(ctx context.Context, analysisId, name, message string) {
	s.Log(ctx, analysisId, "error", "%s: %s", name, message)
	if _, err := s.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisCanceledModules, name); err != nil {
		klog.ErrorS(err, "failed to cancel module", "analysis", analysisId, "module", name)
	}
}

func (s *Service) markFinished(ctx context.Context, analysisId string) error {
	if err := s.db.UpdateAnalysisStatus(ctx, analysisId, client.AnalysisStatusFinished); err != nil {
		return err
	}
	if err := s.db.SetAnalysisEndTime(ctx, analysisId); err != nil {
		return err
	}
	s.reportingHook(ctx, analysisId)
	return nil
}

// MarkError puts the analysis in the terminal error state.
func (s *Service) MarkError(ctx context.Context, analysisId, reason string) error {
	s.Log(ctx, analysisId, "error", "%s", reason)
	if err := s.db.UpdateAnalysisStatus(ctx, analysisId, client.AnalysisStatusError); err != nil {
		return err
	}
	if err := s.db.SetAnalysisEndTime(ctx, analysisId); err != nil {
		return err
	}
	s.reportingHook(ctx, analysisId)
	return nil
}

func (s *Service) reportingHook(ctx context.Context, analysisId string) {
	for _, entry := range s.catalog.ReportingEntries() {
		instance, err := s.catalog.NewInstance(entry, nil)
		if err != nil {
			s.Log(ctx, analysisId, "error", "error in reporting module '%s': %v", entry.Record.Name, err)
			continue
		}
		reporter, ok := instance.(module.Reporter)
		if !ok {
			continue
		}
		if err := reporter.Done(ctx, analysisId); err != nil {
			s.Log(ctx, analysisId, "error", "error in reporting module '%s': %v", entry.Record.Name, err)
		}
	}
}
