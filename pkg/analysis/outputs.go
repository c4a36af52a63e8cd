/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package analysis

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// AddTag records a tag on the analysis. The first occurrence of a tag
// queues the modules it triggers.
func (s *Service) AddTag(ctx context.Context, analysisId, tag string) error {
	added, err := s.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisTags, tag)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	triggered := s.catalog.TriggeredBy(tag)
	if len(triggered) == 0 {
		return nil
	}
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	if !s.MagicEnabled(a) {
		return nil
	}
	f, err := s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	return s.QueueModules(ctx, a, f, triggered, true)
}

// AddIOC records an observable. The first insertion of a value triggers
// the threat intelligence lookup; later sightings only merge tags and
// sources.
func (s *Service) AddIOC(ctx context.Context, analysisId, value, source string, tags []string) error {
	ioc := &client.AnalysisIOC{
		AnalysisId:   analysisId,
		Value:        value,
		Tags:         toSet(tags),
		TITags:       []string{},
		Sources:      []string{source},
		TIIndicators: []byte("[]"),
	}
	first, err := s.db.InsertAnalysisIOC(ctx, ioc)
	if err != nil {
		return err
	}
	if !first {
		return s.db.MergeAnalysisIOC(ctx, analysisId, value, tags, []string{source})
	}
	tiTags, indicators := s.lookupIOC(ctx, analysisId, value)
	if len(tiTags) == 0 && len(indicators) == 0 {
		return nil
	}
	data, err := json.Marshal(indicators)
	if err != nil {
		return err
	}
	return s.db.UpdateAnalysisIOCTI(ctx, analysisId, value, tiTags, data)
}

// RefreshIOCs re-runs the threat intelligence lookup for every observable
// of the analysis.
func (s *Service) RefreshIOCs(ctx context.Context, analysisId string) error {
	iocs, err := s.db.SelectAnalysisIOCs(ctx, analysisId)
	if err != nil {
		return err
	}
	for _, ioc := range iocs {
		tiTags, indicators := s.lookupIOC(ctx, analysisId, ioc.Value)
		if len(tiTags) == 0 && len(indicators) == 0 {
			continue
		}
		data, err := json.Marshal(indicators)
		if err != nil {
			return err
		}
		if err := s.db.UpdateAnalysisIOCTI(ctx, analysisId, ioc.Value, tiTags, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) lookupIOC(ctx context.Context, analysisId, value string) ([]string, []map[string]interface{}) {
	var tags []string
	var indicators []map[string]interface{}
	for _, entry := range s.catalog.ThreatIntelligenceEntries() {
		instance, err := s.catalog.NewInstance(entry, nil)
		if err != nil {
			klog.ErrorS(err, "could not initialize threat intelligence module", "module", entry.Record.Name)
			continue
		}
		lookup, ok := instance.(module.IOCLookup)
		if !ok {
			continue
		}
		verdict, err := lookup.IOCLookup(ctx, value)
		if err != nil {
			s.Log(ctx, analysisId, "error", "error in threat intelligence module '%s': %v", entry.Record.Name, err)
			continue
		}
		if verdict == nil {
			continue
		}
		for _, tag := range verdict.Tags {
			if !utils.StringInSlice(tag, tags) {
				tags = append(tags, tag)
			}
		}
		indicators = append(indicators, verdict.Indicators...)
	}
	return tags, indicators
}

// AddExtraction records a labeled extraction document.
func (s *Service) AddExtraction(ctx context.Context, analysisId, label, content string) error {
	doc, err := json.Marshal(map[string]string{"label": label, "content": content})
	if err != nil {
		return err
	}
	return s.db.AppendAnalysisExtraction(ctx, analysisId, doc)
}

// AddProbableName records a candidate malware name on the analysis and on
// the underlying file. On the file, a name that is a substring of an
// existing one is dropped, and existing names that are substrings of the
// new one are replaced by it.
func (s *Service) AddProbableName(ctx context.Context, analysisId, name string) error {
	if _, err := s.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisProbableNames, name); err != nil {
		return err
	}
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	f, err := s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	for _, existing := range f.ProbableNames {
		if strings.Contains(existing, name) {
			return nil
		}
	}
	names := make([]string, 0, len(f.ProbableNames)+1)
	for _, existing := range f.ProbableNames {
		if !strings.Contains(name, existing) {
			names = append(names, existing)
		}
	}
	names = append(names, name)
	return s.db.UpdateFileProbableNames(ctx, f.Id, names)
}

// AddGeneratedFiles stores files produced by a module and makes their type
// available to the rest of the analysis. Modules triggered by the new type
// are queued.
func (s *Service) AddGeneratedFiles(ctx context.Context, analysisId, fileType string, paths []string) error {
	stored := make([]string, 0, len(paths))
	for _, path := range paths {
		canonical, err := s.files.SaveGenerated(ctx, analysisId, path)
		if err != nil {
			return err
		}
		stored = append(stored, canonical)
	}
	s.Log(ctx, analysisId, "debug", "Adding generated files %v of type '%s'", stored, fileType)
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := s.db.AddAnalysisGeneratedFiles(ctx, analysisId, fileType, data); err != nil {
		return err
	}
	// Refetch so queueing sees the new type in the available set.
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	if !s.MagicEnabled(a) {
		return nil
	}
	f, err := s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	triggered := s.catalog.TriggeredBy(module.GeneratedFileTrigger(fileType))
	return s.QueueModules(ctx, a, f, triggered, true)
}

// AddSupportFile stores a module by-product for download.
func (s *Service) AddSupportFile(ctx context.Context, analysisId, moduleName, path string) error {
	name, err := s.files.SaveSupport(ctx, analysisId, moduleName, path)
	if err != nil {
		return err
	}
	s.Log(ctx, analysisId, "debug", "Adding support file '%s' at '%s'", name, path)
	return s.db.AddAnalysisSupportFile(ctx, analysisId, moduleName, name)
}

// AddExtractedFile registers a file carved out of the analysis target. A
// file whose content is already known is linked without a new analysis;
// new content gets its own analysis with the modules named by the
// "extracted" configuration.
func (s *Service) AddExtractedFile(ctx context.Context, analysisId, path string, automatic bool) error {
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	f, existing, err := s.files.SaveSubmission(ctx, filepath.Base(path), path)
	if err != nil {
		return err
	}
	if _, err := s.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisExtractedFiles, f.Id); err != nil {
		return err
	}
	if _, err := s.db.AddFileToSet(ctx, f.Id, client.FileParentAnalyses, analysisId); err != nil {
		return err
	}
	if existing || !automatic {
		return nil
	}
	var modules []string
	if values, ok := s.catalog.NamedConfigValues("extracted"); ok {
		if raw, ok := values["modules"].(string); ok {
			modules = strings.Fields(raw)
		}
	}
	_, err = s.Analyze(ctx, f, a.Groups, a.Analyst.String, modules, s.automaticOptions(a))
	return err
}

// AddPreloadedFile attaches the real binary behind a hash submission and
// re-points the analysis at it.
func (s *Service) AddPreloadedFile(ctx context.Context, analysisId, path string) error {
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	hashFile, err := s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	f, _, err := s.files.SaveSubmission(ctx, "file", path)
	if err != nil {
		return err
	}
	// A freshly created record only carries the placeholder name; inherit
	// the names of the hash submission instead.
	if len(f.Names) == 1 && f.Names[0] == "file" && f.Id != hashFile.Id {
		for _, name := range hashFile.Names {
			if _, err := s.db.AddFileToSet(ctx, f.Id, client.FileNames, name); err != nil {
				return err
			}
		}
		if _, err := s.db.RemoveFileFromSet(ctx, f.Id, client.FileNames, "file"); err != nil {
			return err
		}
	}
	if err := s.db.UpdateAnalysisFile(ctx, analysisId, f.Id); err != nil {
		return err
	}
	if err := s.addFileGroups(ctx, f, a.Groups); err != nil {
		return err
	}
	if _, err := s.db.AddFileToSet(ctx, f.Id, client.FileAnalyses, analysisId); err != nil {
		return err
	}
	// The analysis now has a concrete target; give automatic modules a
	// pass at it, unless specific modules were requested.
	a, err = s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	f, err = s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	if len(a.Modules) == 0 && s.MagicEnabled(a) {
		return s.QueueModules(ctx, a, f, s.catalog.GeneralPurpose(), false)
	}
	return nil
}

// ChangeType overrides the detected type of the analysis target and
// re-runs the automatic pass. Generated files cannot be retyped.
func (s *Service) ChangeType(ctx context.Context, analysisId, path, newType string) error {
	a, err := s.db.GetAnalysis(ctx, analysisId)
	if err != nil {
		return err
	}
	f, err := s.db.GetFile(ctx, a.FileId)
	if err != nil {
		return err
	}
	if s.MainFile(f) != path {
		s.Log(ctx, analysisId, "warning", "Tried to change the type of generated file '%s'", path)
		return errors.NewBadRequest("only the type of the main file can be changed")
	}
	if err := s.db.UpdateFileType(ctx, f.Id, newType); err != nil {
		return err
	}
	f.Type = newType
	if len(a.Modules) == 0 && s.MagicEnabled(a) {
		return s.QueueModules(ctx, a, f, s.catalog.GeneralPurpose(), false)
	}
	return nil
}

// automaticOptions builds the options of a spawned analysis: only the
// magic switch is inherited.
func (s *Service) automaticOptions(a *client.Analysis) map[string]interface{} {
	return map[string]interface{}{"magic_enabled": s.MagicEnabled(a)}
}

// addFileGroups shares the file with new groups, propagating them to every
// analysis of the file.
func (s *Service) addFileGroups(ctx context.Context, f *client.File, groups []string) error {
	for _, group := range groups {
		added, err := s.db.AddFileToSet(ctx, f.Id, client.FileGroups, group)
		if err != nil {
			return err
		}
		if !added {
			continue
		}
		for _, analysisId := range f.Analyses {
			if _, err := s.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisGroups, group); err != nil {
				return err
			}
		}
	}
	return nil
}

func toSet(in []string) []string {
	var out []string
	for _, s := range in {
		if !utils.StringInSlice(s, out) {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
