/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

// Fake is an in-memory Interface implementation for tests. Queries support
// the sqrl.Eq and sqrl.And forms the pipeline actually issues.
type Fake struct {
	mu        sync.Mutex
	files     map[string]*File
	analyses  map[string]*Analysis
	iocs      []*AnalysisIOC
	modules   map[string]*Module
	settings  map[string]*Setting
	internals map[string]*Internal
	vmLocks   map[string]*VMLock
	nextIOCId int64
}

// NewFake creates an empty in-memory store.
func NewFake() *Fake {
	return &Fake{
		files:     make(map[string]*File),
		analyses:  make(map[string]*Analysis),
		modules:   make(map[string]*Module),
		settings:  make(map[string]*Setting),
		internals: make(map[string]*Internal),
		vmLocks:   make(map[string]*VMLock),
	}
}

var _ Interface = &Fake{}

// Close performs the Close operation.
func (f *Fake) Close() {}

func fieldByTag(obj interface{}, tag string) (interface{}, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("db") == tag {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

func setFieldByTag(obj interface{}, tag string, value interface{}) bool {
	v := reflect.ValueOf(obj).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("db") == tag {
			v.Field(i).Set(reflect.ValueOf(value))
			return true
		}
	}
	return false
}

func matches(obj interface{}, query sqrl.Sqlizer) bool {
	switch q := query.(type) {
	case nil:
		return true
	case sqrl.Eq:
		for column, want := range q {
			got, ok := fieldByTag(obj, column)
			if !ok {
				return false
			}
			if !valueMatches(got, want) {
				return false
			}
		}
		return true
	case sqrl.And:
		for _, sub := range q {
			if !matches(obj, sub) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func valueMatches(got, want interface{}) bool {
	wv := reflect.ValueOf(want)
	if wv.Kind() == reflect.Slice {
		for i := 0; i < wv.Len(); i++ {
			if fmt.Sprint(got) == fmt.Sprint(wv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}

func (f *Fake) addToFakeSet(obj interface{}, column, value string, allowed map[string]bool) (bool, error) {
	if !allowed[column] {
		return false, errors.NewBadRequest("column %s is not set-valued", column)
	}
	current, ok := fieldByTag(obj, column)
	if !ok {
		return false, errors.NewBadRequest("column %s not found", column)
	}
	set := current.(pq.StringArray)
	for _, item := range set {
		if item == value {
			return false, nil
		}
	}
	setFieldByTag(obj, column, append(set, value))
	return true, nil
}

func (f *Fake) removeFromFakeSet(obj interface{}, column, value string, allowed map[string]bool) (bool, error) {
	if !allowed[column] {
		return false, errors.NewBadRequest("column %s is not set-valued", column)
	}
	current, ok := fieldByTag(obj, column)
	if !ok {
		return false, errors.NewBadRequest("column %s not found", column)
	}
	set := current.(pq.StringArray)
	result := make(pq.StringArray, 0, len(set))
	found := false
	for _, item := range set {
		if item == value {
			found = true
			continue
		}
		result = append(result, item)
	}
	setFieldByTag(obj, column, result)
	return found, nil
}

// InsertFile stores a new file record.
func (f *Fake) InsertFile(_ context.Context, file *File) error {
	if file == nil {
		return errors.NewBadRequest("the input is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *file
	f.files[file.Id] = &copied
	return nil
}

// GetFile retrieves a file by ID.
func (f *Fake) GetFile(_ context.Context, id string) (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, errors.NewNotFound("file %s not found", id)
	}
	copied := *file
	return &copied, nil
}

// GetFileByHash retrieves a file by digest.
func (f *Fake) GetFileByHash(_ context.Context, hash string) (*File, error) {
	column, ok := hashColumns[len(hash)]
	if !ok {
		return nil, errors.NewBadRequest("unsupported hash length %d", len(hash))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if got, _ := fieldByTag(file, column); got == hash {
			copied := *file
			return &copied, nil
		}
	}
	return nil, errors.NewNotFound("file %s not found", hash)
}

// SelectFiles retrieves files matching the query.
func (f *Fake) SelectFiles(_ context.Context, query sqrl.Sqlizer, _ []string, limit, _ int) ([]*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*File
	for _, file := range f.files {
		if matches(file, query) {
			copied := *file
			result = append(result, &copied)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// CountFiles counts files matching the query.
func (f *Fake) CountFiles(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	files, err := f.SelectFiles(ctx, query, nil, 0, 0)
	return len(files), err
}

// AddFileToSet appends value to a set-valued file column.
func (f *Fake) AddFileToSet(_ context.Context, id, column, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return false, errors.NewNotFound("file %s not found", id)
	}
	return f.addToFakeSet(file, column, value, fileSetColumns)
}

// RemoveFileFromSet removes value from a set-valued file column.
func (f *Fake) RemoveFileFromSet(_ context.Context, id, column, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return false, errors.NewNotFound("file %s not found", id)
	}
	return f.removeFromFakeSet(file, column, value, fileSetColumns)
}

// UpdateFileType updates the recorded file type.
func (f *Fake) UpdateFileType(_ context.Context, id, fileType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok {
		file.Type = fileType
	}
	return nil
}

// UpdateFileContent upgrades a hash-only record with real content info.
func (f *Fake) UpdateFileContent(_ context.Context, id, path, fileType, detailedType, mime string, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok {
		file.FilePath.String = path
		file.FilePath.Valid = true
		file.Type = fileType
		file.DetailedType.String = detailedType
		file.DetailedType.Valid = true
		file.Mime.String = mime
		file.Mime.Valid = true
		file.Size = size
	}
	return nil
}

// UpdateFileAntivirus replaces the antivirus status map.
func (f *Fake) UpdateFileAntivirus(_ context.Context, id string, antivirus []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok {
		file.Antivirus = antivirus
	}
	return nil
}

// UpdateFileProbableNames replaces the probable name list.
func (f *Fake) UpdateFileProbableNames(_ context.Context, id string, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok {
		file.ProbableNames = toStringArray(names)
	}
	return nil
}

// UpdateFilePath updates the on-disk location of the stored file.
func (f *Fake) UpdateFilePath(_ context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok {
		file.FilePath.String = path
		file.FilePath.Valid = true
	}
	return nil
}

// AppendFileComment appends a comment document.
func (f *Fake) AppendFileComment(_ context.Context, id string, comment []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return errors.NewNotFound("file %s not found", id)
	}
	file.Comments = appendJSONList(file.Comments, comment)
	return nil
}

// InsertAnalysis stores a new analysis record.
func (f *Fake) InsertAnalysis(_ context.Context, analysis *Analysis) error {
	if analysis == nil {
		return errors.NewBadRequest("the input is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *analysis
	f.analyses[analysis.Id] = &copied
	return nil
}

// GetAnalysis retrieves an analysis by ID.
func (f *Fake) GetAnalysis(_ context.Context, id string) (*Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return nil, errors.NewNotFound("analysis %s not found", id)
	}
	copied := *analysis
	return &copied, nil
}

// SelectAnalyses retrieves analyses matching the query.
func (f *Fake) SelectAnalyses(_ context.Context, query sqrl.Sqlizer, _ []string, limit, _ int) ([]*Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*Analysis
	for _, analysis := range f.analyses {
		if matches(analysis, query) {
			copied := *analysis
			result = append(result, &copied)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// CountAnalyses counts analyses matching the query.
func (f *Fake) CountAnalyses(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	analyses, err := f.SelectAnalyses(ctx, query, nil, 0, 0)
	return len(analyses), err
}

// UpdateAnalysisStatus updates the analysis status unconditionally.
func (f *Fake) UpdateAnalysisStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if analysis, ok := f.analyses[id]; ok {
		analysis.Status = status
	}
	return nil
}

// UpdateAnalysisStatusIf performs the conditional status transition.
func (f *Fake) UpdateAnalysisStatusIf(_ context.Context, id string, from []string, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if analysis.Status == status {
			analysis.Status = to
			return true, nil
		}
	}
	return false, nil
}

// UpdateAnalysisFile re-points the analysis at another file.
func (f *Fake) UpdateAnalysisFile(_ context.Context, id, fileId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if analysis, ok := f.analyses[id]; ok {
		analysis.FileId = fileId
	}
	return nil
}

// SetAnalysisEndTime records the end of the analysis.
func (f *Fake) SetAnalysisEndTime(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if analysis, ok := f.analyses[id]; ok {
		analysis.EndTime.Time = time.Now().UTC()
		analysis.EndTime.Valid = true
	}
	return nil
}

// AddAnalysisToSet appends value to a set-valued analysis column.
func (f *Fake) AddAnalysisToSet(_ context.Context, id, column, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return false, errors.NewNotFound("analysis %s not found", id)
	}
	return f.addToFakeSet(analysis, column, value, analysisSetColumns)
}

// RemoveAnalysisFromSet removes value from a set-valued analysis column.
func (f *Fake) RemoveAnalysisFromSet(_ context.Context, id, column, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return false, errors.NewNotFound("analysis %s not found", id)
	}
	return f.removeFromFakeSet(analysis, column, value, analysisSetColumns)
}

// AppendAnalysisLog appends a log line.
func (f *Fake) AppendAnalysisLog(_ context.Context, id, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if analysis, ok := f.analyses[id]; ok {
		analysis.Logs = append(analysis.Logs, line)
	}
	return nil
}

// SetAnalysisResult stores the result document of one module.
func (f *Fake) SetAnalysisResult(_ context.Context, id, module string, result []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return errors.NewNotFound("analysis %s not found", id)
	}
	doc := map[string]json.RawMessage{}
	if len(analysis.Results) > 0 {
		if err := json.Unmarshal(analysis.Results, &doc); err != nil {
			return err
		}
	}
	doc[module] = result
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	analysis.Results = data
	return nil
}

// AddAnalysisGeneratedFiles appends paths under generated_files[fileType].
func (f *Fake) AddAnalysisGeneratedFiles(_ context.Context, id, fileType string, paths []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return errors.NewNotFound("analysis %s not found", id)
	}
	doc := map[string][]string{}
	if len(analysis.GeneratedFiles) > 0 {
		if err := json.Unmarshal(analysis.GeneratedFiles, &doc); err != nil {
			return err
		}
	}
	var incoming []string
	if err := json.Unmarshal(paths, &incoming); err != nil {
		return err
	}
	doc[fileType] = append(doc[fileType], incoming...)
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	analysis.GeneratedFiles = data
	return nil
}

// AddAnalysisSupportFile records a support file name under
// support_files[module].
func (f *Fake) AddAnalysisSupportFile(_ context.Context, id, module, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return errors.NewNotFound("analysis %s not found", id)
	}
	doc := map[string][]string{}
	if len(analysis.SupportFiles) > 0 {
		if err := json.Unmarshal(analysis.SupportFiles, &doc); err != nil {
			return err
		}
	}
	doc[module] = append(doc[module], name)
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	analysis.SupportFiles = data
	return nil
}

// AppendAnalysisExtraction appends an extraction document.
func (f *Fake) AppendAnalysisExtraction(_ context.Context, id string, extraction []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	analysis, ok := f.analyses[id]
	if !ok {
		return errors.NewNotFound("analysis %s not found", id)
	}
	analysis.Extractions = appendJSONList(analysis.Extractions, extraction)
	return nil
}

// InsertAnalysisIOC records an observable; reports first insertion.
func (f *Fake) InsertAnalysisIOC(_ context.Context, ioc *AnalysisIOC) (bool, error) {
	if ioc == nil {
		return false, errors.NewBadRequest("the input is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.iocs {
		if existing.AnalysisId == ioc.AnalysisId && existing.Value == ioc.Value {
			return false, nil
		}
	}
	f.nextIOCId++
	copied := *ioc
	copied.Id = f.nextIOCId
	f.iocs = append(f.iocs, &copied)
	return true, nil
}

// MergeAnalysisIOC merges tags and sources into an existing observable.
func (f *Fake) MergeAnalysisIOC(_ context.Context, analysisId, value string, tags, sources []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.iocs {
		if existing.AnalysisId == analysisId && existing.Value == value {
			existing.Tags = mergeSet(existing.Tags, tags)
			existing.Sources = mergeSet(existing.Sources, sources)
		}
	}
	return nil
}

// UpdateAnalysisIOCTI stores the threat intelligence verdict.
func (f *Fake) UpdateAnalysisIOCTI(_ context.Context, analysisId, value string, tiTags []string, tiIndicators []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.iocs {
		if existing.AnalysisId == analysisId && existing.Value == value {
			existing.TITags = toStringArray(tiTags)
			existing.TIIndicators = tiIndicators
		}
	}
	return nil
}

// SelectAnalysisIOCs retrieves all observables of an analysis.
func (f *Fake) SelectAnalysisIOCs(_ context.Context, analysisId string) ([]*AnalysisIOC, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*AnalysisIOC
	for _, ioc := range f.iocs {
		if ioc.AnalysisId == analysisId {
			copied := *ioc
			result = append(result, &copied)
		}
	}
	return result, nil
}

// UpsertModule reconciles one module record by name.
func (f *Fake) UpsertModule(_ context.Context, module *Module) error {
	if module == nil {
		return errors.NewBadRequest("the input is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.modules[module.Name]; ok {
		enabled := existing.Enabled
		copied := *module
		copied.Enabled = enabled
		f.modules[module.Name] = &copied
		return nil
	}
	copied := *module
	f.modules[module.Name] = &copied
	return nil
}

// GetModuleByName retrieves a module by name.
func (f *Fake) GetModuleByName(_ context.Context, name string) (*Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	module, ok := f.modules[name]
	if !ok {
		return nil, errors.NewNotFound("module %s not found", name)
	}
	copied := *module
	return &copied, nil
}

// SelectModules retrieves modules matching the query.
func (f *Fake) SelectModules(_ context.Context, query sqrl.Sqlizer, _ []string, limit, _ int) ([]*Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*Module
	for _, module := range f.modules {
		if matches(module, query) {
			copied := *module
			result = append(result, &copied)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// UpdateModuleEnabled flips the enabled flag of a module.
func (f *Fake) UpdateModuleEnabled(_ context.Context, name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if module, ok := f.modules[name]; ok {
		module.Enabled = enabled
	}
	return nil
}

// UpdateModuleConfig replaces the configuration and diffs of a module.
func (f *Fake) UpdateModuleConfig(_ context.Context, name string, moduleConfig, diffs []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if module, ok := f.modules[name]; ok {
		module.Config = moduleConfig
		module.Diffs = diffs
	}
	return nil
}

// UpsertSetting reconciles one named configuration by name.
func (f *Fake) UpsertSetting(_ context.Context, setting *Setting) error {
	if setting == nil {
		return errors.NewBadRequest("the input is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *setting
	f.settings[setting.Name] = &copied
	return nil
}

// GetSettingByName retrieves a named configuration.
func (f *Fake) GetSettingByName(_ context.Context, name string) (*Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	setting, ok := f.settings[name]
	if !ok {
		return nil, errors.NewNotFound("setting %s not found", name)
	}
	copied := *setting
	return &copied, nil
}

// SelectSettings retrieves all named configurations.
func (f *Fake) SelectSettings(_ context.Context) ([]*Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*Setting
	for _, setting := range f.settings {
		copied := *setting
		result = append(result, &copied)
	}
	return result, nil
}

// UpdateSettingConfig replaces the option list of a named configuration.
func (f *Fake) UpdateSettingConfig(_ context.Context, name string, settingConfig []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if setting, ok := f.settings[name]; ok {
		setting.Config = settingConfig
	}
	return nil
}

// GetInternal retrieves a singleton row by name.
func (f *Fake) GetInternal(_ context.Context, name string) (*Internal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	internal, ok := f.internals[name]
	if !ok {
		return nil, errors.NewNotFound("internal %s not found", name)
	}
	copied := *internal
	return &copied, nil
}

// TouchInternal advances the last_update timestamp of a singleton row.
func (f *Fake) TouchInternal(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	internal, ok := f.internals[name]
	if !ok {
		internal = &Internal{Name: name}
		f.internals[name] = internal
	}
	internal.LastUpdate.Time = time.Now().UTC()
	internal.LastUpdate.Valid = true
	return nil
}

func (f *Fake) lockKey(driver, label string) string {
	return driver + "|" + label
}

// AcquireVMLock attempts to take the lock on a virtual machine.
func (f *Fake) AcquireVMLock(_ context.Context, driver, label string, staleBefore time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.lockKey(driver, label)
	lock, ok := f.vmLocks[key]
	if !ok {
		f.vmLocks[key] = &VMLock{
			Id:         int64(len(f.vmLocks) + 1),
			Driver:     driver,
			Label:      label,
			Locked:     true,
			LastLocked: pq.NullTime{Time: time.Now().UTC(), Valid: true},
		}
		return true, nil
	}
	if !lock.Locked || lock.LastLocked.Time.Before(staleBefore) {
		lock.Locked = true
		lock.LastLocked = pq.NullTime{Time: time.Now().UTC(), Valid: true}
		return true, nil
	}
	return false, nil
}

// ReleaseVMLock releases the lock on a virtual machine.
func (f *Fake) ReleaseVMLock(_ context.Context, driver, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lock, ok := f.vmLocks[f.lockKey(driver, label)]; ok {
		lock.Locked = false
	}
	return nil
}

// IncrVMLockCounter increments the per-module execution counter.
func (f *Fake) IncrVMLockCounter(_ context.Context, driver, label, module string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.vmLocks[f.lockKey(driver, label)]
	if !ok {
		return 0, errors.NewNotFound("vm lock %s/%s not found", driver, label)
	}
	counters := map[string]int{}
	if len(lock.Counters) > 0 {
		if err := json.Unmarshal(lock.Counters, &counters); err != nil {
			return 0, err
		}
	}
	counters[module]++
	data, err := json.Marshal(counters)
	if err != nil {
		return 0, err
	}
	lock.Counters = data
	return counters[module], nil
}

// ResetVMLockCounter zeroes the per-module execution counter.
func (f *Fake) ResetVMLockCounter(_ context.Context, driver, label, module string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.vmLocks[f.lockKey(driver, label)]
	if !ok {
		return nil
	}
	counters := map[string]int{}
	if len(lock.Counters) > 0 {
		if err := json.Unmarshal(lock.Counters, &counters); err != nil {
			return err
		}
	}
	counters[module] = 0
	data, err := json.Marshal(counters)
	if err != nil {
		return err
	}
	lock.Counters = data
	return nil
}

// GetVMLock retrieves the lock record of a virtual machine.
func (f *Fake) GetVMLock(_ context.Context, driver, label string) (*VMLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.vmLocks[f.lockKey(driver, label)]
	if !ok {
		return nil, errors.NewNotFound("vm lock %s/%s not found", driver, label)
	}
	copied := *lock
	return &copied, nil
}

func appendJSONList(list, item []byte) []byte {
	var docs []json.RawMessage
	if len(list) > 0 {
		if err := json.Unmarshal(list, &docs); err != nil {
			docs = nil
		}
	}
	docs = append(docs, item)
	data, err := json.Marshal(docs)
	if err != nil {
		return list
	}
	return data
}

func mergeSet(existing pq.StringArray, incoming []string) pq.StringArray {
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item] = true
	}
	for _, item := range incoming {
		if !seen[item] {
			seen[item] = true
			existing = append(existing, item)
		}
	}
	return existing
}
