/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

const (
	DESC = "desc"
	ASC  = "asc"

	CreateTime = "create_time"
)

// Analysis statuses. Terminal statuses are finished and error.
const (
	AnalysisStatusPending    = "pending"
	AnalysisStatusPreloading = "preloading"
	AnalysisStatusRunning    = "running"
	AnalysisStatusFinished   = "finished"
	AnalysisStatusError      = "error"
)

// Set-valued analysis columns. Each behaves as a mathematical set under
// AddAnalysisToSet / RemoveAnalysisFromSet.
const (
	AnalysisModules           = "modules"
	AnalysisPreloadingModules = "preloading_modules"
	AnalysisPendingModules    = "pending_modules"
	AnalysisWaitingModules    = "waiting_modules"
	AnalysisExecutedModules   = "executed_modules"
	AnalysisCanceledModules   = "canceled_modules"
	AnalysisTags              = "tags"
	AnalysisProbableNames     = "probable_names"
	AnalysisExtractedFiles    = "extracted_files"
	AnalysisGroups            = "groups"
)

// Set-valued file columns.
const (
	FileNames          = "names"
	FileGroups         = "groups"
	FileOwners         = "owners"
	FileParentAnalyses = "parent_analyses"
	FileAnalyses       = "analyses"
	FileProbableNames  = "probable_names"
)

// File is one submitted or extracted object, identified by its digests.
// A file is stored once; every new submission of the same content only adds
// names, owners and groups.
type File struct {
	Id             string         `db:"id"`
	MD5            string         `db:"md5"`
	SHA1           string         `db:"sha1"`
	SHA256         string         `db:"sha256"`
	Type           string         `db:"type"`
	DetailedType   sql.NullString `db:"detailed_type"`
	Mime           sql.NullString `db:"mime"`
	Size           int64          `db:"size"`
	FilePath       sql.NullString `db:"filepath"`
	Names          pq.StringArray `db:"names"`
	Groups         pq.StringArray `db:"groups"`
	Owners         pq.StringArray `db:"owners"`
	ParentAnalyses pq.StringArray `db:"parent_analyses"`
	Analyses       pq.StringArray `db:"analyses"`
	ProbableNames  pq.StringArray `db:"probable_names"`
	Antivirus      []byte         `db:"antivirus"`
	Comments       []byte         `db:"comments"`
	CreateTime     pq.NullTime    `db:"create_time"`
}

// GetFileFieldTags returns the FileFieldTags value.
func GetFileFieldTags() map[string]string {
	f := File{}
	return getFieldTags(f)
}

// Analysis is one pass of the pipeline over one file.
type Analysis struct {
	Id                string         `db:"id"`
	FileId            string         `db:"file_id"`
	Status            string         `db:"status"`
	Analyst           sql.NullString `db:"analyst"`
	Modules           pq.StringArray `db:"modules"`
	PreloadingModules pq.StringArray `db:"preloading_modules"`
	PendingModules    pq.StringArray `db:"pending_modules"`
	WaitingModules    pq.StringArray `db:"waiting_modules"`
	ExecutedModules   pq.StringArray `db:"executed_modules"`
	CanceledModules   pq.StringArray `db:"canceled_modules"`
	Tags              pq.StringArray `db:"tags"`
	ProbableNames     pq.StringArray `db:"probable_names"`
	ExtractedFiles    pq.StringArray `db:"extracted_files"`
	Groups            pq.StringArray `db:"groups"`
	Logs              pq.StringArray `db:"logs"`
	Options           []byte         `db:"options"`
	Results           []byte         `db:"results"`
	GeneratedFiles    []byte         `db:"generated_files"`
	SupportFiles      []byte         `db:"support_files"`
	Extractions       []byte         `db:"extractions"`
	CreateTime        pq.NullTime    `db:"create_time"`
	EndTime           pq.NullTime    `db:"end_time"`
}

// GetAnalysisFieldTags returns the AnalysisFieldTags value.
func GetAnalysisFieldTags() map[string]string {
	a := Analysis{}
	return getFieldTags(a)
}

// AnalysisIOC is one observable extracted during an analysis. A value
// appears at most once per analysis; tags and sources accumulate.
type AnalysisIOC struct {
	Id           int64          `db:"id"`
	AnalysisId   string         `db:"analysis_id"`
	Value        string         `db:"value"`
	Tags         pq.StringArray `db:"tags"`
	TITags       pq.StringArray `db:"ti_tags"`
	Sources      pq.StringArray `db:"sources"`
	TIIndicators []byte         `db:"ti_indicators"`
	CreateTime   pq.NullTime    `db:"create_time"`
}

// GetAnalysisIOCFieldTags returns the AnalysisIOCFieldTags value.
func GetAnalysisIOCFieldTags() map[string]string {
	i := AnalysisIOC{}
	return getFieldTags(i)
}

// Module is the persisted record of one registered module: static metadata
// reconciled from the registry plus operator-editable state.
type Module struct {
	Id          string         `db:"id"`
	Name        string         `db:"name"`
	Type        string         `db:"type"`
	Enabled     bool           `db:"enabled"`
	Queue       string         `db:"queue"`
	Priority    int            `db:"priority"`
	ActsOn      pq.StringArray `db:"acts_on"`
	Generates   pq.StringArray `db:"generates"`
	TriggeredBy pq.StringArray `db:"triggered_by"`
	Description sql.NullString `db:"description"`
	Config      []byte         `db:"config"`
	Diffs       []byte         `db:"diffs"`
	CreateTime  pq.NullTime    `db:"create_time"`
	UpdateTime  pq.NullTime    `db:"update_time"`
}

// GetModuleFieldTags returns the ModuleFieldTags value.
func GetModuleFieldTags() map[string]string {
	m := Module{}
	return getFieldTags(m)
}

// Setting is a named configuration shared by several modules, e.g. the
// "types" file-type mappings or a sandbox account.
type Setting struct {
	Id          string         `db:"id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Config      []byte         `db:"config"`
	UpdateTime  pq.NullTime    `db:"update_time"`
}

// GetSettingFieldTags returns the SettingFieldTags value.
func GetSettingFieldTags() map[string]string {
	s := Setting{}
	return getFieldTags(s)
}

// Internal is a singleton row keyed by name, used for cross-process
// signals such as the last module update time.
type Internal struct {
	Name       string      `db:"name"`
	LastUpdate pq.NullTime `db:"last_update"`
}

// GetInternalFieldTags returns the InternalFieldTags value.
func GetInternalFieldTags() map[string]string {
	i := Internal{}
	return getFieldTags(i)
}

// VMLock serializes access to one virtual machine, identified by
// virtualization driver and VM label.
type VMLock struct {
	Id         int64       `db:"id"`
	Driver     string      `db:"driver"`
	Label      string      `db:"label"`
	Locked     bool        `db:"locked"`
	LastLocked pq.NullTime `db:"last_locked"`
	Counters   []byte      `db:"counters"`
}

// GetVMLockFieldTags returns the VMLockFieldTags value.
func GetVMLockFieldTags() map[string]string {
	l := VMLock{}
	return getFieldTags(l)
}

// getFieldTags retrieves FieldTags for internal use.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// generateCommand generates SQL command string using reflection
// Iterates through struct fields and builds column and value lists
// Skips fields with specified ignoreTag
// Returns formatted SQL command with columns and values
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag || tag == "-" || tag == "" {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}

func toStringArray(in []string) pq.StringArray {
	if in == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(in)
}
