/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"time"

	sqrl "github.com/Masterminds/squirrel"
)

// Interface is the document store surface used by the rest of the
// pipeline. *Client implements it against Postgres; the in-memory fake
// implements it for tests.
type Interface interface {
	Close()

	// files
	InsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, id string) (*File, error)
	GetFileByHash(ctx context.Context, hash string) (*File, error)
	SelectFiles(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*File, error)
	CountFiles(ctx context.Context, query sqrl.Sqlizer) (int, error)
	AddFileToSet(ctx context.Context, id, column, value string) (bool, error)
	RemoveFileFromSet(ctx context.Context, id, column, value string) (bool, error)
	UpdateFileType(ctx context.Context, id, fileType string) error
	UpdateFileContent(ctx context.Context, id, path, fileType, detailedType, mime string, size int64) error
	UpdateFileAntivirus(ctx context.Context, id string, antivirus []byte) error
	UpdateFileProbableNames(ctx context.Context, id string, names []string) error
	UpdateFilePath(ctx context.Context, id, path string) error
	AppendFileComment(ctx context.Context, id string, comment []byte) error

	// analyses
	InsertAnalysis(ctx context.Context, analysis *Analysis) error
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	SelectAnalyses(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Analysis, error)
	CountAnalyses(ctx context.Context, query sqrl.Sqlizer) (int, error)
	UpdateAnalysisStatus(ctx context.Context, id, status string) error
	UpdateAnalysisStatusIf(ctx context.Context, id string, from []string, to string) (bool, error)
	UpdateAnalysisFile(ctx context.Context, id, fileId string) error
	SetAnalysisEndTime(ctx context.Context, id string) error
	AddAnalysisToSet(ctx context.Context, id, column, value string) (bool, error)
	RemoveAnalysisFromSet(ctx context.Context, id, column, value string) (bool, error)
	AppendAnalysisLog(ctx context.Context, id, line string) error
	SetAnalysisResult(ctx context.Context, id, module string, result []byte) error
	AddAnalysisGeneratedFiles(ctx context.Context, id, fileType string, paths []byte) error
	AddAnalysisSupportFile(ctx context.Context, id, module, name string) error
	AppendAnalysisExtraction(ctx context.Context, id string, extraction []byte) error

	// observables
	InsertAnalysisIOC(ctx context.Context, ioc *AnalysisIOC) (bool, error)
	MergeAnalysisIOC(ctx context.Context, analysisId, value string, tags, sources []string) error
	UpdateAnalysisIOCTI(ctx context.Context, analysisId, value string, tiTags []string, tiIndicators []byte) error
	SelectAnalysisIOCs(ctx context.Context, analysisId string) ([]*AnalysisIOC, error)

	// modules
	UpsertModule(ctx context.Context, module *Module) error
	GetModuleByName(ctx context.Context, name string) (*Module, error)
	SelectModules(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Module, error)
	UpdateModuleEnabled(ctx context.Context, name string, enabled bool) error
	UpdateModuleConfig(ctx context.Context, name string, moduleConfig, diffs []byte) error

	// settings
	UpsertSetting(ctx context.Context, setting *Setting) error
	GetSettingByName(ctx context.Context, name string) (*Setting, error)
	SelectSettings(ctx context.Context) ([]*Setting, error)
	UpdateSettingConfig(ctx context.Context, name string, settingConfig []byte) error

	// internals
	GetInternal(ctx context.Context, name string) (*Internal, error)
	TouchInternal(ctx context.Context, name string) error

	// vm locks
	AcquireVMLock(ctx context.Context, driver, label string, staleBefore time.Time) (bool, error)
	ReleaseVMLock(ctx context.Context, driver, label string) error
	IncrVMLockCounter(ctx context.Context, driver, label, module string) (int, error)
	ResetVMLockCounter(ctx context.Context, driver, label, module string) error
	GetVMLock(ctx context.Context, driver, label string) (*VMLock, error)
}

var _ Interface = &Client{}
