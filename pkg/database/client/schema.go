/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// gorm models used for schema migration only. Columns must stay in sync
// with the sqlx entities in types.go.

type fileSchema struct {
	Id             string         `gorm:"column:id;primaryKey;type:uuid"`
	MD5            string         `gorm:"column:md5;index"`
	SHA1           string         `gorm:"column:sha1;index"`
	SHA256         string         `gorm:"column:sha256;uniqueIndex"`
	Type           string         `gorm:"column:type"`
	DetailedType   sql.NullString `gorm:"column:detailed_type"`
	Mime           sql.NullString `gorm:"column:mime"`
	Size           int64          `gorm:"column:size"`
	FilePath       sql.NullString `gorm:"column:filepath"`
	Names          pq.StringArray `gorm:"column:names;type:text[]"`
	Groups         pq.StringArray `gorm:"column:groups;type:text[]"`
	Owners         pq.StringArray `gorm:"column:owners;type:text[]"`
	ParentAnalyses pq.StringArray `gorm:"column:parent_analyses;type:text[]"`
	Analyses       pq.StringArray `gorm:"column:analyses;type:text[]"`
	ProbableNames  pq.StringArray `gorm:"column:probable_names;type:text[]"`
	Antivirus      []byte         `gorm:"column:antivirus;type:jsonb"`
	Comments       []byte         `gorm:"column:comments;type:jsonb"`
	CreateTime     sql.NullTime   `gorm:"column:create_time"`
}

func (fileSchema) TableName() string { return TFile }

type analysisSchema struct {
	Id                string         `gorm:"column:id;primaryKey;type:uuid"`
	FileId            string         `gorm:"column:file_id;index"`
	Status            string         `gorm:"column:status;index"`
	Analyst           sql.NullString `gorm:"column:analyst"`
	Modules           pq.StringArray `gorm:"column:modules;type:text[]"`
	PreloadingModules pq.StringArray `gorm:"column:preloading_modules;type:text[]"`
	PendingModules    pq.StringArray `gorm:"column:pending_modules;type:text[]"`
	WaitingModules    pq.StringArray `gorm:"column:waiting_modules;type:text[]"`
	ExecutedModules   pq.StringArray `gorm:"column:executed_modules;type:text[]"`
	CanceledModules   pq.StringArray `gorm:"column:canceled_modules;type:text[]"`
	Tags              pq.StringArray `gorm:"column:tags;type:text[]"`
	ProbableNames     pq.StringArray `gorm:"column:probable_names;type:text[]"`
	ExtractedFiles    pq.StringArray `gorm:"column:extracted_files;type:text[]"`
	Groups            pq.StringArray `gorm:"column:groups;type:text[]"`
	Logs              pq.StringArray `gorm:"column:logs;type:text[]"`
	Options           []byte         `gorm:"column:options;type:jsonb"`
	Results           []byte         `gorm:"column:results;type:jsonb"`
	GeneratedFiles    []byte         `gorm:"column:generated_files;type:jsonb"`
	SupportFiles      []byte         `gorm:"column:support_files;type:jsonb"`
	Extractions       []byte         `gorm:"column:extractions;type:jsonb"`
	CreateTime        sql.NullTime   `gorm:"column:create_time"`
	EndTime           sql.NullTime   `gorm:"column:end_time"`
}

func (analysisSchema) TableName() string { return TAnalysis }

type analysisIOCSchema struct {
	Id           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	AnalysisId   string         `gorm:"column:analysis_id;uniqueIndex:idx_analysis_ioc_value"`
	Value        string         `gorm:"column:value;uniqueIndex:idx_analysis_ioc_value"`
	Tags         pq.StringArray `gorm:"column:tags;type:text[]"`
	TITags       pq.StringArray `gorm:"column:ti_tags;type:text[]"`
	Sources      pq.StringArray `gorm:"column:sources;type:text[]"`
	TIIndicators []byte         `gorm:"column:ti_indicators;type:jsonb"`
	CreateTime   sql.NullTime   `gorm:"column:create_time"`
}

func (analysisIOCSchema) TableName() string { return TAnalysisIOC }

type moduleSchema struct {
	Id          string         `gorm:"column:id;primaryKey;type:uuid"`
	Name        string         `gorm:"column:name;uniqueIndex"`
	Type        string         `gorm:"column:type"`
	Enabled     bool           `gorm:"column:enabled"`
	Queue       string         `gorm:"column:queue"`
	Priority    int            `gorm:"column:priority"`
	ActsOn      pq.StringArray `gorm:"column:acts_on;type:text[]"`
	Generates   pq.StringArray `gorm:"column:generates;type:text[]"`
	TriggeredBy pq.StringArray `gorm:"column:triggered_by;type:text[]"`
	Description sql.NullString `gorm:"column:description"`
	Config      []byte         `gorm:"column:config;type:jsonb"`
	Diffs       []byte         `gorm:"column:diffs;type:jsonb"`
	CreateTime  sql.NullTime   `gorm:"column:create_time"`
	UpdateTime  sql.NullTime   `gorm:"column:update_time"`
}

func (moduleSchema) TableName() string { return TModule }

type settingSchema struct {
	Id          string         `gorm:"column:id;primaryKey;type:uuid"`
	Name        string         `gorm:"column:name;uniqueIndex"`
	Description sql.NullString `gorm:"column:description"`
	Config      []byte         `gorm:"column:config;type:jsonb"`
	UpdateTime  sql.NullTime   `gorm:"column:update_time"`
}

func (settingSchema) TableName() string { return TSetting }

type internalSchema struct {
	Name       string       `gorm:"column:name;primaryKey"`
	LastUpdate sql.NullTime `gorm:"column:last_update"`
}

func (internalSchema) TableName() string { return TInternal }

type vmLockSchema struct {
	Id         int64        `gorm:"column:id;primaryKey;autoIncrement"`
	Driver     string       `gorm:"column:driver;uniqueIndex:idx_vm_lock_driver_label"`
	Label      string       `gorm:"column:label;uniqueIndex:idx_vm_lock_driver_label"`
	Locked     bool         `gorm:"column:locked"`
	LastLocked sql.NullTime `gorm:"column:last_locked"`
	Counters   []byte       `gorm:"column:counters;type:jsonb"`
}

func (vmLockSchema) TableName() string { return TVMLock }

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&fileSchema{},
		&analysisSchema{},
		&analysisIOCSchema{},
		&moduleSchema{},
		&settingSchema{},
		&internalSchema{},
		&vmLockSchema{},
	)
}
