/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package module

import (
	"context"
)

// Module is the minimal surface every module implements. Instances are
// created per execution by the registry factory and initialized with their
// resolved settings before use.
type Module interface {
	Init(settings *Settings) error
}

// Context is what a running module sees of its analysis. The analysis
// service implements it against the store; the in-VM agent implements it
// against an in-memory buffer shipped back over HTTP.
type Context interface {
	ID() string
	AddTag(tag string) error
	AddIOC(value string, tags ...string) error
	AddExtraction(label, content string) error
	AddProbableName(name string) error
	AddSupportFile(module, path string) error
	RegisterFiles(fileType string, paths ...string) error
	AddExtractedFile(path string) error
	AddPreloadedFile(path string) error
	ChangeType(path, newType string) error
	Log(level, format string, args ...interface{})
	Options() map[string]interface{}
}

// Processor is a processing module. Each runs the module against one
// target; it returns the result document to persist under the module's
// name and whether the module acted on the target.
type Processor interface {
	Module
	Each(ctx context.Context, run Context, target, fileType string) (interface{}, bool, error)
}

// Preloader fetches the binary of a hash-only submission from an external
// source. On success it attaches the data through run.
type Preloader interface {
	Module
	Preload(ctx context.Context, run Context, hash string) (bool, error)
}

// FiletypeGuesser refines the detected type of a file. It returns the
// better type, or "" to leave the current one.
type FiletypeGuesser interface {
	Module
	RecognizeFiletype(path, currentType string) (string, error)
}

// AntivirusScanner submits a file to one antivirus engine.
type AntivirusScanner interface {
	Module
	ScanFile(ctx context.Context, path string) (interface{}, error)
}

// TIVerdict is the outcome of a threat intelligence lookup.
type TIVerdict struct {
	Tags       []string                 `json:"tags"`
	Indicators []map[string]interface{} `json:"indicators"`
}

// IOCLookup queries one threat intelligence source for an observable.
type IOCLookup interface {
	Module
	IOCLookup(ctx context.Context, value string) (*TIVerdict, error)
}

// Reporter is notified when an analysis reaches a terminal status.
type Reporter interface {
	Module
	Done(ctx context.Context, analysisId string) error
}

// Virtualizer drives one virtualization backend (start, stop, snapshot
// restore) for isolated module VMs.
type Virtualizer interface {
	Module
	Configure(label, ip string, port int) error
	Prepare(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RestoreSnapshot(ctx context.Context, snapshot string) error
	IsReady(ctx context.Context) bool
}
