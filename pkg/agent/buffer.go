/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/isolated"
	"github.com/certsocietegenerale/fame/pkg/module"
)

// Buffer is the module context of an in-VM execution. Everything the
// module produces accumulates in memory and ships back to the runner in
// one results payload; file paths stay VM-local until the runner fetches
// them.
type Buffer struct {
	mu       sync.Mutex
	id       string
	options  map[string]interface{}
	buffered isolated.BufferedResults
}

var _ module.Context = &Buffer{}

// NewBuffer creates the buffered context of one task.
func NewBuffer(taskId string, options map[string]interface{}) *Buffer {
	return &Buffer{id: taskId, options: options}
}

// Snapshot copies the accumulated outputs.
func (b *Buffer) Snapshot() isolated.BufferedResults {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffered
}

func (b *Buffer) setResult(acted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffered.Result = b.buffered.Result || acted
}

func (b *Buffer) ID() string {
	return b.id
}

func (b *Buffer) AddTag(tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.buffered.Tags {
		if existing == tag {
			return nil
		}
	}
	b.buffered.Tags = append(b.buffered.Tags, tag)
	return nil
}

func (b *Buffer) AddIOC(value string, tags ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.buffered.IOCs {
		if b.buffered.IOCs[i].Value != value {
			continue
		}
		for _, tag := range tags {
			if !contains(b.buffered.IOCs[i].Tags, tag) {
				b.buffered.IOCs[i].Tags = append(b.buffered.IOCs[i].Tags, tag)
			}
		}
		return nil
	}
	b.buffered.IOCs = append(b.buffered.IOCs, isolated.IOC{Value: value, Tags: tags})
	return nil
}

func (b *Buffer) AddExtraction(label, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffered.Extractions = append(b.buffered.Extractions, isolated.Extraction{Label: label, Content: content})
	return nil
}

func (b *Buffer) AddProbableName(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !contains(b.buffered.ProbableNames, name) {
		b.buffered.ProbableNames = append(b.buffered.ProbableNames, name)
	}
	return nil
}

func (b *Buffer) AddSupportFile(_, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffered.SupportFiles = append(b.buffered.SupportFiles, path)
	return nil
}

func (b *Buffer) RegisterFiles(fileType string, paths ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buffered.GeneratedFiles == nil {
		b.buffered.GeneratedFiles = map[string][]string{}
	}
	b.buffered.GeneratedFiles[fileType] = append(b.buffered.GeneratedFiles[fileType], paths...)
	return nil
}

func (b *Buffer) AddExtractedFile(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffered.ExtractedFiles = append(b.buffered.ExtractedFiles, path)
	return nil
}

// AddPreloadedFile has no meaning inside a VM; preloading modules never
// run isolated.
func (b *Buffer) AddPreloadedFile(string) error {
	return errors.NewBadRequest("preloaded files cannot be attached from a vm")
}

// ChangeType needs the analysis store and is not available inside a VM.
func (b *Buffer) ChangeType(string, string) error {
	return errors.NewBadRequest("file types cannot be changed from a vm")
}

func (b *Buffer) Log(level, format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line := fmt.Sprintf("%s: %s: %s", time.Now().Format("2006-01-02 15:04"), level, fmt.Sprintf(format, args...))
	b.buffered.Logs = append(b.buffered.Logs, line)
}

func (b *Buffer) Options() map[string]interface{} {
	return b.options
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
