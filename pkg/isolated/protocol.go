/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package isolated executes modules inside managed virtual machines: it
// owns the VM lock protocol, the HTTP client speaking to the in-VM agent,
// and the runner gluing both to an analysis.
package isolated

import (
	"encoding/json"
)

// IOC is one observable collected inside the VM.
type IOC struct {
	Value string   `json:"value"`
	Tags  []string `json:"tags"`
}

// Extraction is one human-readable extraction collected inside the VM.
type Extraction struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// BufferedResults is everything a module execution accumulated in the VM.
// Paths are VM-local and must be fetched through the agent before use.
type BufferedResults struct {
	Logs           []string            `json:"logs"`
	Extractions    []Extraction        `json:"extractions"`
	IOCs           []IOC               `json:"iocs"`
	ProbableNames  []string            `json:"probable_names"`
	Tags           []string            `json:"tags"`
	GeneratedFiles map[string][]string `json:"generated_files"`
	ExtractedFiles []string            `json:"extracted_files"`
	SupportFiles   []string            `json:"support_files"`
	Result         bool                `json:"result"`
}

// TaskResults is the terminal payload of one agent task.
type TaskResults struct {
	Results       json.RawMessage `json:"results"`
	Buffered      BufferedResults `json:"_results"`
	ShouldRestore bool            `json:"should_restore"`
}

// ModuleInfo tells the agent which registered module to instantiate and
// with which configuration values.
type ModuleInfo struct {
	Name   string                            `json:"name"`
	Config map[string]interface{}            `json:"config"`
	Named  map[string]map[string]interface{} `json:"named_configs,omitempty"`
}
