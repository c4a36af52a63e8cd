/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package module

// Module types as persisted in the modules table.
const (
	TypeProcessing         = "Processing"
	TypePreloading         = "Preloading"
	TypeReporting          = "Reporting"
	TypeAntivirus          = "Antivirus"
	TypeThreatIntelligence = "Threat Intelligence"
	TypeVirtualization     = "Virtualization"
	TypeFiletype           = "Filetype"
)

// Option value types.
const (
	OptionStr     = "str"
	OptionText    = "text"
	OptionInteger = "integer"
	OptionBool    = "bool"
)

// ConfigOption is one declared setting of a module or named configuration.
// When Option is true the setting may be overridden per analysis.
type ConfigOption struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Value       interface{} `json:"value,omitempty"`
	Option      bool        `json:"option,omitempty"`
}

// NamedConfig is a configuration shared by several modules under a well
// known name, e.g. "types" or a sandbox account.
type NamedConfig struct {
	Name        string
	Description string
	Config      []ConfigOption
}

// VMConfig describes the virtual machine an isolated module executes in.
type VMConfig struct {
	Label        string
	IPAddress    string
	Port         int
	Snapshot     string
	AlwaysReady  bool
	RestoreAfter int
	Driver       string
}

// StaticInfo is the compiled-in metadata of one module.
type StaticInfo struct {
	Name         string
	Type         string
	Description  string
	ActsOn       []string
	Generates    []string
	TriggeredBy  []string
	QueueName    string
	Priority     int
	Config       []ConfigOption
	NamedConfigs []NamedConfig
	VM           *VMConfig
}

// Diffs records operator edits to declared list fields, so a registry sync
// does not clobber them.
type Diffs struct {
	Added   map[string][]string `json:"added,omitempty"`
	Removed map[string][]string `json:"removed,omitempty"`
}

// Settings is the resolved configuration handed to a module instance:
// module config values merged with per-analysis options, plus the named
// configurations the module declared.
type Settings struct {
	Values map[string]interface{}
	Named  map[string]map[string]interface{}
}

// Get returns a module setting.
func (s *Settings) Get(name string) (interface{}, bool) {
	value, ok := s.Values[name]
	return value, ok
}

// GetString returns a string setting, or "" when unset.
func (s *Settings) GetString(name string) string {
	if value, ok := s.Values[name]; ok {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

// NamedConfig returns one named configuration as a value map.
func (s *Settings) NamedConfig(name string) map[string]interface{} {
	return s.Named[name]
}
