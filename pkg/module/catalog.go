/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package module

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/dispatcher"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// GeneratedFileTrigger returns the synthetic tag fired when an analysis
// produces a file of the given type.
func GeneratedFileTrigger(fileType string) string {
	return "_generated_file(" + fileType + ")"
}

// Entry is one enabled module: its persisted record, compiled-in metadata
// and factory, plus the parsed effective configuration.
type Entry struct {
	Record  *client.Module
	Info    *StaticInfo
	Factory Factory
	Config  []ConfigOption
}

// OptionInfo describes one per-analysis option and the modules honoring
// it.
type OptionInfo struct {
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
	Modules     []string    `json:"modules"`
}

type dynamicTrigger struct {
	pattern string
	modules []string
}

// Catalog is the read-mostly index over enabled modules one process works
// with. It is rebuilt whenever modules change.
type Catalog struct {
	processing      map[string]*Entry
	processingOrder []*Entry
	preloading      []*Entry
	reporting       []*Entry
	antivirus       []*Entry
	ti              []*Entry
	virtualization  map[string]*Entry
	filetype        map[string][]*Entry
	triggers        map[string][]string
	dynamicTriggers []dynamicTrigger
	general         []string
	options         map[string]map[string]*OptionInfo
	namedConfigs    map[string]map[string]interface{}
	dispatch        *dispatcher.Dispatcher
}

// NewCatalog loads enabled module records and indexes them. Records
// without a matching registration are skipped with a warning; they belong
// to a binary carrying a different module set.
func NewCatalog(ctx context.Context, db client.Interface, registry *Registry) (*Catalog, error) {
	c := &Catalog{
		processing:     make(map[string]*Entry),
		virtualization: make(map[string]*Entry),
		filetype:       make(map[string][]*Entry),
		triggers:       make(map[string][]string),
		options: map[string]map[string]*OptionInfo{
			OptionStr:     {},
			OptionText:    {},
			OptionInteger: {},
			OptionBool:    {},
		},
		namedConfigs: make(map[string]map[string]interface{}),
	}

	records, err := db.SelectModules(ctx, sqrl.Eq{"enabled": true}, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*client.Module, len(records))
	for _, record := range records {
		byName[record.Name] = record
	}

	settings, err := db.SelectSettings(ctx)
	if err != nil {
		return nil, err
	}
	for _, setting := range settings {
		var options []ConfigOption
		if len(setting.Config) > 0 {
			if err := json.Unmarshal(setting.Config, &options); err != nil {
				return nil, err
			}
		}
		c.namedConfigs[setting.Name] = ConfigValues(options)
	}

	var specs []*dispatcher.Spec
	for _, registration := range registry.Registered() {
		record, ok := byName[registration.Info.Name]
		if !ok {
			continue
		}
		entry := &Entry{Record: record, Info: registration.Info, Factory: registration.Factory}
		if len(record.Config) > 0 {
			if err := json.Unmarshal(record.Config, &entry.Config); err != nil {
				return nil, err
			}
		}
		delete(byName, record.Name)

		switch registration.Info.Type {
		case TypeProcessing:
			c.addProcessing(entry)
			specs = append(specs, &dispatcher.Spec{
				Name:      record.Name,
				ActsOn:    record.ActsOn,
				Generates: record.Generates,
			})
		case TypePreloading:
			c.preloading = append(c.preloading, entry)
			c.addOptions(entry)
		case TypeReporting:
			c.reporting = append(c.reporting, entry)
		case TypeAntivirus:
			c.antivirus = append(c.antivirus, entry)
		case TypeThreatIntelligence:
			c.ti = append(c.ti, entry)
		case TypeVirtualization:
			c.virtualization[record.Name] = entry
		case TypeFiletype:
			c.addFiletype(entry)
		default:
			klog.Warningf("module %s has unknown type %s", record.Name, registration.Info.Type)
		}
	}
	for name := range byName {
		klog.Warningf("enabled module %s has no registration in this binary", name)
	}

	c.dispatch = dispatcher.New(specs)
	return c, nil
}

func (c *Catalog) addProcessing(entry *Entry) {
	c.processing[entry.Record.Name] = entry
	c.processingOrder = append(c.processingOrder, entry)
	c.addOptions(entry)

	if len(entry.Record.TriggeredBy) > 0 {
		for _, trigger := range entry.Record.TriggeredBy {
			if strings.ContainsAny(trigger, "*?[") {
				c.addDynamicTrigger(trigger, entry.Record.Name)
			} else {
				c.triggers[trigger] = append(c.triggers[trigger], entry.Record.Name)
			}
		}
		return
	}

	c.general = append(c.general, entry.Record.Name)
	for _, sourceType := range entry.Record.ActsOn {
		trigger := GeneratedFileTrigger(sourceType)
		c.triggers[trigger] = append(c.triggers[trigger], entry.Record.Name)
	}
}

func (c *Catalog) addDynamicTrigger(pattern, module string) {
	for i := range c.dynamicTriggers {
		if c.dynamicTriggers[i].pattern == pattern {
			c.dynamicTriggers[i].modules = append(c.dynamicTriggers[i].modules, module)
			return
		}
	}
	c.dynamicTriggers = append(c.dynamicTriggers, dynamicTrigger{pattern: pattern, modules: []string{module}})
}

func (c *Catalog) addFiletype(entry *Entry) {
	if len(entry.Record.ActsOn) == 0 {
		c.filetype["*"] = append(c.filetype["*"], entry)
		return
	}
	for _, actsOn := range entry.Record.ActsOn {
		c.filetype[actsOn] = append(c.filetype[actsOn], entry)
	}
}

func (c *Catalog) addOptions(entry *Entry) {
	for _, option := range entry.Config {
		if !option.Option {
			continue
		}
		typed, ok := c.options[option.Type]
		if !ok {
			continue
		}
		if _, ok := typed[option.Name]; !ok {
			typed[option.Name] = &OptionInfo{
				Default:     OptionValue(option),
				Description: option.Description,
			}
		}
		typed[option.Name].Modules = append(typed[option.Name].Modules, entry.Record.Name)
	}
}

// Entry returns one enabled queueable module: processing, preloading or
// antivirus.
func (c *Catalog) Entry(name string) (*Entry, bool) {
	if entry, ok := c.processing[name]; ok {
		return entry, true
	}
	for _, list := range [][]*Entry{c.preloading, c.antivirus} {
		for _, entry := range list {
			if entry.Record.Name == name {
				return entry, true
			}
		}
	}
	return nil, false
}

// ProcessingEntry returns one enabled processing module.
func (c *Catalog) ProcessingEntry(name string) (*Entry, bool) {
	entry, ok := c.processing[name]
	return entry, ok
}

// ProcessingEntries returns all enabled processing modules in registration
// order.
func (c *Catalog) ProcessingEntries() []*Entry {
	return c.processingOrder
}

// PreloadingEntries returns all enabled preloading modules in registration
// order.
func (c *Catalog) PreloadingEntries() []*Entry {
	return c.preloading
}

// ReportingEntries returns all enabled reporting modules.
func (c *Catalog) ReportingEntries() []*Entry {
	return c.reporting
}

// AntivirusEntries returns all enabled antivirus modules.
func (c *Catalog) AntivirusEntries() []*Entry {
	return c.antivirus
}

// ThreatIntelligenceEntries returns all enabled threat intelligence
// modules.
func (c *Catalog) ThreatIntelligenceEntries() []*Entry {
	return c.ti
}

// VirtualizationEntry returns one enabled virtualization driver.
func (c *Catalog) VirtualizationEntry(name string) (*Entry, bool) {
	entry, ok := c.virtualization[name]
	return entry, ok
}

// FiletypeEntriesFor returns the filetype modules registered for one
// current type. The "*" key collects the type-agnostic ones.
func (c *Catalog) FiletypeEntriesFor(currentType string) []*Entry {
	return c.filetype[currentType]
}

// TriggeredBy returns the modules whose triggers match the tag, exact
// triggers first, then wildcard triggers in registration order.
func (c *Catalog) TriggeredBy(tag string) []string {
	var results []string
	results = append(results, c.triggers[tag]...)
	for _, dt := range c.dynamicTriggers {
		if ok, err := path.Match(dt.pattern, tag); err == nil && ok {
			results = append(results, dt.modules...)
		}
	}
	return results
}

// GeneralPurpose returns the modules that run against every supported
// submission.
func (c *Catalog) GeneralPurpose() []string {
	return c.general
}

// Options returns the per-analysis options grouped by value type.
func (c *Catalog) Options() map[string]map[string]*OptionInfo {
	return c.options
}

// NextModule resolves the next module to execute to reach target.
func (c *Catalog) NextModule(typesAvailable []string, target string, excludedModules []string) (string, error) {
	return c.dispatch.NextModule(typesAvailable, target, excludedModules)
}

// NextPreloadingModule picks the next preloading module to try: the one
// with the smallest priority among the candidates. With an explicit
// candidate list, only those count. Already-attempted modules are
// excluded.
func (c *Catalog) NextPreloadingModule(candidates, excluded []string) (string, error) {
	var best *Entry
	for _, entry := range c.preloading {
		name := entry.Record.Name
		if len(candidates) > 0 && !utils.StringInSlice(name, candidates) {
			continue
		}
		if utils.StringInSlice(name, excluded) {
			continue
		}
		if best == nil || entry.Record.Priority < best.Record.Priority {
			best = entry
		}
	}
	if best == nil {
		return "", errors.NewDispatchingError("no more preloading module available")
	}
	return best.Record.Name, nil
}

// Queue returns the queue a module executes on.
func (c *Catalog) Queue(name string) string {
	if entry, ok := c.Entry(name); ok {
		return entry.Record.Queue
	}
	return DefaultQueue
}

// Settings resolves the configuration for one module execution: effective
// config values, per-analysis option overrides coerced to their declared
// types, and the module's named configurations.
func (c *Catalog) Settings(entry *Entry, analysisOptions map[string]interface{}) (*Settings, error) {
	values := ConfigValues(entry.Config)
	for _, option := range entry.Config {
		if !option.Option {
			continue
		}
		raw, ok := analysisOptions[option.Name]
		if !ok {
			continue
		}
		coerced, err := CoerceOptionValue(option.Type, raw)
		if err != nil {
			return nil, err
		}
		values[option.Name] = coerced
	}
	named := make(map[string]map[string]interface{}, len(entry.Info.NamedConfigs))
	for _, nc := range entry.Info.NamedConfigs {
		values, ok := c.namedConfigs[nc.Name]
		if !ok {
			return nil, errors.NewMissingConfiguration("missing named config %s for module %s", nc.Name, entry.Record.Name)
		}
		named[nc.Name] = values
	}
	return &Settings{Values: values, Named: named}, nil
}

// NamedConfigValues returns the stored value map of one named
// configuration.
func (c *Catalog) NamedConfigValues(name string) (map[string]interface{}, bool) {
	values, ok := c.namedConfigs[name]
	return values, ok
}

// NewInstance creates and initializes a module instance for one
// execution.
func (c *Catalog) NewInstance(entry *Entry, analysisOptions map[string]interface{}) (Module, error) {
	settings, err := c.Settings(entry, analysisOptions)
	if err != nil {
		return nil, err
	}
	instance := entry.Factory()
	if err := instance.Init(settings); err != nil {
		return nil, errors.NewModuleInitializationError(entry.Record.Name, err.Error())
	}
	return instance, nil
}
