/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package module

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	dbutils "github.com/certsocietegenerale/fame/pkg/database/utils"
	"github.com/certsocietegenerale/fame/pkg/errors"
)

// DefaultQueue is the queue modules run on when they do not name one.
const DefaultQueue = "unix"

// Factory creates a fresh module instance for one execution.
type Factory func() Module

// Registration binds compiled-in module metadata to its factory.
type Registration struct {
	Info    *StaticInfo
	Factory Factory
}

// Registry is the module host: the ordered collection of modules compiled
// into this binary. Registration order is observable, it breaks ties in
// dispatching.
type Registry struct {
	mu     sync.Mutex
	order  []*Registration
	byName map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Registration)}
}

// Register adds a module to the registry. Duplicate names are rejected.
func (r *Registry) Register(info *StaticInfo, factory Factory) error {
	if info == nil || info.Name == "" || factory == nil {
		return errors.NewBadRequest("invalid module registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[info.Name]; ok {
		return errors.NewBadRequest("module %s is already registered", info.Name)
	}
	registration := &Registration{Info: info, Factory: factory}
	r.order = append(r.order, registration)
	r.byName[info.Name] = registration
	return nil
}

// MustRegister is Register for static initialization.
func (r *Registry) MustRegister(info *StaticInfo, factory Factory) {
	if err := r.Register(info, factory); err != nil {
		panic(err)
	}
}

// Registered returns all registrations in registration order.
func (r *Registry) Registered() []*Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*Registration, len(r.order))
	copy(result, r.order)
	return result
}

// Get returns the registration of one module.
func (r *Registry) Get(name string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	registration, ok := r.byName[name]
	return registration, ok
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a module to the process-wide registry.
func Register(info *StaticInfo, factory Factory) error {
	return defaultRegistry.Register(info, factory)
}

// SyncRegistry reconciles the registry into the modules and settings
// tables. New modules are created disabled; configured values survive by
// option name and type; operator edits to list fields are honored through
// recorded diffs. Modules whose named configurations are incomplete get
// disabled.
func SyncRegistry(ctx context.Context, db client.Interface, registry *Registry) error {
	incomplete := make(map[string]bool)

	for _, registration := range registry.Registered() {
		info := registration.Info

		for _, named := range info.NamedConfigs {
			merged, err := syncNamedConfig(ctx, db, named)
			if err != nil {
				return err
			}
			if IncompleteConfig(merged) {
				incomplete[named.Name] = true
			}
		}

		if err := syncModule(ctx, db, info); err != nil {
			return err
		}
	}

	// Second pass: a module depending on an incomplete named config must
	// not stay enabled.
	for _, registration := range registry.Registered() {
		info := registration.Info
		for _, named := range info.NamedConfigs {
			if !incomplete[named.Name] {
				continue
			}
			record, err := db.GetModuleByName(ctx, info.Name)
			if err != nil {
				return err
			}
			if record.Enabled {
				klog.Warningf("disabling %s for incomplete named config %s", info.Name, named.Name)
				if err := db.UpdateModuleEnabled(ctx, info.Name, false); err != nil {
					return err
				}
			}
			break
		}
	}
	return nil
}

func syncNamedConfig(ctx context.Context, db client.Interface, named NamedConfig) ([]ConfigOption, error) {
	merged := named.Config
	existing, err := db.GetSettingByName(ctx, named.Name)
	switch {
	case err == nil:
		var stored []ConfigOption
		if len(existing.Config) > 0 {
			if err := json.Unmarshal(existing.Config, &stored); err != nil {
				return nil, err
			}
		}
		merged = MergeConfig(named.Config, stored)
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		if err := db.UpdateSettingConfig(ctx, named.Name, data); err != nil {
			return nil, err
		}
	case errors.IsNotFound(err):
		data, err := json.Marshal(named.Config)
		if err != nil {
			return nil, err
		}
		setting := &client.Setting{
			Id:          uuid.NewString(),
			Name:        named.Name,
			Description: dbutils.NullString(named.Description),
			Config:      data,
			UpdateTime:  dbutils.NullTime(time.Now().UTC()),
		}
		if err := db.UpsertSetting(ctx, setting); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return merged, nil
}

func syncModule(ctx context.Context, db client.Interface, info *StaticInfo) error {
	declaredConfig := info.Config
	var diffs *Diffs

	existing, err := db.GetModuleByName(ctx, info.Name)
	switch {
	case err == nil:
		var stored []ConfigOption
		if len(existing.Config) > 0 {
			if err := json.Unmarshal(existing.Config, &stored); err != nil {
				return err
			}
		}
		declaredConfig = MergeConfig(info.Config, stored)
		if len(existing.Diffs) > 0 {
			diffs = &Diffs{}
			if err := json.Unmarshal(existing.Diffs, diffs); err != nil {
				return err
			}
		}
	case errors.IsNotFound(err):
	default:
		return err
	}

	configData, err := json.Marshal(declaredConfig)
	if err != nil {
		return err
	}
	var diffsData []byte
	if diffs != nil {
		if diffsData, err = json.Marshal(diffs); err != nil {
			return err
		}
	}

	queue := info.QueueName
	if queue == "" {
		queue = DefaultQueue
	}

	record := &client.Module{
		Id:          uuid.NewString(),
		Name:        info.Name,
		Type:        info.Type,
		Enabled:     false,
		Queue:       queue,
		Priority:    info.Priority,
		ActsOn:      pq.StringArray(ApplyDiffs(info.ActsOn, diffs, "acts_on")),
		Generates:   pq.StringArray(ApplyDiffs(info.Generates, diffs, "generates")),
		TriggeredBy: pq.StringArray(ApplyDiffs(info.TriggeredBy, diffs, "triggered_by")),
		Description: dbutils.NullString(info.Description),
		Config:      configData,
		Diffs:       diffsData,
		CreateTime:  dbutils.NullTime(time.Now().UTC()),
		UpdateTime:  dbutils.NullTime(time.Now().UTC()),
	}
	if existing != nil {
		record.Id = existing.Id
		record.Enabled = existing.Enabled
		record.CreateTime = existing.CreateTime
	}
	return db.UpsertModule(ctx, record)
}
