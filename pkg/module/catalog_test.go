/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package module

import (
	"context"
	"testing"

	"gotest.tools/assert"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
)

type fakeModule struct {
	settings *Settings
}

func (m *fakeModule) Init(settings *Settings) error {
	m.settings = settings
	return nil
}

func fakeFactory() Module {
	return &fakeModule{}
}

func register(t *testing.T, registry *Registry, info *StaticInfo) {
	t.Helper()
	assert.NilError(t, registry.Register(info, fakeFactory))
}

func enableAll(t *testing.T, db client.Interface, registry *Registry) {
	t.Helper()
	for _, registration := range registry.Registered() {
		assert.NilError(t, db.UpdateModuleEnabled(context.Background(), registration.Info.Name, true))
	}
}

func buildCatalog(t *testing.T, db client.Interface, registry *Registry) *Catalog {
	t.Helper()
	ctx := context.Background()
	assert.NilError(t, SyncRegistry(ctx, db, registry))
	enableAll(t, db, registry)
	catalog, err := NewCatalog(ctx, db, registry)
	assert.NilError(t, err)
	return catalog
}

func TestSyncCreatesModulesDisabled(t *testing.T) {
	ctx := context.Background()
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{Name: "pe_info", Type: TypeProcessing, ActsOn: []string{"pe"}})

	assert.NilError(t, SyncRegistry(ctx, db, registry))
	record, err := db.GetModuleByName(ctx, "pe_info")
	assert.NilError(t, err)
	assert.Equal(t, record.Enabled, false)
	assert.Equal(t, record.Queue, DefaultQueue)

	// A second sync must not flip an operator-enabled module back.
	assert.NilError(t, db.UpdateModuleEnabled(ctx, "pe_info", true))
	assert.NilError(t, SyncRegistry(ctx, db, registry))
	record, err = db.GetModuleByName(ctx, "pe_info")
	assert.NilError(t, err)
	assert.Equal(t, record.Enabled, true)
}

func TestSyncDisablesModuleWithIncompleteNamedConfig(t *testing.T) {
	ctx := context.Background()
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{
		Name: "sandbox",
		Type: TypeProcessing,
		NamedConfigs: []NamedConfig{{
			Name:   "sandbox_account",
			Config: []ConfigOption{{Name: "api_key", Type: OptionStr}},
		}},
	})

	assert.NilError(t, SyncRegistry(ctx, db, registry))
	assert.NilError(t, db.UpdateModuleEnabled(ctx, "sandbox", true))

	// api_key still has no value: the next sync turns the module off.
	assert.NilError(t, SyncRegistry(ctx, db, registry))
	record, err := db.GetModuleByName(ctx, "sandbox")
	assert.NilError(t, err)
	assert.Equal(t, record.Enabled, false)
}

func TestTriggeredByExactAndWildcard(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{
		Name: "url_download", Type: TypeProcessing,
		TriggeredBy: []string{"url"},
	})
	register(t, registry, &StaticInfo{
		Name: "office_triage", Type: TypeProcessing,
		TriggeredBy: []string{"office:*"},
	})
	catalog := buildCatalog(t, db, registry)

	assert.DeepEqual(t, catalog.TriggeredBy("url"), []string{"url_download"})
	assert.DeepEqual(t, catalog.TriggeredBy("office:macros"), []string{"office_triage"})
	assert.Assert(t, catalog.TriggeredBy("pdf") == nil)
}

func TestGeneralPurposeGetsGeneratedFileTriggers(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{
		Name: "pe_info", Type: TypeProcessing, ActsOn: []string{"pe"},
	})
	catalog := buildCatalog(t, db, registry)

	assert.DeepEqual(t, catalog.GeneralPurpose(), []string{"pe_info"})
	assert.DeepEqual(t, catalog.TriggeredBy(GeneratedFileTrigger("pe")), []string{"pe_info"})
}

func TestNextPreloadingModulePicksSmallestPriority(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{Name: "slow_feed", Type: TypePreloading, Priority: 100})
	register(t, registry, &StaticInfo{Name: "fast_feed", Type: TypePreloading, Priority: 10})
	catalog := buildCatalog(t, db, registry)

	next, err := catalog.NextPreloadingModule(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "fast_feed")

	next, err = catalog.NextPreloadingModule(nil, []string{"fast_feed"})
	assert.NilError(t, err)
	assert.Equal(t, next, "slow_feed")

	_, err = catalog.NextPreloadingModule(nil, []string{"fast_feed", "slow_feed"})
	assert.Assert(t, errors.IsDispatchingError(err))

	next, err = catalog.NextPreloadingModule([]string{"slow_feed"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "slow_feed")
}

func TestPreloadingPriorityTieKeepsRegistrationOrder(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{Name: "first_feed", Type: TypePreloading, Priority: 50})
	register(t, registry, &StaticInfo{Name: "second_feed", Type: TypePreloading, Priority: 50})
	catalog := buildCatalog(t, db, registry)

	next, err := catalog.NextPreloadingModule(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "first_feed")
}

func TestCatalogDispatchUsesEnabledModules(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{
		Name: "zip_extract", Type: TypeProcessing,
		ActsOn: []string{"zip"}, Generates: []string{"pe"},
	})
	register(t, registry, &StaticInfo{
		Name: "pe_info", Type: TypeProcessing, ActsOn: []string{"pe"},
	})
	catalog := buildCatalog(t, db, registry)

	next, err := catalog.NextModule([]string{"zip"}, "pe_info", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "zip_extract")
}

func TestDisabledModuleLeftOutOfCatalog(t *testing.T) {
	ctx := context.Background()
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{Name: "pe_info", Type: TypeProcessing, ActsOn: []string{"pe"}})

	assert.NilError(t, SyncRegistry(ctx, db, registry))
	catalog, err := NewCatalog(ctx, db, registry)
	assert.NilError(t, err)

	_, ok := catalog.ProcessingEntry("pe_info")
	assert.Assert(t, !ok)
	_, err = catalog.NextModule([]string{"pe"}, "pe_info", nil)
	assert.Assert(t, errors.IsDispatchingError(err))
}

func TestSettingsMergeOptionsAndNamedConfigs(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{
		Name: "sandbox", Type: TypeProcessing,
		Config: []ConfigOption{
			{Name: "timeout", Type: OptionInteger, Default: 60, Option: true},
			{Name: "endpoint", Type: OptionStr, Default: "http://localhost"},
		},
		NamedConfigs: []NamedConfig{{
			Name:   "sandbox_account",
			Config: []ConfigOption{{Name: "api_key", Type: OptionStr, Default: "xyz"}},
		}},
	})
	catalog := buildCatalog(t, db, registry)

	entry, ok := catalog.ProcessingEntry("sandbox")
	assert.Assert(t, ok)

	settings, err := catalog.Settings(entry, map[string]interface{}{"timeout": "120"})
	assert.NilError(t, err)
	timeout, _ := settings.Get("timeout")
	assert.Equal(t, timeout, 120)
	assert.Equal(t, settings.GetString("endpoint"), "http://localhost")
	assert.Equal(t, settings.NamedConfig("sandbox_account")["api_key"], "xyz")

	instance, err := catalog.NewInstance(entry, nil)
	assert.NilError(t, err)
	fake := instance.(*fakeModule)
	defaultTimeout, _ := fake.settings.Get("timeout")
	// Config values round-trip through JSON, numbers come back as float64.
	assert.Equal(t, defaultTimeout, float64(60))
}

func TestOptionsCollectedAcrossModules(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{
		Name: "sandbox_a", Type: TypeProcessing,
		Config: []ConfigOption{{Name: "allow_internet", Type: OptionBool, Default: false, Option: true}},
	})
	register(t, registry, &StaticInfo{
		Name: "sandbox_b", Type: TypeProcessing,
		Config: []ConfigOption{{Name: "allow_internet", Type: OptionBool, Default: false, Option: true}},
	})
	catalog := buildCatalog(t, db, registry)

	info, ok := catalog.Options()[OptionBool]["allow_internet"]
	assert.Assert(t, ok)
	assert.DeepEqual(t, info.Modules, []string{"sandbox_a", "sandbox_b"})
}

func TestFiletypeEntriesIndexedByActsOn(t *testing.T) {
	db := client.NewFake()
	registry := NewRegistry()
	register(t, registry, &StaticInfo{Name: "office_details", Type: TypeFiletype, ActsOn: []string{"word", "excel"}})
	register(t, registry, &StaticInfo{Name: "magic_fallback", Type: TypeFiletype})
	catalog := buildCatalog(t, db, registry)

	word := catalog.FiletypeEntriesFor("word")
	assert.Equal(t, len(word), 1)
	assert.Equal(t, word[0].Record.Name, "office_details")
	fallback := catalog.FiletypeEntriesFor("*")
	assert.Equal(t, len(fallback), 1)
	assert.Equal(t, fallback[0].Record.Name, "magic_fallback")
}

func TestCoerceBoolOptionSpellings(t *testing.T) {
	for _, raw := range []interface{}{0, float64(0), "0", "False", false} {
		value, err := CoerceOptionValue(OptionBool, raw)
		assert.NilError(t, err)
		assert.Equal(t, value, false)
	}
	// Anything outside the false spellings is true, including other
	// casings and the empty string.
	for _, raw := range []interface{}{1, "1", "false", "None", "", "no", true} {
		value, err := CoerceOptionValue(OptionBool, raw)
		assert.NilError(t, err)
		assert.Equal(t, value, true)
	}
}
