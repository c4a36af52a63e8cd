/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/assert"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/queue"
	"github.com/certsocietegenerale/fame/pkg/storage"
)

type stubModule struct{}

func (m *stubModule) Init(*module.Settings) error { return nil }

type stubTI struct {
	calls *int
}

func (m *stubTI) Init(*module.Settings) error { return nil }

func (m *stubTI) IOCLookup(_ context.Context, value string) (*module.TIVerdict, error) {
	*m.calls++
	return &module.TIVerdict{
		Tags:       []string{"malicious"},
		Indicators: []map[string]interface{}{{"source": "feed", "value": value}},
	}, nil
}

type testModule struct {
	info    *module.StaticInfo
	factory module.Factory
}

type testEnv struct {
	db      *client.Fake
	queue   *queue.Fake
	store   *storage.Store
	service *Service
}

// typesConfig maps the extensions used by the tests to file types.
var typesConfig = module.NamedConfig{
	Name: "types",
	Config: []module.ConfigOption{
		{Name: "extensions", Type: module.OptionText, Default: "docx = word\nzip = zip\nexe = pe"},
		{Name: "mimes", Type: module.OptionText, Default: ""},
	},
}

func stub(info *module.StaticInfo) testModule {
	return testModule{info: info, factory: func() module.Module { return &stubModule{} }}
}

func newEnv(t *testing.T, mods ...testModule) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := client.NewFake()
	registry := module.NewRegistry()
	for _, m := range mods {
		assert.NilError(t, registry.Register(m.info, m.factory))
	}
	assert.NilError(t, module.SyncRegistry(ctx, db, registry))
	for _, registration := range registry.Registered() {
		assert.NilError(t, db.UpdateModuleEnabled(ctx, registration.Info.Name, true))
	}
	catalog, err := module.NewCatalog(ctx, db, registry)
	assert.NilError(t, err)
	store, err := storage.New(t.TempDir(), t.TempDir(), nil)
	assert.NilError(t, err)
	q := queue.NewFake()
	return &testEnv{db: db, queue: q, store: store, service: New(db, q, store, catalog)}
}

func (e *testEnv) submit(t *testing.T, name, content string) *client.File {
	t.Helper()
	f, existing, err := e.service.SubmitFile(context.Background(), name, strings.NewReader(content), []string{"lab"}, "alice")
	assert.NilError(t, err)
	assert.Assert(t, !existing)
	return f
}

// completeModule mimics a worker finishing one module: the module moves to
// executed, leaves pending and waiting, and the analysis resumes.
func (e *testEnv) completeModule(t *testing.T, analysisId, name string) {
	t.Helper()
	ctx := context.Background()
	added, err := e.db.AddAnalysisToSet(ctx, analysisId, client.AnalysisExecutedModules, name)
	assert.NilError(t, err)
	assert.Assert(t, added)
	_, err = e.db.RemoveAnalysisFromSet(ctx, analysisId, client.AnalysisPendingModules, name)
	assert.NilError(t, err)
	_, err = e.db.RemoveAnalysisFromSet(ctx, analysisId, client.AnalysisWaitingModules, name)
	assert.NilError(t, err)
	assert.NilError(t, e.service.Resume(ctx, analysisId))
}

func (e *testEnv) analysis(t *testing.T, id string) *client.Analysis {
	t.Helper()
	a, err := e.db.GetAnalysis(context.Background(), id)
	assert.NilError(t, err)
	return a
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func hasLog(a *client.Analysis, fragment string) bool {
	for _, line := range a.Logs {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func TestSubmitResolvesTypeFromExtension(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	f := env.submit(t, "report.docx", "word content")

	assert.Equal(t, f.Type, "word")
	assert.Equal(t, f.Names[0], "report.docx")
	assert.DeepEqual(t, []string(f.Groups), []string{"lab"})
	assert.DeepEqual(t, []string(f.Owners), []string{"alice"})
	_, err := os.Stat(f.FilePath.String)
	assert.NilError(t, err)
}

func TestSubmitExistingContentOnlyEnriched(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	first := env.submit(t, "report.docx", "word content")

	second, existing, err := env.service.SubmitFile(ctx, "invoice.docx", strings.NewReader("word content"), []string{"soc"}, "bob")
	assert.NilError(t, err)
	assert.Assert(t, existing)
	assert.Equal(t, second.Id, first.Id)
	assert.DeepEqual(t, []string(second.Names), []string{"report.docx", "invoice.docx"})
	assert.DeepEqual(t, []string(second.Groups), []string{"lab", "soc"})
	assert.DeepEqual(t, []string(second.Owners), []string{"alice", "bob"})
}

func TestAnalyzeRunsMatchingModuleToCompletion(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")

	a, err := env.service.Analyze(ctx, f, []string{"lab"}, "alice", nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, a.Status, client.AnalysisStatusPending)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"word_info"})

	tasks := env.queue.Tasks(module.DefaultQueue)
	assert.Equal(t, len(tasks), 1)
	assert.Equal(t, tasks[0].Module, "word_info")
	assert.Assert(t, !tasks[0].Preload)

	env.completeModule(t, a.Id, "word_info")
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Assert(t, a.EndTime.Valid)
}

func TestAnalyzeChainsThroughGeneratedFiles(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "zip_extract", Type: module.TypeProcessing,
			ActsOn: []string{"zip"}, Generates: []string{"pe"},
			NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		stub(&module.StaticInfo{
			Name: "pe_info", Type: module.TypeProcessing,
			ActsOn: []string{"pe"},
		}),
	)
	ctx := context.Background()
	f := env.submit(t, "archive.zip", "zip content")

	a, err := env.service.Analyze(ctx, f, nil, "alice", []string{"pe_info"}, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"zip_extract"})
	assert.DeepEqual(t, []string(a.WaitingModules), []string{"pe_info"})

	// zip_extract produces a pe, which unblocks pe_info.
	carved := writeTemp(t, "dropped.exe", "pe content")
	assert.NilError(t, env.service.AddGeneratedFiles(ctx, a.Id, "pe", []string{carved}))
	env.completeModule(t, a.Id, "zip_extract")

	a = env.analysis(t, a.Id)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"pe_info"})

	paths := env.service.GetFiles(a, f, "pe")
	assert.Equal(t, len(paths), 1)
	_, err = os.Stat(paths[0])
	assert.NilError(t, err)

	env.completeModule(t, a.Id, "pe_info")
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Equal(t, len(a.CanceledModules), 0)
	assert.DeepEqual(t, []string(a.ExecutedModules), []string{"zip_extract", "pe_info"})
}

func TestUnreachableModuleCancelled(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "word_info", Type: module.TypeProcessing,
			ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		stub(&module.StaticInfo{
			Name: "pe_info", Type: module.TypeProcessing,
			ActsOn: []string{"pe"},
		}),
	)
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")

	// No module produces a pe, and an explicit request suppresses the
	// automatic pass entirely: the analysis finishes right away.
	a, err := env.service.Analyze(ctx, f, nil, "alice", []string{"pe_info"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Equal(t, len(a.PendingModules), 0)
	assert.Equal(t, len(a.ExecutedModules), 0)
	assert.DeepEqual(t, []string(a.CanceledModules), []string{"pe_info"})
	assert.Assert(t, hasLog(a, `could not find execution path to "pe_info" (cancelled)`))
}

func TestExplicitRequestSuppressesAutomaticPass(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "word_info", Type: module.TypeProcessing,
			ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		stub(&module.StaticInfo{
			Name: "pe_info", Type: module.TypeProcessing,
			ActsOn: []string{"pe"},
		}),
	)
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")

	a, err := env.service.Analyze(ctx, f, nil, "alice", []string{"word_info"}, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"word_info"})
	assert.Equal(t, len(a.WaitingModules), 0)

	env.completeModule(t, a.Id, "word_info")
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Equal(t, len(a.CanceledModules), 0)
	assert.DeepEqual(t, []string(a.ExecutedModules), []string{"word_info"})
}

func TestAutomaticPassSkipsUnrunnableModules(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "word_info", Type: module.TypeProcessing,
			ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		stub(&module.StaticInfo{
			Name: "pe_info", Type: module.TypeProcessing,
			ActsOn: []string{"pe"},
		}),
	)
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")

	// pe_info cannot run on a word document; the automatic pass drops it
	// instead of parking it in waiting.
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"word_info"})
	assert.Equal(t, len(a.WaitingModules), 0)
	assert.Assert(t, hasLog(a, "module 'pe_info' cannot run yet, skipped"))

	env.completeModule(t, a.Id, "word_info")
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Equal(t, len(a.CanceledModules), 0)
}

func TestUnknownRequestedModuleCancelled(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")

	a, err := env.service.Analyze(ctx, f, nil, "alice", []string{"nonexistent"}, nil)
	assert.NilError(t, err)
	assert.Assert(t, hasLog(a, "module has been removed or disabled."))
	found := false
	for _, name := range a.CanceledModules {
		if name == "nonexistent" {
			found = true
		}
	}
	assert.Assert(t, found)
}

func TestMagicDisabledSkipsAutomaticModules(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")

	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Equal(t, len(a.ExecutedModules), 0)
	assert.Equal(t, len(env.queue.Tasks(module.DefaultQueue)), 0)
}

func TestHashSubmissionGoesThroughPreloading(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{Name: "fast_feed", Type: module.TypePreloading, Priority: 10}),
		stub(&module.StaticInfo{Name: "slow_feed", Type: module.TypePreloading, Priority: 100}),
	)
	ctx := context.Background()
	hash := strings.Repeat("ab", 16)
	f, existing, err := env.service.SubmitHash(ctx, hash, []string{"lab"}, "alice")
	assert.NilError(t, err)
	assert.Assert(t, !existing)
	assert.Equal(t, f.Type, "hash")
	assert.Equal(t, f.MD5, hash)

	a, err := env.service.Analyze(ctx, f, []string{"lab"}, "alice", nil, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"fast_feed"})
	tasks := env.queue.Tasks(module.DefaultQueue)
	assert.Equal(t, len(tasks), 1)
	assert.Assert(t, tasks[0].Preload)

	// fast_feed comes up empty; the next priority gets its turn.
	env.completeModule(t, a.Id, "fast_feed")
	a = env.analysis(t, a.Id)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"slow_feed"})

	// slow_feed finds the binary.
	binary := writeTemp(t, "payload.bin", "real content")
	assert.NilError(t, env.service.AddPreloadedFile(ctx, a.Id, binary))
	a = env.analysis(t, a.Id)
	assert.Assert(t, a.FileId != f.Id)
	attached, err := env.db.GetFile(ctx, a.FileId)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(attached.Names), []string{hash})
	assert.DeepEqual(t, []string(attached.Groups), []string{"lab"})

	env.completeModule(t, a.Id, "slow_feed")
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
}

func TestHashPreloadingExhausted(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{Name: "only_feed", Type: module.TypePreloading}),
	)
	ctx := context.Background()
	f, _, err := env.service.SubmitHash(ctx, strings.Repeat("cd", 16), nil, "alice")
	assert.NilError(t, err)

	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"only_feed"})

	env.completeModule(t, a.Id, "only_feed")
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Assert(t, hasLog(a, "no preloading module was able to find a file for submitted hash"))
}

func TestAddTagQueuesTriggeredModules(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "word_info", Type: module.TypeProcessing,
			ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		stub(&module.StaticInfo{
			Name: "office_triage", Type: module.TypeProcessing,
			TriggeredBy: []string{"office:*"},
		}),
	)
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"word_info"})

	assert.NilError(t, env.service.AddTag(ctx, a.Id, "office:macros"))
	a = env.analysis(t, a.Id)
	assert.DeepEqual(t, []string(a.Tags), []string{"office:macros"})
	assert.DeepEqual(t, []string(a.PendingModules), []string{"word_info", "office_triage"})

	// A repeated tag must not queue anything again.
	before := len(env.queue.Tasks(module.DefaultQueue))
	assert.NilError(t, env.service.AddTag(ctx, a.Id, "office:macros"))
	assert.Equal(t, len(env.queue.Tasks(module.DefaultQueue)), before)
}

func TestAddIOCFirstInsertionTriggersLookup(t *testing.T) {
	calls := 0
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "word_info", Type: module.TypeProcessing,
			ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		testModule{
			info:    &module.StaticInfo{Name: "ti_feed", Type: module.TypeThreatIntelligence},
			factory: func() module.Module { return &stubTI{calls: &calls} },
		},
	)
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)

	assert.NilError(t, env.service.AddIOC(ctx, a.Id, "evil.example.com", "word_info", []string{"c2"}))
	assert.Equal(t, calls, 1)

	// A second sighting merges tags and sources without another lookup.
	assert.NilError(t, env.service.AddIOC(ctx, a.Id, "evil.example.com", "other_module", []string{"dropper"}))
	assert.Equal(t, calls, 1)

	iocs, err := env.db.SelectAnalysisIOCs(ctx, a.Id)
	assert.NilError(t, err)
	assert.Equal(t, len(iocs), 1)
	assert.DeepEqual(t, []string(iocs[0].Tags), []string{"c2", "dropper"})
	assert.DeepEqual(t, []string(iocs[0].Sources), []string{"word_info", "other_module"})
	assert.DeepEqual(t, []string(iocs[0].TITags), []string{"malicious"})
}

func TestAddProbableNameDeduplicatesSubstrings(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)

	assert.NilError(t, env.service.AddProbableName(ctx, a.Id, "emotet"))
	f, err = env.db.GetFile(ctx, f.Id)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(f.ProbableNames), []string{"emotet"})

	// A substring of a known name adds nothing.
	assert.NilError(t, env.service.AddProbableName(ctx, a.Id, "emo"))
	f, err = env.db.GetFile(ctx, f.Id)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(f.ProbableNames), []string{"emotet"})

	// A more specific name replaces the one it contains.
	assert.NilError(t, env.service.AddProbableName(ctx, a.Id, "emotet_v2"))
	f, err = env.db.GetFile(ctx, f.Id)
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(f.ProbableNames), []string{"emotet_v2"})
}

func TestAddExtractedFileSpawnsChildAnalysis(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, []string{"lab"}, "alice", nil, map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)

	carved := writeTemp(t, "payload.exe", "carved content")
	assert.NilError(t, env.service.AddExtractedFile(ctx, a.Id, carved, true))

	a = env.analysis(t, a.Id)
	assert.Equal(t, len(a.ExtractedFiles), 1)
	child, err := env.db.GetFile(ctx, a.ExtractedFiles[0])
	assert.NilError(t, err)
	assert.DeepEqual(t, []string(child.ParentAnalyses), []string{a.Id})
	assert.Equal(t, len(child.Analyses), 1)
	childAnalysis := env.analysis(t, child.Analyses[0])
	assert.DeepEqual(t, []string(childAnalysis.Groups), []string{"lab"})
	assert.Equal(t, env.service.MagicEnabled(childAnalysis), false)
}

func TestAddExtractedFileKnownContentNotReanalyzed(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	known := env.submit(t, "payload.exe", "carved content")
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)

	carved := writeTemp(t, "payload.exe", "carved content")
	assert.NilError(t, env.service.AddExtractedFile(ctx, a.Id, carved, true))

	known, err = env.db.GetFile(ctx, known.Id)
	assert.NilError(t, err)
	assert.Equal(t, len(known.Analyses), 0)
	assert.DeepEqual(t, []string(known.ParentAnalyses), []string{a.Id})
}

func TestChangeTypeOnlyAppliesToMainFile(t *testing.T) {
	env := newEnv(t,
		stub(&module.StaticInfo{
			Name: "word_info", Type: module.TypeProcessing,
			ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
		}),
		stub(&module.StaticInfo{
			Name: "pe_info", Type: module.TypeProcessing,
			ActsOn: []string{"pe"},
		}),
	)
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, nil)
	assert.NilError(t, err)

	err = env.service.ChangeType(ctx, a.Id, "/somewhere/else", "pe")
	assert.Assert(t, errors.IsBadRequest(err))

	assert.NilError(t, env.service.ChangeType(ctx, a.Id, f.FilePath.String, "pe"))
	f, err = env.db.GetFile(ctx, f.Id)
	assert.NilError(t, err)
	assert.Equal(t, f.Type, "pe")
	a = env.analysis(t, a.Id)
	found := false
	for _, name := range a.PendingModules {
		if name == "pe_info" {
			found = true
		}
	}
	assert.Assert(t, found)
}

func TestResumeIsIdempotent(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, nil)
	assert.NilError(t, err)
	env.completeModule(t, a.Id, "word_info")

	before := len(env.queue.Tasks(module.DefaultQueue))
	assert.NilError(t, env.service.Resume(ctx, a.Id))
	assert.NilError(t, env.service.Resume(ctx, a.Id))
	a = env.analysis(t, a.Id)
	assert.Equal(t, a.Status, client.AnalysisStatusFinished)
	assert.Equal(t, len(env.queue.Tasks(module.DefaultQueue)), before)
}

func TestQueueModulesSkipsDuplicates(t *testing.T) {
	env := newEnv(t, stub(&module.StaticInfo{
		Name: "word_info", Type: module.TypeProcessing,
		ActsOn: []string{"word"}, NamedConfigs: []module.NamedConfig{typesConfig},
	}))
	ctx := context.Background()
	f := env.submit(t, "report.docx", "word content")
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil, map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)

	assert.NilError(t, env.service.QueueModules(ctx, a, f, []string{"word_info", "word_info"}, true))
	a = env.analysis(t, a.Id)
	assert.DeepEqual(t, []string(a.PendingModules), []string{"word_info"})
	assert.Equal(t, len(env.queue.Tasks(module.DefaultQueue)), 1)

	// Queueing an executed module is a no-op.
	env.completeModule(t, a.Id, "word_info")
	a = env.analysis(t, a.Id)
	assert.NilError(t, env.service.QueueModules(ctx, a, f, []string{"word_info"}, true))
	a = env.analysis(t, a.Id)
	assert.Equal(t, len(a.PendingModules), 0)
	assert.Equal(t, len(env.queue.Tasks(module.DefaultQueue)), 1)
}
