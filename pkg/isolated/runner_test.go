/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package isolated

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/queue"
	"github.com/certsocietegenerale/fame/pkg/storage"
)

// fakeAgent speaks the agent protocol from memory: one task scope, a
// canned results payload, artifacts served from a map.
type fakeAgent struct {
	mu      sync.Mutex
	task    string
	info    ModuleInfo
	targets []string
	results TaskResults
	files   map[string][]byte
}

func (a *fakeAgent) currentTask() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

func (a *fakeAgent) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ready":
			return
		case "/new_task":
			a.mu.Lock()
			a.task = "task-1"
			a.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"task_id": "task-1"})
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != a.currentTask() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch parts[1] {
		case "module_update":
		case "module_update_info":
			a.mu.Lock()
			defer a.mu.Unlock()
			if err := json.NewDecoder(r.Body).Decode(&a.info); err != nil {
				w.WriteHeader(http.StatusBadRequest)
			}
		case "module_each":
			file, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			file.Close()
			a.mu.Lock()
			a.targets = append(a.targets, header.Filename)
			a.mu.Unlock()
		case "ready":
			json.NewEncoder(w).Encode(map[string]bool{"ready": true})
		case "results":
			a.mu.Lock()
			defer a.mu.Unlock()
			json.NewEncoder(w).Encode(a.results)
		case "get_file":
			data, ok := a.files[r.FormValue("filepath")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Disposition",
				`attachment; filename="`+filepath.Base(r.FormValue("filepath"))+`"`)
			w.Write(data)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type sandboxStub struct{}

func (m *sandboxStub) Init(*module.Settings) error { return nil }

// fakeDriver is an in-memory virtualization backend.
type fakeDriver struct {
	mu       sync.Mutex
	ready    bool
	restores int
	label    string
}

func (d *fakeDriver) Init(*module.Settings) error { return nil }

func (d *fakeDriver) Configure(label, ip string, port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.label = label
	return nil
}

func (d *fakeDriver) Prepare(context.Context) error { return nil }

func (d *fakeDriver) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = true
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = false
	return nil
}

func (d *fakeDriver) RestoreSnapshot(context.Context, string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restores++
	return nil
}

func (d *fakeDriver) IsReady(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *fakeDriver) restoreCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restores
}

type isolatedEnv struct {
	db      *client.Fake
	service *analysis.Service
	runner  *Runner
	agent   *fakeAgent
	driver  *fakeDriver
}

func newIsolatedEnv(t *testing.T, vm *module.VMConfig) *isolatedEnv {
	t.Helper()
	ctx := context.Background()

	agent := &fakeAgent{files: map[string][]byte{}}
	server := httptest.NewServer(agent.handler())
	t.Cleanup(server.Close)
	u, err := url.Parse(server.URL)
	assert.NilError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	assert.NilError(t, err)
	port, err := strconv.Atoi(portStr)
	assert.NilError(t, err)
	vm.IPAddress = strings.Repeat(host+",", strings.Count(vm.Label, ",")+1)
	vm.IPAddress = strings.TrimSuffix(vm.IPAddress, ",")
	vm.Port = port

	driver := &fakeDriver{ready: true}
	db := client.NewFake()
	registry := module.NewRegistry()
	assert.NilError(t, registry.Register(
		&module.StaticInfo{Name: "sandbox", Type: module.TypeProcessing, VM: vm},
		func() module.Module { return &sandboxStub{} }))
	assert.NilError(t, registry.Register(
		&module.StaticInfo{Name: vm.Driver, Type: module.TypeVirtualization},
		func() module.Module { return driver }))
	assert.NilError(t, module.SyncRegistry(ctx, db, registry))
	for _, r := range registry.Registered() {
		assert.NilError(t, db.UpdateModuleEnabled(ctx, r.Info.Name, true))
	}
	catalog, err := module.NewCatalog(ctx, db, registry)
	assert.NilError(t, err)
	store, err := storage.New(t.TempDir(), t.TempDir(), nil)
	assert.NilError(t, err)
	service := analysis.New(db, queue.NewFake(), store, catalog)

	runner := NewRunner(db, service)
	runner.Locks().RetryWait = 10 * time.Millisecond

	return &isolatedEnv{db: db, service: service, runner: runner, agent: agent, driver: driver}
}

func (e *isolatedEnv) analyze(t *testing.T) (*client.Analysis, *client.File) {
	t.Helper()
	ctx := context.Background()
	f, _, err := e.service.SubmitFile(ctx, "dropper.exe", strings.NewReader("MZ fake"), nil, "alice")
	assert.NilError(t, err)
	a, err := e.service.Analyze(ctx, f, nil, "alice", []string{"sandbox"},
		map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)
	return a, f
}

func resultsPayload() TaskResults {
	return TaskResults{
		Results: json.RawMessage(`{"score": 10}`),
		Buffered: BufferedResults{
			Logs:           []string{"2026-01-01 10:00: debug: detonation started"},
			Tags:           []string{"dropper"},
			IOCs:           []IOC{{Value: "evil.example.com", Tags: []string{"c2"}}},
			ProbableNames:  []string{"agent.btz"},
			GeneratedFiles: map[string][]string{"pe": {"/vm/c/dropped.exe"}},
			SupportFiles:   []string{"/vm/c/mem.dmp"},
			Result:         true,
		},
	}
}

func TestRunExecutesModuleInVM(t *testing.T) {
	vm := &module.VMConfig{Label: "vm1", Snapshot: "clean", AlwaysReady: true, RestoreAfter: 5, Driver: "fakebox"}
	env := newIsolatedEnv(t, vm)
	env.agent.results = resultsPayload()
	env.agent.files["/vm/c/dropped.exe"] = []byte("MZ dropped")
	env.agent.files["/vm/c/mem.dmp"] = []byte("memory dump")
	ctx := context.Background()

	a, f := env.analyze(t)
	run := analysis.NewRunContext(ctx, env.service, a, "sandbox")
	assert.NilError(t, env.runner.Run(ctx, entryFor(t, env, "sandbox"), a, f, run))

	assert.Equal(t, env.agent.info.Name, "sandbox")
	assert.Equal(t, len(env.agent.targets), 1)

	a, err := env.db.GetAnalysis(ctx, a.Id)
	assert.NilError(t, err)
	assert.Assert(t, hasString(a.Tags, "dropper"))
	assert.Assert(t, hasString(a.Tags, "sandbox"))
	assert.Assert(t, hasString(a.Tags, "sandbox(dropper)"))
	assert.Assert(t, hasString(a.ProbableNames, "agent.btz"))
	assert.Assert(t, hasLogLine(a, "detonation started"))

	results := map[string]map[string]interface{}{}
	assert.NilError(t, json.Unmarshal(a.Results, &results))
	assert.Equal(t, results["sandbox"]["score"], float64(10))

	generated := map[string][]string{}
	assert.NilError(t, json.Unmarshal(a.GeneratedFiles, &generated))
	assert.Equal(t, len(generated["pe"]), 1)
	assert.Assert(t, strings.HasSuffix(generated["pe"][0], "dropped.exe"))

	support := map[string][]string{}
	assert.NilError(t, json.Unmarshal(a.SupportFiles, &support))
	assert.DeepEqual(t, support["sandbox"], []string{"mem.dmp"})

	iocs, err := env.db.SelectAnalysisIOCs(ctx, a.Id)
	assert.NilError(t, err)
	assert.Equal(t, len(iocs), 1)
	assert.Equal(t, iocs[0].Value, "evil.example.com")

	// The machine is free again and one execution is on the counter.
	lock, err := env.db.GetVMLock(ctx, "fakebox", "vm1")
	assert.NilError(t, err)
	assert.Assert(t, !lock.Locked)
	counters := map[string]int{}
	assert.NilError(t, json.Unmarshal(lock.Counters, &counters))
	assert.Equal(t, counters["sandbox"], 1)
	assert.Equal(t, env.driver.restoreCount(), 0)
}

func TestRunRestoresAfterThreshold(t *testing.T) {
	vm := &module.VMConfig{Label: "vm1", Snapshot: "clean", AlwaysReady: true, RestoreAfter: 2, Driver: "fakebox"}
	env := newIsolatedEnv(t, vm)
	env.agent.results = resultsPayload()
	env.agent.files["/vm/c/dropped.exe"] = []byte("MZ dropped")
	env.agent.files["/vm/c/mem.dmp"] = []byte("memory dump")
	ctx := context.Background()

	a, f := env.analyze(t)
	entry := entryFor(t, env, "sandbox")
	run := analysis.NewRunContext(ctx, env.service, a, "sandbox")

	assert.NilError(t, env.runner.Run(ctx, entry, a, f, run))
	assert.Equal(t, env.driver.restoreCount(), 0)

	assert.NilError(t, env.runner.Run(ctx, entry, a, f, run))
	assert.Equal(t, env.driver.restoreCount(), 1)

	lock, err := env.db.GetVMLock(ctx, "fakebox", "vm1")
	assert.NilError(t, err)
	counters := map[string]int{}
	assert.NilError(t, json.Unmarshal(lock.Counters, &counters))
	assert.Equal(t, counters["sandbox"], 0)
}

func TestRunStopsTransientMachine(t *testing.T) {
	vm := &module.VMConfig{Label: "vm1", Snapshot: "clean", Driver: "fakebox"}
	env := newIsolatedEnv(t, vm)
	env.agent.results = TaskResults{Buffered: BufferedResults{Result: false}}
	ctx := context.Background()

	a, f := env.analyze(t)
	run := analysis.NewRunContext(ctx, env.service, a, "sandbox")
	assert.NilError(t, env.runner.Run(ctx, entryFor(t, env, "sandbox"), a, f, run))

	assert.Assert(t, !env.driver.IsReady(ctx))
}

func entryFor(t *testing.T, env *isolatedEnv, name string) *module.Entry {
	t.Helper()
	entry, ok := env.service.Catalog().Entry(name)
	assert.Assert(t, ok)
	return entry
}

func hasString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func hasLogLine(a *client.Analysis, fragment string) bool {
	for _, line := range a.Logs {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
