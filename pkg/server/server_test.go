/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/assert"

	"github.com/certsocietegenerale/fame/pkg/analysis"
	"github.com/certsocietegenerale/fame/pkg/config"
	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/queue"
	"github.com/certsocietegenerale/fame/pkg/storage"
	"github.com/certsocietegenerale/fame/pkg/utils"
	"github.com/certsocietegenerale/fame/pkg/worker"
)

const testAPIKey = "test-api-key"

type serverEnv struct {
	db      *client.Fake
	store   *storage.Store
	service *analysis.Service
	server  *httptest.Server
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.SetValue("server.api_key", testAPIKey)
	ctx := context.Background()

	db := client.NewFake()
	registry := module.NewRegistry()
	assert.NilError(t, registry.Register(
		&module.StaticInfo{Name: "text_info", Type: module.TypeProcessing},
		func() module.Module { return nil }))
	assert.NilError(t, module.SyncRegistry(ctx, db, registry))
	assert.NilError(t, db.UpdateModuleEnabled(ctx, "text_info", true))
	catalog, err := module.NewCatalog(ctx, db, registry)
	assert.NilError(t, err)

	store, err := storage.New(t.TempDir(), t.TempDir(), nil)
	assert.NilError(t, err)
	service := analysis.New(db, queue.NewFake(), store, catalog)

	server := httptest.NewServer(InitHTTPHandlers(service, store, t.TempDir()))
	t.Cleanup(server.Close)
	return &serverEnv{db: db, store: store, service: service, server: server}
}

func (e *serverEnv) request(t *testing.T, method, path, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	assert.NilError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-API-KEY", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	assert.NilError(t, err)
	return resp
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, content string) ([]byte, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		assert.NilError(t, writer.WriteField(key, value))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		assert.NilError(t, err)
		_, err = part.Write([]byte(content))
		assert.NilError(t, err)
	}
	assert.NilError(t, writer.Close())
	return body.Bytes(), writer.FormDataContentType()
}

func TestRequestsWithoutKeyRejected(t *testing.T) {
	env := newServerEnv(t)
	resp, err := http.Post(env.server.URL+"/files/", "application/json", strings.NewReader("{}"))
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusUnauthorized)
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	env := newServerEnv(t)

	body, contentType := multipartBody(t, nil, "file", "sample.txt", "text content")
	resp := env.request(t, http.MethodPost, "/files/", contentType, body)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var uploaded struct {
		File     *client.File `json:"file"`
		Existing bool         `json:"existing"`
	}
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Assert(t, !uploaded.Existing)
	assert.Assert(t, uploaded.File.FilePath.Valid)

	// The remote worker strategy drives the same endpoints.
	remote, err := worker.NewRemoteFiles(env.server.URL, testAPIKey, t.TempDir())
	assert.NilError(t, err)
	local, err := remote.LocalPath(context.Background(), uploaded.File.FilePath.String)
	assert.NilError(t, err)
	data, err := os.ReadFile(local)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "text content")

	// Re-uploading known content returns the existing record.
	resp = env.request(t, http.MethodPost, "/files/", contentType, body)
	defer resp.Body.Close()
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Assert(t, uploaded.Existing)
}

func TestDownloadOutsideStoreRejected(t *testing.T) {
	env := newServerEnv(t)
	payload, _ := json.Marshal(map[string]string{"filepath": "/etc/passwd"})
	resp := env.request(t, http.MethodPost, "/files/download", "application/json", payload)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusForbidden)
}

func TestCreateAnalysis(t *testing.T) {
	env := newServerEnv(t)

	body, contentType := multipartBody(t, map[string]string{
		"modules": "text_info",
		"analyst": "alice",
		"options": `{"magic_enabled": false}`,
	}, "file", "sample.txt", "text content")
	resp := env.request(t, http.MethodPost, "/analyses/", contentType, body)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	var reply struct {
		Analysis *client.Analysis `json:"analysis"`
	}
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.Equal(t, reply.Analysis.Status, client.AnalysisStatusPending)
	assert.DeepEqual(t, []string(reply.Analysis.PendingModules), []string{"text_info"})
}

func TestUploadGeneratedAndSupportFiles(t *testing.T) {
	env := newServerEnv(t)

	body, contentType := multipartBody(t, nil, "file", "carved.bin", "carved bytes")
	resp := env.request(t, http.MethodPost, "/analyses/a-1/generated_file", contentType, body)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var generated struct {
		Path string `json:"path"`
	}
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&generated))
	data, err := os.ReadFile(generated.Path)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "carved bytes")

	body, contentType = multipartBody(t, nil, "file", "memory.dmp", "dump")
	resp = env.request(t, http.MethodPost, "/analyses/a-1/support_file/sandbox", contentType, body)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var support struct {
		Name string `json:"name"`
	}
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&support))
	assert.Equal(t, support.Name, "memory.dmp")
}

func TestGetAnalysisFileByPathDigest(t *testing.T) {
	env := newServerEnv(t)
	ctx := context.Background()

	f, _, err := env.service.SubmitFile(ctx, "sample.txt", strings.NewReader("text content"), nil, "alice")
	assert.NilError(t, err)
	a, err := env.service.Analyze(ctx, f, nil, "alice", nil,
		map[string]interface{}{"magic_enabled": false})
	assert.NilError(t, err)

	hash := utils.MD5String(f.FilePath.String)
	resp := env.request(t, http.MethodGet, "/analyses/"+a.Id+"/get_file/"+hash, "", nil)
	defer resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	var content bytes.Buffer
	_, err = content.ReadFrom(resp.Body)
	assert.NilError(t, err)
	assert.Equal(t, content.String(), "text content")

	resp = env.request(t, http.MethodGet, "/analyses/"+a.Id+"/get_file/deadbeef", "", nil)
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestUpdateRepositorySignalsWorkers(t *testing.T) {
	env := newServerEnv(t)

	var payload bytes.Buffer
	archive := zip.NewWriter(&payload)
	entry, err := archive.Create("sandbox/install.sh")
	assert.NilError(t, err)
	_, err = entry.Write([]byte("#!/bin/sh\n"))
	assert.NilError(t, err)
	assert.NilError(t, archive.Close())

	resp := env.request(t, http.MethodPut, "/modules/repository/community/update", "application/zip", payload.Bytes())
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	internal, err := env.db.GetInternal(context.Background(), worker.UpdatesInternal)
	assert.NilError(t, err)
	assert.Assert(t, internal.LastUpdate.Valid)
}

func TestUpdateRepositoryRejectsEscapingEntries(t *testing.T) {
	env := newServerEnv(t)

	var payload bytes.Buffer
	archive := zip.NewWriter(&payload)
	entry, err := archive.Create("../outside.sh")
	assert.NilError(t, err)
	_, err = entry.Write([]byte("#!/bin/sh\n"))
	assert.NilError(t, err)
	assert.NilError(t, archive.Close())

	resp := env.request(t, http.MethodPut, "/modules/repository/community/update", "application/zip", payload.Bytes())
	resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
}
