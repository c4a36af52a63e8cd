/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

const (
	apiKeyHeader = "X-API-KEY"

	// downloadWait is how long a worker sleeps while another goroutine
	// holds the download lock for the same file.
	downloadWait = time.Second
	// downloadAttempts bounds the wait for a concurrent download.
	downloadAttempts = 120
)

// RemoteFiles is the file strategy of workers without access to the
// store's filesystem: file bytes move over the orchestrator's HTTP API,
// everything else stays on the direct database connection.
type RemoteFiles struct {
	baseURL  string
	apiKey   string
	cacheDir string
	client   *http.Client
}

// NewRemoteFiles creates a strategy downloading through the orchestrator
// at baseURL and caching under cacheDir.
func NewRemoteFiles(baseURL, apiKey, cacheDir string) (*RemoteFiles, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}
	return &RemoteFiles{
		baseURL:  baseURL,
		apiKey:   apiKey,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// LocalPath downloads a stored file into the cache, keyed by the digest of
// its remote path so distinct files with the same name do not collide. An
// exclusive lock file keeps concurrent tasks from downloading the same
// file twice.
func (r *RemoteFiles) LocalPath(ctx context.Context, path string) (string, error) {
	dir := filepath.Join(r.cacheDir, utils.MD5String(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	local := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	lock := local + ".lock"
	fd, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return "", err
		}
		// Someone else is downloading; wait for the lock to clear.
		for i := 0; i < downloadAttempts; i++ {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(downloadWait):
			}
			if _, err := os.Stat(lock); os.IsNotExist(err) {
				break
			}
		}
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
		return "", errors.NewInternalError("download of %s did not complete", path)
	}
	fd.Close()
	defer os.Remove(lock)

	if err := r.download(ctx, path, local); err != nil {
		os.Remove(local)
		return "", err
	}
	return local, nil
}

func (r *RemoteFiles) download(ctx context.Context, path, local string) error {
	payload, err := json.Marshal(map[string]string{"filepath": path})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/files/download", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, r.apiKey)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewInternalError("could not download %s: %s", path, resp.Status)
	}
	dst, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// SaveGenerated uploads a produced file; the orchestrator stores it in the
// analysis scratch directory and returns the canonical path.
func (r *RemoteFiles) SaveGenerated(ctx context.Context, analysisId, path string) (string, error) {
	var reply struct {
		Path string `json:"path"`
	}
	url := fmt.Sprintf("%s/analyses/%s/generated_file", r.baseURL, analysisId)
	if err := r.upload(ctx, url, path, &reply); err != nil {
		return "", err
	}
	return reply.Path, nil
}

// SaveSupport uploads a module by-product and returns its stored name.
func (r *RemoteFiles) SaveSupport(ctx context.Context, analysisId, moduleName, path string) (string, error) {
	var reply struct {
		Name string `json:"name"`
	}
	url := fmt.Sprintf("%s/analyses/%s/support_file/%s", r.baseURL, analysisId, moduleName)
	if err := r.upload(ctx, url, path, &reply); err != nil {
		return "", err
	}
	return reply.Name, nil
}

// SaveSubmission uploads new content for registration.
func (r *RemoteFiles) SaveSubmission(ctx context.Context, name, path string) (*client.File, bool, error) {
	var reply struct {
		File     *client.File `json:"file"`
		Existing bool         `json:"existing"`
	}
	if err := r.uploadNamed(ctx, r.baseURL+"/files/", name, path, &reply); err != nil {
		return nil, false, err
	}
	return reply.File, reply.Existing, nil
}

func (r *RemoteFiles) upload(ctx context.Context, url, path string, reply interface{}) error {
	return r.uploadNamed(ctx, url, filepath.Base(path), path, reply)
}

func (r *RemoteFiles) uploadNamed(ctx context.Context, url, name, path string, reply interface{}) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(apiKeyHeader, r.apiKey)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		klog.ErrorS(nil, "upload rejected", "url", url, "status", resp.Status)
		return errors.NewInternalError("could not upload %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(reply)
}
