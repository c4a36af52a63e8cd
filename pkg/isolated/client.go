/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package isolated

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

// AgentClient speaks the in-VM agent protocol. All task-scoped requests
// carry the task id handed out by NewTask; the agent rejects any other id
// with 403.
type AgentClient struct {
	baseURL string
	client  *http.Client
}

// NewAgentClient creates a client for the agent at baseURL, e.g.
// "http://10.0.0.5:4242".
func NewAgentClient(baseURL string) *AgentClient {
	return &AgentClient{
		baseURL: baseURL,
		// Module execution is long but every individual request is short,
		// except result downloads which may carry large artifacts.
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Ready reports whether the agent answers its health endpoint.
func (c *AgentClient) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// NewTask opens a fresh task scope on the agent.
func (c *AgentClient) NewTask(ctx context.Context) (string, error) {
	var reply struct {
		TaskId string `json:"task_id"`
	}
	if err := c.getJSON(ctx, "/new_task", &reply); err != nil {
		return "", err
	}
	if reply.TaskId == "" {
		return "", errors.NewInternalError("agent returned an empty task id")
	}
	return reply.TaskId, nil
}

// ModuleUpdate uploads the module's asset archive so the agent can keep an
// audit copy of what ran.
func (c *AgentClient) ModuleUpdate(ctx context.Context, task, path string) error {
	return c.uploadFile(ctx, fmt.Sprintf("/%s/module_update", task), path, nil)
}

// ModuleUpdateInfo tells the agent which module to instantiate and with
// which configuration.
func (c *AgentClient) ModuleUpdateInfo(ctx context.Context, task string, info *ModuleInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+fmt.Sprintf("/%s/module_update_info", task), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Each submits one target file for execution. The agent starts the module
// asynchronously; poll TaskReady until it completes.
func (c *AgentClient) Each(ctx context.Context, task, fileType, path string) error {
	return c.uploadFile(ctx, fmt.Sprintf("/%s/module_each/%s", task, url.PathEscape(fileType)), path, nil)
}

// TaskReady reports whether the current execution finished.
func (c *AgentClient) TaskReady(ctx context.Context, task string) (bool, error) {
	var reply struct {
		Ready bool `json:"ready"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/ready", task), &reply); err != nil {
		return false, err
	}
	return reply.Ready, nil
}

// Results retrieves the terminal payload of the task.
func (c *AgentClient) Results(ctx context.Context, task string) (*TaskResults, error) {
	results := &TaskResults{}
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/results", task), results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetFile downloads a VM-local artifact referenced in the results payload
// into destDir and returns the local path. The agent names the download
// through Content-Disposition.
func (c *AgentClient) GetFile(ctx context.Context, task, remotePath, destDir string) (string, error) {
	form := url.Values{"filepath": {remotePath}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+fmt.Sprintf("/%s/get_file", task), bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.NewInternalError("agent refused download of %s: %s", remotePath, resp.Status)
	}

	name := filepath.Base(remotePath)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if fn := params["filename"]; fn != "" {
			name = filepath.Base(fn)
		}
	}
	local := filepath.Join(destDir, name)
	dst, err := os.Create(local)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		dst.Close()
		return "", err
	}
	return local, dst.Close()
}

func (c *AgentClient) getJSON(ctx context.Context, path string, reply interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, reply)
}

func (c *AgentClient) uploadFile(ctx context.Context, path, file string, reply interface{}) error {
	src, err := os.Open(file)
	if err != nil {
		return err
	}
	defer src.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, reply)
}

func (c *AgentClient) do(req *http.Request, reply interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewInternalError("agent request %s failed: %s", req.URL.Path, resp.Status)
	}
	if reply == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(reply)
}
