/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package analysis

import (
	"context"

	"github.com/certsocietegenerale/fame/pkg/database/client"
	"github.com/certsocietegenerale/fame/pkg/module"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// RunContext is the module.Context used when modules run next to the
// service. Every mutation goes straight to the store; tags are also kept
// on the context so a successful run can emit their qualified forms.
type RunContext struct {
	ctx        context.Context
	service    *Service
	analysisId string
	moduleName string
	options    map[string]interface{}
	declared   []string
}

var _ module.Context = &RunContext{}

// NewRunContext builds the context one module execution sees.
func NewRunContext(ctx context.Context, service *Service, a *client.Analysis, moduleName string) *RunContext {
	return &RunContext{
		ctx:        ctx,
		service:    service,
		analysisId: a.Id,
		moduleName: moduleName,
		options:    service.Options(a),
	}
}

func (r *RunContext) ID() string {
	return r.analysisId
}

func (r *RunContext) AddTag(tag string) error {
	if !utils.StringInSlice(tag, r.declared) {
		r.declared = append(r.declared, tag)
	}
	return r.service.AddTag(r.ctx, r.analysisId, tag)
}

// DeclaredTags returns the tags the module added during its run, in
// declaration order.
func (r *RunContext) DeclaredTags() []string {
	return r.declared
}

func (r *RunContext) AddIOC(value string, tags ...string) error {
	return r.service.AddIOC(r.ctx, r.analysisId, value, r.moduleName, tags)
}

func (r *RunContext) AddExtraction(label, content string) error {
	return r.service.AddExtraction(r.ctx, r.analysisId, label, content)
}

func (r *RunContext) AddProbableName(name string) error {
	return r.service.AddProbableName(r.ctx, r.analysisId, name)
}

func (r *RunContext) AddSupportFile(moduleName, path string) error {
	return r.service.AddSupportFile(r.ctx, r.analysisId, moduleName, path)
}

func (r *RunContext) RegisterFiles(fileType string, paths ...string) error {
	return r.service.AddGeneratedFiles(r.ctx, r.analysisId, fileType, paths)
}

func (r *RunContext) AddExtractedFile(path string) error {
	return r.service.AddExtractedFile(r.ctx, r.analysisId, path, true)
}

func (r *RunContext) AddPreloadedFile(path string) error {
	return r.service.AddPreloadedFile(r.ctx, r.analysisId, path)
}

func (r *RunContext) ChangeType(path, newType string) error {
	return r.service.ChangeType(r.ctx, r.analysisId, path, newType)
}

func (r *RunContext) Log(level, format string, args ...interface{}) {
	r.service.Log(r.ctx, r.analysisId, level, format, args...)
}

func (r *RunContext) Options() map[string]interface{} {
	return r.options
}
