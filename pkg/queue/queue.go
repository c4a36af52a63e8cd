/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package queue moves module execution tasks from the orchestrator to the
// workers listening on named queues.
package queue

import (
	"context"
	"time"
)

// Task asks a worker to run one module against one analysis.
type Task struct {
	AnalysisId string `json:"analysis_id"`
	Module     string `json:"module"`
	// Preload marks preloading work: the worker calls the module's
	// Preload hook instead of Each.
	Preload bool `json:"preload,omitempty"`
}

// Interface is the task transport between orchestrator and workers.
type Interface interface {
	// Push appends a task to a named queue.
	Push(ctx context.Context, queueName string, task *Task) error
	// Pop blocks up to timeout for a task on any of the given queues and
	// returns it with the queue it came from. A nil task means the
	// timeout elapsed.
	Pop(ctx context.Context, queueNames []string, timeout time.Duration) (*Task, string, error)
	// Length returns the number of pending tasks on a queue.
	Length(ctx context.Context, queueName string) (int64, error)
	Close() error
}
