/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

// Fake is an in-memory Interface implementation for tests. Pop does not
// block: with no pending task it returns nil immediately.
type Fake struct {
	mu     sync.Mutex
	queues map[string][]*Task
}

// NewFake creates an empty in-memory queue.
func NewFake() *Fake {
	return &Fake{queues: make(map[string][]*Task)}
}

var _ Interface = &Fake{}

// Push appends a task to a named queue.
func (f *Fake) Push(_ context.Context, queueName string, task *Task) error {
	if task == nil {
		return errors.NewBadRequest("the input is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.queues[queueName] = append(f.queues[queueName], &copied)
	return nil
}

// Pop returns the oldest task over the given queues, or nil.
func (f *Fake) Pop(_ context.Context, queueNames []string, _ time.Duration) (*Task, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range queueNames {
		pending := f.queues[name]
		if len(pending) == 0 {
			continue
		}
		task := pending[0]
		f.queues[name] = pending[1:]
		return task, name, nil
	}
	return nil, "", nil
}

// Length returns the number of pending tasks on a queue.
func (f *Fake) Length(_ context.Context, queueName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.queues[queueName])), nil
}

// Tasks returns a snapshot of one queue, oldest first.
func (f *Fake) Tasks(queueName string) []*Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*Task, 0, len(f.queues[queueName]))
	for _, task := range f.queues[queueName] {
		copied := *task
		result = append(result, &copied)
	}
	return result
}

// Close performs the Close operation.
func (f *Fake) Close() error {
	return nil
}
