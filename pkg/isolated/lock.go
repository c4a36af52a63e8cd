/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package isolated

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/database/client"
)

const (
	// lockStaleAfter is how long a lock may sit untouched before a waiter
	// is allowed to steal it from a dead holder.
	lockStaleAfter = 120 * time.Minute
	// lockRetryWait separates two full passes over the declared labels.
	lockRetryWait = 15 * time.Second
)

// Slot is one virtual machine a module may execute in.
type Slot struct {
	Label string
	IP    string
	Port  int
}

// LockManager serializes access to virtual machines through the store's
// vm_locks records. One lock guards one (driver, label) pair.
type LockManager struct {
	db client.Interface

	// RetryWait and StaleAfter default to the protocol values; tests
	// shorten them.
	RetryWait  time.Duration
	StaleAfter time.Duration
}

// NewLockManager creates a lock manager over the store.
func NewLockManager(db client.Interface) *LockManager {
	return &LockManager{db: db, RetryWait: lockRetryWait, StaleAfter: lockStaleAfter}
}

// Acquire claims one of the declared slots, trying them in declaration
// order and sleeping between full passes. It blocks until a slot is won or
// ctx is cancelled. A lock whose last_locked timestamp is older than the
// stale threshold counts as abandoned and may be taken over.
func (m *LockManager) Acquire(ctx context.Context, driver string, slots []Slot) (*Slot, error) {
	for {
		staleBefore := time.Now().UTC().Add(-m.StaleAfter)
		for i := range slots {
			ok, err := m.db.AcquireVMLock(ctx, driver, slots[i].Label, staleBefore)
			if err != nil {
				return nil, err
			}
			if ok {
				return &slots[i], nil
			}
		}
		klog.V(2).Infof("all %s virtual machines busy, waiting", driver)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.RetryWait):
		}
	}
}

// Release frees the lock on a slot.
func (m *LockManager) Release(ctx context.Context, driver, label string) {
	if err := m.db.ReleaseVMLock(ctx, driver, label); err != nil {
		klog.ErrorS(err, "failed to release vm lock", "driver", driver, "label", label)
	}
}
