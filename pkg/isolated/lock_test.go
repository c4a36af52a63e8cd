/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package isolated

import (
	"context"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/certsocietegenerale/fame/pkg/database/client"
)

func testLockManager(db client.Interface) *LockManager {
	m := NewLockManager(db)
	m.RetryWait = 10 * time.Millisecond
	return m
}

func TestAcquireRespectsDeclarationOrder(t *testing.T) {
	ctx := context.Background()
	m := testLockManager(client.NewFake())
	slots := []Slot{{Label: "vm1"}, {Label: "vm2"}}

	first, err := m.Acquire(ctx, "vbox", slots)
	assert.NilError(t, err)
	assert.Equal(t, first.Label, "vm1")

	second, err := m.Acquire(ctx, "vbox", slots)
	assert.NilError(t, err)
	assert.Equal(t, second.Label, "vm2")
}

func TestAcquireWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	db := client.NewFake()
	m := testLockManager(db)
	slots := []Slot{{Label: "vm1"}, {Label: "vm2"}}

	// Two holders take both machines; a third waits for whichever frees
	// first.
	_, err := m.Acquire(ctx, "vbox", slots)
	assert.NilError(t, err)
	_, err = m.Acquire(ctx, "vbox", slots)
	assert.NilError(t, err)

	won := make(chan *Slot, 1)
	go func() {
		slot, err := m.Acquire(ctx, "vbox", slots)
		if err == nil {
			won <- slot
		}
	}()

	select {
	case slot := <-won:
		t.Fatalf("lock acquired while both machines busy: %s", slot.Label)
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(ctx, "vbox", "vm2")
	select {
	case slot := <-won:
		assert.Equal(t, slot.Label, "vm2")
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the released machine")
	}
}

func TestAcquireStealsStaleLock(t *testing.T) {
	ctx := context.Background()
	db := client.NewFake()
	m := testLockManager(db)
	slots := []Slot{{Label: "vm1"}}

	_, err := m.Acquire(ctx, "vbox", slots)
	assert.NilError(t, err)

	// A dead holder never refreshes its lock. With the stale threshold at
	// zero every held lock counts as abandoned.
	thief := testLockManager(db)
	thief.StaleAfter = 0
	time.Sleep(5 * time.Millisecond)

	slot, err := thief.Acquire(ctx, "vbox", slots)
	assert.NilError(t, err)
	assert.Equal(t, slot.Label, "vm1")

	lock, err := db.GetVMLock(ctx, "vbox", "vm1")
	assert.NilError(t, err)
	assert.Assert(t, lock.Locked)
}

func TestAcquireStopsOnCancel(t *testing.T) {
	db := client.NewFake()
	m := testLockManager(db)
	slots := []Slot{{Label: "vm1"}}

	_, err := m.Acquire(context.Background(), "vbox", slots)
	assert.NilError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "vbox", slots)
	assert.Assert(t, err != nil)
}
