/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

const (
	TVMLock = "vm_locks"
)

// AcquireVMLock attempts to take the lock on a virtual machine identified
// by (driver, label). The lock is granted when no record exists, when the
// record is unlocked, or when the existing lock is older than staleBefore
// (a crashed holder). A single statement performs the compare-and-set;
// returns true when this caller now holds the lock.
func (c *Client) AcquireVMLock(ctx context.Context, driver, label string, staleBefore time.Time) (bool, error) {
	if driver == "" || label == "" {
		return false, errors.NewBadRequest("driver or label is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`INSERT INTO %s (driver, label, locked, last_locked) VALUES ($1, $2, true, $3)
		ON CONFLICT (driver, label) DO UPDATE SET locked = true, last_locked = $3
		WHERE %s.locked = false OR %s.last_locked < $4`, TVMLock, TVMLock, TVMLock)
	res, err := db.ExecContext(ctx, cmd, driver, label, time.Now().UTC(), staleBefore)
	if err != nil {
		klog.ErrorS(err, "failed to acquire vm lock", "Driver", driver, "Label", label)
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReleaseVMLock releases the lock on a virtual machine.
func (c *Client) ReleaseVMLock(ctx context.Context, driver, label string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET locked=false WHERE driver=$1 AND label=$2`, TVMLock)
	_, err = db.ExecContext(ctx, cmd, driver, label)
	if err != nil {
		klog.ErrorS(err, "failed to release vm lock", "Driver", driver, "Label", label)
		return err
	}
	return nil
}

// IncrVMLockCounter increments the per-module execution counter of a
// virtual machine, used to decide when a snapshot restore is due.
func (c *Client) IncrVMLockCounter(ctx context.Context, driver, label, module string) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET counters = jsonb_set(coalesce(counters, '{}'::jsonb), ARRAY[$1],
		to_jsonb(coalesce((counters->>$1)::int, 0) + 1))
		WHERE driver=$2 AND label=$3
		RETURNING (counters->>$1)::int`, TVMLock)
	var count int
	err = db.GetContext(ctx, &count, cmd, module, driver, label)
	if err != nil {
		klog.ErrorS(err, "failed to incr vm lock counter", "Driver", driver, "Label", label, "Module", module)
		return 0, err
	}
	return count, nil
}

// ResetVMLockCounter zeroes the per-module execution counter after a
// restore.
func (c *Client) ResetVMLockCounter(ctx context.Context, driver, label, module string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET counters = jsonb_set(coalesce(counters, '{}'::jsonb), ARRAY[$1], to_jsonb(0))
		WHERE driver=$2 AND label=$3`, TVMLock)
	_, err = db.ExecContext(ctx, cmd, module, driver, label)
	if err != nil {
		klog.ErrorS(err, "failed to reset vm lock counter", "Driver", driver, "Label", label, "Module", module)
		return err
	}
	return nil
}

// GetVMLock retrieves the lock record of a virtual machine.
func (c *Client) GetVMLock(ctx context.Context, driver, label string) (*VMLock, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TVMLock).
		Where(sqrl.Eq{"driver": driver, "label": label}).
		Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	var locks []*VMLock
	if err = db.SelectContext(ctx, &locks, sql, args...); err != nil {
		return nil, err
	}
	if len(locks) == 0 {
		return nil, errors.NewNotFound("vm lock %s/%s not found", driver, label)
	}
	return locks[0], nil
}
