/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

const (
	TInternal = "internals"
)

// InternalUpdates is the singleton row that advances whenever module code
// or dependencies change; workers watch it to know when to reinstall.
const InternalUpdates = "updates"

// GetInternal retrieves a singleton row by name.
func (c *Client) GetInternal(ctx context.Context, name string) (*Internal, error) {
	if name == "" {
		return nil, errors.NewBadRequest("name is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf(`SELECT * FROM %s WHERE name = $1 LIMIT 1`, TInternal)
	var internals []*Internal
	if err = db.SelectContext(ctx, &internals, cmd, name); err != nil {
		klog.ErrorS(err, "failed to select internal", "name", name)
		return nil, err
	}
	if len(internals) == 0 {
		return nil, errors.NewNotFound("internal %s not found", name)
	}
	return internals[0], nil
}

// TouchInternal advances the last_update timestamp of a singleton row,
// creating it when missing.
func (c *Client) TouchInternal(ctx context.Context, name string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`INSERT INTO %s (name, last_update) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET last_update = $2`, TInternal)
	_, err = db.ExecContext(ctx, cmd, name, time.Now().UTC())
	if err != nil {
		klog.ErrorS(err, "failed to touch internal", "Name", name)
		return err
	}
	return nil
}
