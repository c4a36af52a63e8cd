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
	TModule = "modules"
)

var (
	getModuleCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE name = $1 LIMIT 1`, TModule)
	insertModuleFormat = `INSERT INTO ` + TModule + ` (%s) VALUES (%s)`
	updateModuleCmd    = fmt.Sprintf(`UPDATE %s
		SET type = :type,
		    queue = :queue,
		    priority = :priority,
		    acts_on = :acts_on,
		    generates = :generates,
		    triggered_by = :triggered_by,
		    description = :description,
		    config = :config,
		    diffs = :diffs,
		    update_time = :update_time
		WHERE name = :name`, TModule)
)

// UpsertModule reconciles one module record by name. The enabled flag is
// operator state and is never touched on update.
func (c *Client) UpsertModule(ctx context.Context, module *Module) error {
	if module == nil {
		return errors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}

	var modules []*Module
	if err = db.SelectContext(ctx, &modules, getModuleCmd, module.Name); err != nil {
		klog.ErrorS(err, "failed to select module", "name", module.Name)
		return err
	}
	if len(modules) > 0 && modules[0] != nil {
		_, err = db.NamedExecContext(ctx, updateModuleCmd, module)
		if err != nil {
			klog.ErrorS(err, "failed to update module db", "name", module.Name)
		}
	} else {
		_, err = db.NamedExecContext(ctx, generateCommand(*module, insertModuleFormat, ""), module)
		if err != nil {
			klog.ErrorS(err, "failed to insert module db", "name", module.Name)
		}
	}
	return err
}

// SelectModules retrieves multiple module records.
func (c *Client) SelectModules(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Module, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}

	builder := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).From(TModule).Where(query).OrderBy(orderBy...)
	if limit > 0 {
		builder = builder.Limit(uint64(limit)).Offset(uint64(offset))
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var modules []*Module
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &modules, sql, args...)
	} else {
		err = db.SelectContext(ctx, &modules, sql, args...)
	}
	return modules, err
}

// GetModuleByName retrieves a module by name.
func (c *Client) GetModuleByName(ctx context.Context, name string) (*Module, error) {
	if name == "" {
		return nil, errors.NewBadRequest("name is empty")
	}
	modules, err := c.SelectModules(ctx, sqrl.Eq{"name": name}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, errors.NewNotFound("module %s not found", name)
	}
	return modules[0], nil
}

// UpdateModuleEnabled flips the enabled flag of a module.
func (c *Client) UpdateModuleEnabled(ctx context.Context, name string, enabled bool) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET enabled=$1, update_time=$2 WHERE name=$3`, TModule)
	_, err = db.ExecContext(ctx, cmd, enabled, time.Now().UTC(), name)
	if err != nil {
		klog.ErrorS(err, "failed to update module enabled", "Name", name, "Enabled", enabled)
		return err
	}
	return nil
}

// UpdateModuleConfig replaces the configuration and recorded diffs of a
// module.
func (c *Client) UpdateModuleConfig(ctx context.Context, name string, moduleConfig, diffs []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET config=$1, diffs=$2, update_time=$3 WHERE name=$4`, TModule)
	_, err = db.ExecContext(ctx, cmd, nullJSON(moduleConfig), nullJSON(diffs), time.Now().UTC(), name)
	if err != nil {
		klog.ErrorS(err, "failed to update module config", "Name", name)
		return err
	}
	return nil
}
