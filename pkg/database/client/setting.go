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
	TSetting = "settings"
)

var (
	getSettingCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE name = $1 LIMIT 1`, TSetting)
	insertSettingFormat = `INSERT INTO ` + TSetting + ` (%s) VALUES (%s)`
	updateSettingCmd    = fmt.Sprintf(`UPDATE %s
		SET description = :description,
		    config = :config,
		    update_time = :update_time
		WHERE name = :name`, TSetting)
)

// UpsertSetting reconciles one named configuration by name.
func (c *Client) UpsertSetting(ctx context.Context, setting *Setting) error {
	if setting == nil {
		return errors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}

	var settings []*Setting
	if err = db.SelectContext(ctx, &settings, getSettingCmd, setting.Name); err != nil {
		klog.ErrorS(err, "failed to select setting", "name", setting.Name)
		return err
	}
	if len(settings) > 0 && settings[0] != nil {
		_, err = db.NamedExecContext(ctx, updateSettingCmd, setting)
		if err != nil {
			klog.ErrorS(err, "failed to update setting db", "name", setting.Name)
		}
	} else {
		_, err = db.NamedExecContext(ctx, generateCommand(*setting, insertSettingFormat, ""), setting)
		if err != nil {
			klog.ErrorS(err, "failed to insert setting db", "name", setting.Name)
		}
	}
	return err
}

// SelectSettings retrieves all named configurations.
func (c *Client) SelectSettings(ctx context.Context) ([]*Setting, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).From(TSetting).OrderBy("name " + ASC).ToSql()
	if err != nil {
		return nil, err
	}
	var settings []*Setting
	err = db.SelectContext(ctx, &settings, sql, args...)
	return settings, err
}

// GetSettingByName retrieves a named configuration.
func (c *Client) GetSettingByName(ctx context.Context, name string) (*Setting, error) {
	if name == "" {
		return nil, errors.NewBadRequest("name is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var settings []*Setting
	if err = db.SelectContext(ctx, &settings, getSettingCmd, name); err != nil {
		klog.ErrorS(err, "failed to select setting", "name", name)
		return nil, err
	}
	if len(settings) == 0 {
		return nil, errors.NewNotFound("setting %s not found", name)
	}
	return settings[0], nil
}

// UpdateSettingConfig replaces the option list of a named configuration.
func (c *Client) UpdateSettingConfig(ctx context.Context, name string, settingConfig []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET config=$1, update_time=$2 WHERE name=$3`, TSetting)
	_, err = db.ExecContext(ctx, cmd, nullJSON(settingConfig), time.Now().UTC(), name)
	if err != nil {
		klog.ErrorS(err, "failed to update setting config", "Name", name)
		return err
	}
	return nil
}
