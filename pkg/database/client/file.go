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

	dbutils "github.com/certsocietegenerale/fame/pkg/database/utils"
	"github.com/certsocietegenerale/fame/pkg/errors"
)

const (
	TFile = "files"
)

var (
	insertFileFormat = `INSERT INTO ` + TFile + ` (%s) VALUES (%s)`
)

// hashColumns maps a hex digest length to the column it matches.
var hashColumns = map[int]string{
	32: "md5",
	40: "sha1",
	64: "sha256",
}

// InsertFile stores a new file record.
func (c *Client) InsertFile(ctx context.Context, file *File) error {
	if file == nil {
		return errors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*file, insertFileFormat, ""), file)
	if err != nil {
		klog.ErrorS(err, "failed to insert file db", "id", file.Id)
	}
	return err
}

// SelectFiles retrieves multiple file records.
func (c *Client) SelectFiles(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*File, error) {
	startTime := time.Now().UTC()
	defer func() {
		if query != nil {
			strQuery := dbutils.CvtToSqlStr(query)
			klog.Infof("select files, query: %s, orderBy: %v, limit: %d, offset: %d, cost (%v)",
				strQuery, orderBy, limit, offset, time.Since(startTime))
		}
	}()
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}

	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TFile).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}

	var files []*File
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &files, sql, args...)
	} else {
		err = db.SelectContext(ctx, &files, sql, args...)
	}
	return files, err
}

// CountFiles returns the total count of files matching the criteria.
func (c *Client) CountFiles(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TFile).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

// GetFile retrieves a file by ID.
func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	if id == "" {
		return nil, errors.NewBadRequest("id is empty")
	}
	files, err := c.SelectFiles(ctx, sqrl.Eq{"id": id}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewNotFound("file %s not found", id)
	}
	return files[0], nil
}

// GetFileByHash retrieves a file by md5, sha1 or sha256 digest, picked by
// digest length.
func (c *Client) GetFileByHash(ctx context.Context, hash string) (*File, error) {
	column, ok := hashColumns[len(hash)]
	if !ok {
		return nil, errors.NewBadRequest("unsupported hash length %d", len(hash))
	}
	files, err := c.SelectFiles(ctx, sqrl.Eq{column: hash}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewNotFound("file %s not found", hash)
	}
	return files[0], nil
}

// AddFileToSet appends value to a set-valued file column. Returns true
// when the value was not already present.
func (c *Client) AddFileToSet(ctx context.Context, id, column, value string) (bool, error) {
	return c.addToSet(ctx, TFile, column, id, value, fileSetColumns)
}

// RemoveFileFromSet removes value from a set-valued file column.
func (c *Client) RemoveFileFromSet(ctx context.Context, id, column, value string) (bool, error) {
	return c.removeFromSet(ctx, TFile, column, id, value, fileSetColumns)
}

// UpdateFileType updates the recorded file type.
func (c *Client) UpdateFileType(ctx context.Context, id, fileType string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET type=$1 WHERE id=$2`, TFile)
	_, err = db.ExecContext(ctx, cmd, fileType, id)
	if err != nil {
		klog.ErrorS(err, "failed to update file type", "Id", id, "Type", fileType)
		return err
	}
	return nil
}

// UpdateFileContent upgrades a hash-only record once real bytes arrive:
// location, resolved type, detailed type, mime and size in one statement.
func (c *Client) UpdateFileContent(ctx context.Context, id, path, fileType, detailedType, mime string, size int64) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET filepath=$1, type=$2, detailed_type=$3, mime=$4, size=$5 WHERE id=$6`, TFile)
	_, err = db.ExecContext(ctx, cmd, path, fileType, detailedType, mime, size, id)
	if err != nil {
		klog.ErrorS(err, "failed to update file content", "Id", id)
		return err
	}
	return nil
}

// UpdateFileAntivirus replaces the antivirus status map.
func (c *Client) UpdateFileAntivirus(ctx context.Context, id string, antivirus []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET antivirus=$1 WHERE id=$2`, TFile)
	_, err = db.ExecContext(ctx, cmd, antivirus, id)
	if err != nil {
		klog.ErrorS(err, "failed to update file antivirus", "Id", id)
		return err
	}
	return nil
}

// UpdateFileProbableNames replaces the probable name list. The caller owns
// the substring de-duplication logic.
func (c *Client) UpdateFileProbableNames(ctx context.Context, id string, names []string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET probable_names=$1 WHERE id=$2`, TFile)
	_, err = db.ExecContext(ctx, cmd, toStringArray(names), id)
	if err != nil {
		klog.ErrorS(err, "failed to update file probable names", "Id", id)
		return err
	}
	return nil
}

// UpdateFilePath updates the on-disk location of the stored file.
func (c *Client) UpdateFilePath(ctx context.Context, id, path string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET filepath=$1 WHERE id=$2`, TFile)
	_, err = db.ExecContext(ctx, cmd, path, id)
	if err != nil {
		klog.ErrorS(err, "failed to update file path", "Id", id)
		return err
	}
	return nil
}

// AppendFileComment appends a comment document to the comments list.
func (c *Client) AppendFileComment(ctx context.Context, id string, comment []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET comments = coalesce(comments, '[]'::jsonb) || $1::jsonb WHERE id=$2`, TFile)
	_, err = db.ExecContext(ctx, cmd, comment, id)
	if err != nil {
		klog.ErrorS(err, "failed to append file comment", "Id", id)
		return err
	}
	return nil
}
