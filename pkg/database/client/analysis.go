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
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	dbutils "github.com/certsocietegenerale/fame/pkg/database/utils"
	"github.com/certsocietegenerale/fame/pkg/errors"
)

const (
	TAnalysis = "analysis"
)

var (
	insertAnalysisFormat = `INSERT INTO ` + TAnalysis + ` (%s) VALUES (%s)`
)

// InsertAnalysis stores a new analysis record.
func (c *Client) InsertAnalysis(ctx context.Context, analysis *Analysis) error {
	if analysis == nil {
		return errors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, generateCommand(*analysis, insertAnalysisFormat, ""), analysis)
	if err != nil {
		klog.ErrorS(err, "failed to insert analysis db", "id", analysis.Id)
	}
	return err
}

// SelectAnalyses retrieves multiple analysis records.
func (c *Client) SelectAnalyses(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Analysis, error) {
	startTime := time.Now().UTC()
	defer func() {
		if query != nil {
			strQuery := dbutils.CvtToSqlStr(query)
			klog.Infof("select analyses, query: %s, orderBy: %v, limit: %d, offset: %d, cost (%v)",
				strQuery, orderBy, limit, offset, time.Since(startTime))
		}
	}()
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}

	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TAnalysis).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}

	var analyses []*Analysis
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &analyses, sql, args...)
	} else {
		err = db.SelectContext(ctx, &analyses, sql, args...)
	}
	return analyses, err
}

// CountAnalyses returns the total count of analyses matching the criteria.
func (c *Client) CountAnalyses(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TAnalysis).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

// GetAnalysis retrieves an analysis by ID.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	if id == "" {
		return nil, errors.NewBadRequest("id is empty")
	}
	analyses, err := c.SelectAnalyses(ctx, sqrl.Eq{"id": id}, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, errors.NewNotFound("analysis %s not found", id)
	}
	return analyses[0], nil
}

// UpdateAnalysisStatus updates the analysis status unconditionally.
func (c *Client) UpdateAnalysisStatus(ctx context.Context, id, status string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1 WHERE id=$2`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, status, id)
	if err != nil {
		klog.ErrorS(err, "failed to update analysis status", "Id", id, "Status", status)
		return err
	}
	return nil
}

// UpdateAnalysisStatusIf moves the analysis from one of the given statuses
// to the target status. Returns true when the transition happened.
func (c *Client) UpdateAnalysisStatusIf(ctx context.Context, id string, from []string, to string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1 WHERE id=$2 AND status = ANY($3)`, TAnalysis)
	res, err := db.ExecContext(ctx, cmd, to, id, pq.StringArray(from))
	if err != nil {
		klog.ErrorS(err, "failed to update analysis status", "Id", id, "Status", to)
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// UpdateAnalysisFile re-points the analysis at another file. Used when a
// preloader attaches the real binary behind a hash submission.
func (c *Client) UpdateAnalysisFile(ctx context.Context, id, fileId string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET file_id=$1 WHERE id=$2`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, fileId, id)
	if err != nil {
		klog.ErrorS(err, "failed to update analysis file", "Id", id, "FileId", fileId)
		return err
	}
	return nil
}

// SetAnalysisEndTime records the end of the analysis.
func (c *Client) SetAnalysisEndTime(ctx context.Context, id string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET end_time=$1 WHERE id=$2`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, time.Now().UTC(), id)
	if err != nil {
		klog.ErrorS(err, "failed to set analysis end time", "Id", id)
		return err
	}
	return nil
}

// AddAnalysisToSet appends value to a set-valued analysis column. Returns
// true when the value was not already present.
func (c *Client) AddAnalysisToSet(ctx context.Context, id, column, value string) (bool, error) {
	return c.addToSet(ctx, TAnalysis, column, id, value, analysisSetColumns)
}

// RemoveAnalysisFromSet removes value from a set-valued analysis column.
func (c *Client) RemoveAnalysisFromSet(ctx context.Context, id, column, value string) (bool, error) {
	return c.removeFromSet(ctx, TAnalysis, column, id, value, analysisSetColumns)
}

// AppendAnalysisLog appends a log line. Unlike the module sets, the log is
// an ordered list that accepts duplicates.
func (c *Client) AppendAnalysisLog(ctx context.Context, id, line string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET logs = array_append(coalesce(logs, '{}'), $1) WHERE id=$2`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, line, id)
	if err != nil {
		klog.ErrorS(err, "failed to append analysis log", "Id", id)
		return err
	}
	return nil
}

// SetAnalysisResult stores the result document of one module under
// results[module].
func (c *Client) SetAnalysisResult(ctx context.Context, id, module string, result []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET results = jsonb_set(coalesce(results, '{}'::jsonb), ARRAY[$1], $2::jsonb) WHERE id=$3`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, module, result, id)
	if err != nil {
		klog.ErrorS(err, "failed to set analysis result", "Id", id, "Module", module)
		return err
	}
	return nil
}

// AddAnalysisGeneratedFiles appends paths under generated_files[fileType].
func (c *Client) AddAnalysisGeneratedFiles(ctx context.Context, id, fileType string, paths []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET generated_files = jsonb_set(coalesce(generated_files, '{}'::jsonb), ARRAY[$1],
		coalesce(generated_files->$1, '[]'::jsonb) || $2::jsonb) WHERE id=$3`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, fileType, paths, id)
	if err != nil {
		klog.ErrorS(err, "failed to add analysis generated files", "Id", id, "Type", fileType)
		return err
	}
	return nil
}

// AddAnalysisSupportFile records a support file name under
// support_files[module].
func (c *Client) AddAnalysisSupportFile(ctx context.Context, id, module, name string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET support_files = jsonb_set(coalesce(support_files, '{}'::jsonb), ARRAY[$1],
		coalesce(support_files->$1, '[]'::jsonb) || to_jsonb($2::text)) WHERE id=$3`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, module, name, id)
	if err != nil {
		klog.ErrorS(err, "failed to add analysis support file", "Id", id, "Module", module)
		return err
	}
	return nil
}

// AppendAnalysisExtraction appends an extraction document.
func (c *Client) AppendAnalysisExtraction(ctx context.Context, id string, extraction []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET extractions = coalesce(extractions, '[]'::jsonb) || $1::jsonb WHERE id=$2`, TAnalysis)
	_, err = db.ExecContext(ctx, cmd, extraction, id)
	if err != nil {
		klog.ErrorS(err, "failed to append analysis extraction", "Id", id)
		return err
	}
	return nil
}
