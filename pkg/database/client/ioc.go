/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

const (
	TAnalysisIOC = "analysis_ioc"
)

// InsertAnalysisIOC records an observable for an analysis. The (analysis,
// value) pair is unique; the return value reports whether this call
// inserted it for the first time, which is what gates threat intelligence
// enrichment.
func (c *Client) InsertAnalysisIOC(ctx context.Context, ioc *AnalysisIOC) (bool, error) {
	if ioc == nil {
		return false, errors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`INSERT INTO %s (analysis_id, value, tags, ti_tags, sources, ti_indicators, create_time)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (analysis_id, value) DO NOTHING`, TAnalysisIOC)
	res, err := db.ExecContext(ctx, cmd, ioc.AnalysisId, ioc.Value,
		toStringArray(ioc.Tags), toStringArray(ioc.TITags), toStringArray(ioc.Sources), nullJSON(ioc.TIIndicators))
	if err != nil {
		klog.ErrorS(err, "failed to insert analysis ioc", "AnalysisId", ioc.AnalysisId)
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MergeAnalysisIOC merges tags and sources into an existing observable.
func (c *Client) MergeAnalysisIOC(ctx context.Context, analysisId, value string, tags, sources []string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET
		tags = (SELECT coalesce(array_agg(DISTINCT t), '{}') FROM unnest(tags || $3) t),
		sources = (SELECT coalesce(array_agg(DISTINCT s), '{}') FROM unnest(sources || $4) s)
		WHERE analysis_id=$1 AND value=$2`, TAnalysisIOC)
	_, err = db.ExecContext(ctx, cmd, analysisId, value, pq.StringArray(tags), pq.StringArray(sources))
	if err != nil {
		klog.ErrorS(err, "failed to merge analysis ioc", "AnalysisId", analysisId)
		return err
	}
	return nil
}

// UpdateAnalysisIOCTI stores the threat intelligence verdict for an
// observable.
func (c *Client) UpdateAnalysisIOCTI(ctx context.Context, analysisId, value string, tiTags []string, tiIndicators []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET ti_tags=$3, ti_indicators=$4 WHERE analysis_id=$1 AND value=$2`, TAnalysisIOC)
	_, err = db.ExecContext(ctx, cmd, analysisId, value, pq.StringArray(tiTags), nullJSON(tiIndicators))
	if err != nil {
		klog.ErrorS(err, "failed to update analysis ioc ti", "AnalysisId", analysisId)
		return err
	}
	return nil
}

// SelectAnalysisIOCs retrieves all observables of an analysis.
func (c *Client) SelectAnalysisIOCs(ctx context.Context, analysisId string) ([]*AnalysisIOC, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TAnalysisIOC).
		Where(sqrl.Eq{"analysis_id": analysisId}).
		OrderBy("id " + ASC).ToSql()
	if err != nil {
		return nil, err
	}
	var iocs []*AnalysisIOC
	err = db.SelectContext(ctx, &iocs, sql, args...)
	return iocs, err
}

func nullJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
