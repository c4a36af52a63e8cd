/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

// Set-valued columns reachable through the generic set operations. Column
// names are interpolated into SQL, so they must come from these tables.
var (
	analysisSetColumns = map[string]bool{
		AnalysisModules:           true,
		AnalysisPreloadingModules: true,
		AnalysisPendingModules:    true,
		AnalysisWaitingModules:    true,
		AnalysisExecutedModules:   true,
		AnalysisCanceledModules:   true,
		AnalysisTags:              true,
		AnalysisProbableNames:     true,
		AnalysisExtractedFiles:    true,
		AnalysisGroups:            true,
	}
	fileSetColumns = map[string]bool{
		FileNames:          true,
		FileGroups:         true,
		FileOwners:         true,
		FileParentAnalyses: true,
		FileAnalyses:       true,
		FileProbableNames:  true,
	}
)

// addToSet appends value to an array column unless already present.
// Returns true when the row was modified, i.e. the value was absent.
func (c *Client) addToSet(ctx context.Context, table, column, id, value string, allowed map[string]bool) (bool, error) {
	if !allowed[column] {
		return false, errors.NewBadRequest("column %s of %s is not set-valued", column, table)
	}
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET %s = array_append(coalesce(%s, '{}'), $1) WHERE id = $2 AND NOT ($1 = ANY(coalesce(%s, '{}')))`,
		table, column, column, column)
	res, err := db.ExecContext(ctx, cmd, value, id)
	if err != nil {
		klog.ErrorS(err, "failed to add to set", "table", table, "column", column, "id", id)
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// removeFromSet removes value from an array column. Returns true when the
// value was present.
func (c *Client) removeFromSet(ctx context.Context, table, column, id, value string, allowed map[string]bool) (bool, error) {
	if !allowed[column] {
		return false, errors.NewBadRequest("column %s of %s is not set-valued", column, table)
	}
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET %s = array_remove(%s, $1) WHERE id = $2 AND $1 = ANY(coalesce(%s, '{}'))`,
		table, column, column, column)
	res, err := db.ExecContext(ctx, cmd, value, id)
	if err != nil {
		klog.ErrorS(err, "failed to remove from set", "table", table, "column", column, "id", id)
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
