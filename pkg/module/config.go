/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package module

import (
	"fmt"
	"strconv"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

// OptionValue resolves the effective value of an option: the configured
// value when set, the declared default otherwise.
func OptionValue(option ConfigOption) interface{} {
	if option.Value != nil {
		return option.Value
	}
	return option.Default
}

// MergeConfig reconciles a declared option list with a stored one:
// declared options keep their stored value when name and type both match.
// Options that disappeared from the declaration are dropped.
func MergeConfig(declared, stored []ConfigOption) []ConfigOption {
	byName := make(map[string]ConfigOption, len(stored))
	for _, option := range stored {
		byName[option.Name] = option
	}
	result := make([]ConfigOption, 0, len(declared))
	for _, option := range declared {
		if existing, ok := byName[option.Name]; ok && existing.Type == option.Type {
			option.Value = existing.Value
		}
		result = append(result, option)
	}
	return result
}

// IncompleteConfig reports whether any option has neither a value nor a
// default. Modules depending on an incomplete named configuration cannot
// run and are disabled during sync.
func IncompleteConfig(options []ConfigOption) bool {
	for _, option := range options {
		if OptionValue(option) == nil {
			return true
		}
	}
	return false
}

// ConfigValues flattens an option list into a value map.
func ConfigValues(options []ConfigOption) map[string]interface{} {
	result := make(map[string]interface{}, len(options))
	for _, option := range options {
		result[option.Name] = OptionValue(option)
	}
	return result
}

// CoerceOptionValue converts a raw per-analysis option value to the
// declared option type. Booleans treat 0, "0" and "False" as false and
// anything else as true; integers accept numeric strings.
func CoerceOptionValue(optionType string, raw interface{}) (interface{}, error) {
	switch optionType {
	case OptionBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int:
			return v != 0, nil
		case float64:
			return v != 0, nil
		case string:
			switch v {
			case "0", "False":
				return false, nil
			default:
				return true, nil
			}
		case nil:
			return false, nil
		}
		return nil, errors.NewBadRequest("cannot interpret %v as bool", raw)
	case OptionInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, errors.NewBadRequest("cannot interpret %q as integer", v)
			}
			return n, nil
		}
		return nil, errors.NewBadRequest("cannot interpret %v as integer", raw)
	case OptionStr, OptionText:
		return fmt.Sprint(raw), nil
	default:
		return nil, errors.NewBadRequest("unknown option type %q", optionType)
	}
}

// ApplyDiffs applies recorded operator edits to a declared list field.
func ApplyDiffs(declared []string, diffs *Diffs, field string) []string {
	if diffs == nil {
		return declared
	}
	removed := make(map[string]bool)
	for _, item := range diffs.Removed[field] {
		removed[item] = true
	}
	result := make([]string, 0, len(declared))
	seen := make(map[string]bool)
	for _, item := range declared {
		if !removed[item] && !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	for _, item := range diffs.Added[field] {
		if !removed[item] && !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

// ComputeListDiffs records how an edited list differs from the declared
// one.
func ComputeListDiffs(declared, edited []string) (added, removed []string) {
	inDeclared := make(map[string]bool, len(declared))
	for _, item := range declared {
		inDeclared[item] = true
	}
	inEdited := make(map[string]bool, len(edited))
	for _, item := range edited {
		inEdited[item] = true
		if !inDeclared[item] {
			added = append(added, item)
		}
	}
	for _, item := range declared {
		if !inEdited[item] {
			removed = append(removed, item)
		}
	}
	return added, removed
}
