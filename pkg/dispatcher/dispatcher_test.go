/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package dispatcher

import (
	"testing"

	"gotest.tools/assert"

	"github.com/certsocietegenerale/fame/pkg/errors"
)

func TestTargetActsOnAvailableType(t *testing.T) {
	d := New([]*Spec{
		{Name: "pe_info", ActsOn: []string{"pe"}},
	})
	next, err := d.NextModule([]string{"pe"}, "pe_info", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "pe_info")
}

func TestGeneralPurposeTarget(t *testing.T) {
	d := New([]*Spec{
		{Name: "strings"},
	})
	next, err := d.NextModule([]string{"pe"}, "strings", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "strings")
}

func TestSingleTransformStep(t *testing.T) {
	d := New([]*Spec{
		{Name: "office_macros", ActsOn: []string{"word"}, Generates: []string{"vbs"}},
		{Name: "vbs_analyzer", ActsOn: []string{"vbs"}},
	})
	next, err := d.NextModule([]string{"word"}, "vbs_analyzer", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "office_macros")
}

func TestRegularLengthOneBeatsDirectTransform(t *testing.T) {
	d := New([]*Spec{
		{Name: "generic_unpacker", Generates: []string{"pe"}},
		{Name: "zip_extract", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
		{Name: "pe_info", ActsOn: []string{"pe"}},
	})
	next, err := d.NextModule([]string{"zip"}, "pe_info", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "zip_extract")
}

func TestDirectTransformBeatsLongerChain(t *testing.T) {
	d := New([]*Spec{
		{Name: "a_to_b", ActsOn: []string{"a"}, Generates: []string{"b"}},
		{Name: "b_to_pe", ActsOn: []string{"b"}, Generates: []string{"pe"}},
		{Name: "generic_unpacker", Generates: []string{"pe"}},
		{Name: "pe_info", ActsOn: []string{"pe"}},
	})
	// Reaching pe from a takes two regular steps; the direct transform
	// wins.
	next, err := d.NextModule([]string{"a"}, "pe_info", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "generic_unpacker")
}

func TestTieBrokenByDeclarationOrder(t *testing.T) {
	d := New([]*Spec{
		{Name: "first_extractor", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
		{Name: "second_extractor", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
		{Name: "pe_info", ActsOn: []string{"pe"}},
	})
	next, err := d.NextModule([]string{"zip"}, "pe_info", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "first_extractor")
}

func TestExcludedModulesAreSkipped(t *testing.T) {
	d := New([]*Spec{
		{Name: "first_extractor", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
		{Name: "second_extractor", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
		{Name: "pe_info", ActsOn: []string{"pe"}},
	})
	next, err := d.NextModule([]string{"zip"}, "pe_info", []string{"first_extractor"})
	assert.NilError(t, err)
	assert.Equal(t, next, "second_extractor")

	_, err = d.NextModule([]string{"zip"}, "pe_info", []string{"first_extractor", "second_extractor"})
	assert.Assert(t, errors.IsDispatchingError(err))
}

func TestCyclicTransformsTerminate(t *testing.T) {
	d := New([]*Spec{
		{Name: "a_to_b", ActsOn: []string{"a"}, Generates: []string{"b"}},
		{Name: "b_to_a", ActsOn: []string{"b"}, Generates: []string{"a"}},
		{Name: "pdf_extract", ActsOn: []string{"pdf"}},
	})
	_, err := d.NextModule([]string{"a"}, "pdf_extract", nil)
	assert.Assert(t, errors.IsDispatchingError(err))
}

func TestMultiHopChain(t *testing.T) {
	d := New([]*Spec{
		{Name: "eml_extract", ActsOn: []string{"eml"}, Generates: []string{"zip"}},
		{Name: "zip_extract", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
		{Name: "pe_info", ActsOn: []string{"pe"}},
	})
	next, err := d.NextModule([]string{"eml"}, "pe_info", nil)
	assert.NilError(t, err)
	assert.Equal(t, next, "eml_extract")
}

func TestUnknownTarget(t *testing.T) {
	d := New(nil)
	_, err := d.NextModule([]string{"pe"}, "missing", nil)
	assert.Assert(t, errors.IsDispatchingError(err))
}

func TestTargetIsExcludedFromItsOwnPath(t *testing.T) {
	// pe_extract both generates pe and is the target: it must not appear
	// on its own path.
	d := New([]*Spec{
		{Name: "pe_extract", ActsOn: []string{"zip"}, Generates: []string{"pe"}},
	})
	_, err := d.NextModule([]string{"other"}, "pe_extract", nil)
	assert.Assert(t, errors.IsDispatchingError(err))
}
