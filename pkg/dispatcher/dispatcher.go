/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package dispatcher resolves which module must run next to reach a target
// module from the file types currently available in an analysis.
package dispatcher

import (
	"github.com/certsocietegenerale/fame/pkg/errors"
	"github.com/certsocietegenerale/fame/pkg/utils"
)

// Spec is the dispatching view of one enabled processing module.
type Spec struct {
	Name      string
	ActsOn    []string
	Generates []string
}

type transform struct {
	generated string
	module    string
}

// Dispatcher indexes module transforms. Declaration order is significant:
// it breaks ties between equally short paths.
type Dispatcher struct {
	byName map[string]*Spec
	// transforms[src] lists modules acting on src, once per generated type.
	transforms map[string][]transform
	// directTransforms[dst] lists modules generating dst from any type.
	directTransforms map[string][]string
}

// New builds a dispatcher over the given modules, in declaration order.
func New(specs []*Spec) *Dispatcher {
	d := &Dispatcher{
		byName:           make(map[string]*Spec),
		transforms:       make(map[string][]transform),
		directTransforms: make(map[string][]string),
	}
	for _, spec := range specs {
		d.byName[spec.Name] = spec
		if len(spec.Generates) == 0 {
			continue
		}
		if len(spec.ActsOn) == 0 {
			for _, generated := range spec.Generates {
				d.directTransforms[generated] = append(d.directTransforms[generated], spec.Name)
			}
		} else {
			for _, source := range spec.ActsOn {
				for _, generated := range spec.Generates {
					d.transforms[source] = append(d.transforms[source], transform{generated: generated, module: spec.Name})
				}
			}
		}
	}
	return d
}

// NextModule returns the module to execute next in order to eventually run
// target: the target itself when it acts on an available type (or on
// anything), otherwise the first module of the shortest transform chain.
//
// Resolution order for a needed type:
//  1. a regular transform one step away
//  2. a direct transform (no acts_on constraint)
//  3. the shortest longer regular chain
//
// Ties go to the earliest declared module.
func (d *Dispatcher) NextModule(typesAvailable []string, target string, excludedModules []string) (string, error) {
	spec, ok := d.byName[target]
	if !ok {
		return "", errors.NewDispatchingError("could not find execution path to %q", target)
	}
	if len(spec.ActsOn) == 0 {
		return target, nil
	}
	for _, actsOn := range spec.ActsOn {
		if utils.StringInSlice(actsOn, typesAvailable) {
			return target, nil
		}
	}
	excluded := append(append([]string{}, excludedModules...), target)
	next, length := "", -1
	for _, destination := range spec.ActsOn {
		module, l := d.shortestPathToType(typesAvailable, destination, excluded)
		if l >= 0 && (length < 0 || l < length) {
			length = l
			next = module
		}
	}
	if length < 0 {
		return "", errors.NewDispatchingError("could not find execution path to %q", target)
	}
	return next, nil
}

// shortestPathToType finds the module starting the shortest chain that
// produces destination from one of the available types. Length -1 means no
// path.
func (d *Dispatcher) shortestPathToType(typesAvailable []string, destination string, excludedModules []string) (string, int) {
	next, length := "", -1
	for _, source := range typesAvailable {
		module, l := d.shortestPath(source, destination, excludedModules, map[string]bool{})
		if l >= 0 && (length < 0 || l < length) {
			length = l
			next = module
		}
	}
	if length == 1 {
		return next, 1
	}
	if direct := d.directTransform(destination, excludedModules); direct != "" {
		return direct, 1
	}
	return next, length
}

func (d *Dispatcher) directTransform(destination string, excludedModules []string) string {
	for _, module := range d.directTransforms[destination] {
		if !utils.StringInSlice(module, excludedModules) {
			return module
		}
	}
	return ""
}

// shortestPath walks the transform graph from source. The visited set is
// shared across sibling branches of one top-level call, which both bounds
// the walk on cyclic graphs and keeps earlier declarations ahead on ties.
func (d *Dispatcher) shortestPath(source, destination string, excludedModules []string, visitedTypes map[string]bool) (string, int) {
	next, length := "", -1
	visitedTypes[source] = true

	for _, tr := range d.transforms[source] {
		if utils.StringInSlice(tr.module, excludedModules) {
			continue
		}
		l := d.pathLength(tr, destination, excludedModules, visitedTypes)
		if l >= 0 && (length < 0 || l < length) {
			length = l
			next = tr.module
		}
	}
	return next, length
}

func (d *Dispatcher) pathLength(tr transform, destination string, excludedModules []string, visitedTypes map[string]bool) int {
	if visitedTypes[tr.generated] {
		return -1
	}
	if tr.generated == destination {
		return 1
	}
	_, l := d.shortestPath(tr.generated, destination, excludedModules, visitedTypes)
	if l < 0 {
		return -1
	}
	return l + 1
}
