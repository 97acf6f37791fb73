// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vjson implements the schema-driven self-hash and self-hash-URL
// slot discovery, computation and verification described for Verifiable
// JSON values, plus their detached-JWS proofs.
package vjson

import (
	"strconv"
	"strings"

	"github.com/webplus-id/core/werrors"
)

// pathStep is one segment of a restricted JSONPath expression: a field
// name, a wildcard array step, or a numeric array index.
type pathStep struct {
	field    string
	index    int
	wildcard bool
	isArray  bool
}

// parsePath parses the subset of JSONPath used by VJSON schemas:
// "$.field.nested", "$.arr[*].field", "$.arr[3].field". PaesslerAG/jsonpath
// is used elsewhere (dependency resolution) for read-only, schema-driven
// evaluation against arbitrary trees; slot computation needs to *write*
// into the tree, which that library does not support, so a small direct
// walker is used for self-hash and self-hash-URL slots.
func parsePath(expr string) ([]pathStep, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "$") {
		return nil, werrors.New(werrors.Malformed, "JSONPath must start with $: "+expr)
	}
	expr = expr[1:]

	var steps []pathStep
	for len(expr) > 0 {
		switch {
		case strings.HasPrefix(expr, "."):
			expr = expr[1:]
			end := strings.IndexAny(expr, ".[")
			var field string
			if end < 0 {
				field, expr = expr, ""
			} else {
				field, expr = expr[:end], expr[end:]
			}
			if field == "" {
				return nil, werrors.New(werrors.Malformed, "empty field name in JSONPath: "+expr)
			}
			steps = append(steps, pathStep{field: field})
		case strings.HasPrefix(expr, "["):
			end := strings.IndexByte(expr, ']')
			if end < 0 {
				return nil, werrors.New(werrors.Malformed, "unterminated array step in JSONPath")
			}
			inner := expr[1:end]
			expr = expr[end+1:]
			if inner == "*" {
				steps = append(steps, pathStep{wildcard: true, isArray: true})
			} else {
				idx, err := strconv.Atoi(inner)
				if err != nil {
					return nil, werrors.Wrap(werrors.Malformed, "malformed array index in JSONPath", err)
				}
				steps = append(steps, pathStep{index: idx, isArray: true})
			}
		default:
			return nil, werrors.New(werrors.Malformed, "malformed JSONPath: "+expr)
		}
	}
	return steps, nil
}

// slotRef is a mutable reference to a single leaf value reachable by a
// parsed path: either a map entry or a slice element.
type slotRef struct {
	m   map[string]any
	key string
	s   []any
	idx int
}

func (r slotRef) get() any {
	if r.m != nil {
		return r.m[r.key]
	}
	return r.s[r.idx]
}

func (r slotRef) set(v any) {
	if r.m != nil {
		r.m[r.key] = v
		return
	}
	r.s[r.idx] = v
}

// resolveSlots walks tree following steps and returns every matching
// leaf as a mutable reference. A wildcard array step fans out to every
// element.
func resolveSlots(tree any, steps []pathStep) ([]slotRef, error) {
	return walk(tree, steps)
}

func walk(node any, steps []pathStep) ([]slotRef, error) {
	if len(steps) == 0 {
		return nil, werrors.New(werrors.Malformed, "empty JSONPath")
	}

	step := steps[0]
	rest := steps[1:]

	if step.isArray {
		arr, ok := node.([]any)
		if !ok {
			return nil, werrors.New(werrors.FailedConstraint, "JSONPath array step applied to non-array")
		}
		var out []slotRef
		indices := []int{step.index}
		if step.wildcard {
			indices = make([]int, len(arr))
			for i := range arr {
				indices[i] = i
			}
		}
		for _, idx := range indices {
			if idx < 0 || idx >= len(arr) {
				continue
			}
			if len(rest) == 0 {
				out = append(out, slotRef{s: arr, idx: idx})
			} else {
				sub, err := walk(arr[idx], rest)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
			}
		}
		return out, nil
	}

	obj, ok := node.(map[string]any)
	if !ok {
		return nil, werrors.New(werrors.FailedConstraint, "JSONPath field step applied to non-object")
	}
	if len(rest) == 0 {
		if _, present := obj[step.field]; !present {
			return nil, werrors.New(werrors.FailedConstraint, "JSONPath field not present: "+step.field)
		}
		return []slotRef{{m: obj, key: step.field}}, nil
	}
	child, present := obj[step.field]
	if !present {
		return nil, werrors.New(werrors.FailedConstraint, "JSONPath field not present: "+step.field)
	}
	return walk(child, rest)
}
