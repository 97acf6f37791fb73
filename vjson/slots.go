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

package vjson

import (
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/webplus-id/core/werrors"
)

// getSlots returns the current values of every leaf matching expr.
func getSlots(tree any, expr string) ([]string, error) {
	steps, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	refs, err := resolveSlots(tree, steps)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		s, ok := r.get().(string)
		if !ok {
			return nil, werrors.New(werrors.FailedConstraint, "self-hash slot is not a string: "+expr)
		}
		out = append(out, s)
	}
	return out, nil
}

// setSlots overwrites every leaf matching expr with value.
func setSlots(tree any, expr string, value string) error {
	steps, err := parsePath(expr)
	if err != nil {
		return err
	}
	refs, err := resolveSlots(tree, steps)
	if err != nil {
		return err
	}
	for _, r := range refs {
		r.set(value)
	}
	return nil
}

// resolveDependencyURL evaluates a full JSONPath expression (as declared in
// directDependencies, which may reach arbitrarily into the tree) against
// value using PaesslerAG/jsonpath, and expects exactly one string result: a
// self-hash URL.
func resolveDependencyURL(tree any, expr string) (string, error) {
	res, err := jsonpath.Get(expr, tree)
	if err != nil {
		return "", werrors.Wrap(werrors.FailedConstraint, "directDependencies path did not resolve: "+expr, err)
	}
	switch v := res.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) != 1 {
			return "", werrors.New(werrors.FailedConstraint, fmt.Sprintf("directDependencies path %s must resolve to one value, got %d", expr, len(v)))
		}
		s, ok := v[0].(string)
		if !ok {
			return "", werrors.New(werrors.FailedConstraint, "directDependencies path did not resolve to a string: "+expr)
		}
		return s, nil
	default:
		return "", werrors.New(werrors.FailedConstraint, "directDependencies path did not resolve to a string: "+expr)
	}
}
