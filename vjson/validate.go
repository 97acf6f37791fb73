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
	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/werrors"
)

// DependencyChecker reports whether a VJSON value is already resolvable by
// self-hash — the closure check required for directDependencies. Backed by
// a vjsonstore.Store in production.
type DependencyChecker interface {
	HasValue(selfHash string) (bool, error)
}

// Validate runs the full VJSON validation procedure against value: JSON
// Schema structural validation, self-hash verification, proof
// verification (enforcing mustBeSigned), and directDependencies closure.
func Validate(schema *Schema, value map[string]any, isSelfSchema bool, keys KeyResolver, deps DependencyChecker) error {
	if err := schema.validate(value); err != nil {
		return err
	}

	if err := Verify(schema, value, isSelfSchema); err != nil {
		return err
	}

	valid, err := VerifyProofs(schema, value, isSelfSchema, keys)
	if err != nil {
		return err
	}
	if schema.MustBeSigned && valid == 0 {
		return werrors.New(werrors.Malformed, "value must be signed but carries no valid proof")
	}
	if len(getProofs(value)) > 0 && valid == 0 {
		return werrors.New(werrors.InvalidSignature, "no proof verified")
	}

	for _, expr := range schema.DirectDependencies {
		url, err := resolveDependencyURL(value, expr)
		if err != nil {
			return err
		}
		hash, err := diduri.SelfHashURLToken(url)
		if err != nil {
			return err
		}
		ok, err := deps.HasValue(hash)
		if err != nil {
			return err
		}
		if !ok {
			return werrors.New(werrors.FailedConstraint, "direct dependency is not resolvable: "+url)
		}
	}

	return nil
}
