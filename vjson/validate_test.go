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

package vjson_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webplus-id/core/microledger"
	. "github.com/webplus-id/core/vjson"
)

// memDependencyChecker treats a fixed set of self-hashes as already
// resolvable, standing in for a vjsonstore.Store in these tests.
type memDependencyChecker map[string]bool

func (m memDependencyChecker) HasValue(selfHash string) (bool, error) {
	return m[selfHash], nil
}

// TestValidateAcceptsUnsignedValueWhenNotRequired pins down that Validate
// passes an unsigned value through when the schema does not set
// mustBeSigned.
func TestValidateAcceptsUnsignedValueWhenNotRequired(t *testing.T) {
	schema := defaultSchema(t)
	value := map[string]any{"selfHash": "", "hello": "world"}
	require.NoError(t, Compute(schema, value, microledger.DefaultHashFunction, false))

	err := Validate(schema, value, false, KeyKeyResolver{}, memDependencyChecker{})
	assert.NoError(t, err)
}

// TestValidateRejectsUnsignedValueWhenRequired pins down that a schema
// with mustBeSigned true rejects a value carrying no valid proof.
func TestValidateRejectsUnsignedValueWhenRequired(t *testing.T) {
	schema := defaultSchema(t)
	schema.MustBeSigned = true

	value := map[string]any{"selfHash": "", "hello": "world"}
	require.NoError(t, Compute(schema, value, microledger.DefaultHashFunction, false))

	err := Validate(schema, value, false, KeyKeyResolver{}, memDependencyChecker{})
	assert.Error(t, err)
}

// TestValidateRejectsUnresolvableDirectDependency pins down that a
// directDependencies path naming a self-hash URL the checker doesn't
// recognize fails closure.
func TestValidateRejectsUnresolvableDirectDependency(t *testing.T) {
	schema := defaultSchema(t)
	schema.DirectDependencies = []string{"$.parent"}

	value := map[string]any{
		"selfHash": "",
		"parent":   "https://example.com/vjson/deadbeef.json",
	}
	require.NoError(t, Compute(schema, value, microledger.DefaultHashFunction, false))

	err := Validate(schema, value, false, KeyKeyResolver{}, memDependencyChecker{})
	assert.Error(t, err)
}

// TestValidateAcceptsResolvableDirectDependency mirrors the rejection
// case above but with a checker that knows the dependency's self-hash.
func TestValidateAcceptsResolvableDirectDependency(t *testing.T) {
	schema := defaultSchema(t)
	schema.DirectDependencies = []string{"$.parent"}

	value := map[string]any{
		"selfHash": "",
		"parent":   "https://example.com/vjson/deadbeef.json",
	}
	require.NoError(t, Compute(schema, value, microledger.DefaultHashFunction, false))

	err := Validate(schema, value, false, KeyKeyResolver{}, memDependencyChecker{"deadbeef": true})
	assert.NoError(t, err)
}
