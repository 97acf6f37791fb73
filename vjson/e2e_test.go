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

// TestEndToEndSignedVJSONWithDependency walks the full life of a VJSON
// value: a parent value is computed and signed, a child value declares it
// as a directDependency, and Validate accepts the child only once both the
// parent is known to the dependency checker and the child's own proof
// verifies.
func TestEndToEndSignedVJSONWithDependency(t *testing.T) {
	schema := defaultSchema(t)
	schema.MustBeSigned = true
	schema.DirectDependencies = []string{"$.parent"}

	issuer, err := microledger.GenerateKeyPair(microledger.AlgEdDSA)
	require.NoError(t, err)
	issuerKid, err := issuer.PublicKeyMultibase()
	require.NoError(t, err)
	issuerKid = "did:key:" + issuerKid

	parent := map[string]any{"selfHash": "", "kind": "parent"}
	require.NoError(t, Compute(schema, parent, microledger.DefaultHashFunction, false))
	require.NoError(t, Sign(schema, parent, microledger.DefaultHashFunction, false, issuer, issuerKid))
	require.NoError(t, Validate(schema, parent, false, KeyKeyResolver{}, memDependencyChecker{}))

	parentHash, ok := parent["selfHash"].(string)
	require.True(t, ok)

	child := map[string]any{
		"selfHash": "",
		"kind":     "child",
		"parent":   "https://example.com/vjson/" + parentHash + ".json",
	}
	require.NoError(t, Compute(schema, child, microledger.DefaultHashFunction, false))
	require.NoError(t, Sign(schema, child, microledger.DefaultHashFunction, false, issuer, issuerKid))

	deps := memDependencyChecker{parentHash: true}
	require.NoError(t, Validate(schema, child, false, KeyKeyResolver{}, deps))

	deps = memDependencyChecker{}
	assert.Error(t, Validate(schema, child, false, KeyKeyResolver{}, deps))
}

// TestEndToEndTamperAfterSigningBreaksValidation pins down that tampering
// with a signed VJSON value after the fact breaks both self-hash
// verification and proof verification, so Validate rejects it outright.
func TestEndToEndTamperAfterSigningBreaksValidation(t *testing.T) {
	schema := defaultSchema(t)

	signer, err := microledger.GenerateKeyPair(microledger.AlgES256)
	require.NoError(t, err)
	kid, err := signer.PublicKeyMultibase()
	require.NoError(t, err)
	kid = "did:key:" + kid

	value := map[string]any{"selfHash": "", "amount": float64(100)}
	require.NoError(t, Compute(schema, value, microledger.DefaultHashFunction, false))
	require.NoError(t, Sign(schema, value, microledger.DefaultHashFunction, false, signer, kid))

	value["amount"] = float64(1000000)

	assert.Error(t, Verify(schema, value, false))
	assert.Error(t, Validate(schema, value, false, KeyKeyResolver{}, memDependencyChecker{}))
}
