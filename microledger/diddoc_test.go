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

package microledger_test

import (
	"strings"
	"testing"
	"time"

	. "github.com/webplus-id/core/microledger"
	"github.com/stretchr/testify/require"
)

func newUpdateKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair(AlgEdDSA)
	require.NoError(t, err)
	return kp
}

func draftRoot(t *testing.T, updateVMID, updateMultibase string) *DIDDocument {
	t.Helper()
	id := "did:webplus:example.com:placeholder"
	return &DIDDocument{
		ID:        id,
		VersionID: 0,
		ValidFrom: time.Now().UTC(),
		PublicKeyMaterial: PublicKeyMaterial{
			VerificationMethod: []VerificationMethod{
				{ID: updateVMID, Type: "Ed25519VerificationKey2020", Controller: id, PublicKeyMultibase: updateMultibase},
			},
		},
		UpdateRules: SingleKeyUpdateRule(updateVMID),
	}
}

// TestBuildRootPatchesIDWithFinalSelfHash pins down the fixed-point
// construction: the unsigned root's id carries a placeholder root-self-hash
// segment, which BuildRoot overwrites with the hash it just computed, and
// that hash recomputes correctly once the id is re-placeholdered.
func TestBuildRootPatchesIDWithFinalSelfHash(t *testing.T) {
	updateKP := newUpdateKeyPair(t)
	updateMultibase, err := updateKP.PublicKeyMultibase()
	require.NoError(t, err)

	draftID := "did:webplus:example.com:placeholder"
	root := draftRoot(t, draftID+"#update-key", updateMultibase)

	built, err := BuildRoot(root, DefaultHashFunction)
	require.NoError(t, err)

	require.True(t, strings.HasSuffix(built.ID, ":"+built.SelfHash))
	require.NotEqual(t, draftID, built.ID)

	require.NoError(t, VerifySelfHash(built))

	ml, err := Create(built)
	require.NoError(t, err)
	require.Equal(t, built.SelfHash, ml.Root().SelfHash)
}

// TestBuildNonRootChainsAndVerifies exercises the full non-root
// construction/verification cycle: id is copied verbatim (not re-hashed as
// a placeholder), the detached JWS is signed by the update key named in the
// predecessor's updateRules, and the resulting chain verifies end to end.
func TestBuildNonRootChainsAndVerifies(t *testing.T) {
	updateKP := newUpdateKeyPair(t)
	updateMultibase, err := updateKP.PublicKeyMultibase()
	require.NoError(t, err)

	draftID := "did:webplus:example.com:placeholder"
	root := draftRoot(t, draftID+"#update-key", updateMultibase)
	builtRoot, err := BuildRoot(root, DefaultHashFunction)
	require.NoError(t, err)

	nextUpdateKP := newUpdateKeyPair(t)
	nextUpdateMultibase, err := nextUpdateKP.PublicKeyMultibase()
	require.NoError(t, err)
	nextUpdateVMID := builtRoot.ID + "#update-key-2"

	next := &DIDDocument{
		ValidFrom: builtRoot.ValidFrom.Add(time.Second),
		PublicKeyMaterial: PublicKeyMaterial{
			VerificationMethod: []VerificationMethod{
				{ID: nextUpdateVMID, Type: "Ed25519VerificationKey2020", Controller: builtRoot.ID, PublicKeyMultibase: nextUpdateMultibase},
			},
		},
		UpdateRules: SingleKeyUpdateRule(nextUpdateVMID),
	}

	built, err := BuildNonRoot(builtRoot, next, DefaultHashFunction, updateKP, builtRoot.ID+"#update-key")
	require.NoError(t, err)
	require.Equal(t, builtRoot.ID, built.ID)
	require.Equal(t, uint64(1), built.VersionID)
	require.Equal(t, builtRoot.SelfHash, built.PrevDIDDocumentSelfHash)

	require.NoError(t, VerifyNonrecursive(built, builtRoot))

	ml, err := Create(builtRoot)
	require.NoError(t, err)
	require.NoError(t, ml.Append(built))
	require.Equal(t, built, ml.Tail())
}

// TestCreateRejectsIDNotMatchingRootSelfHash confirms recursive
// verification's root invariant (the root's self-hash must equal the
// root-self-hash suffix of its own id) is enforced at Create: VerifySelfHash
// alone can't catch this, since the id's hash segment is placeholder-zeroed
// for the purposes of that recomputation by design.
func TestCreateRejectsIDNotMatchingRootSelfHash(t *testing.T) {
	updateKP := newUpdateKeyPair(t)
	updateMultibase, err := updateKP.PublicKeyMultibase()
	require.NoError(t, err)

	draftID := "did:webplus:example.com:placeholder"
	root := draftRoot(t, draftID+"#update-key", updateMultibase)
	built, err := BuildRoot(root, DefaultHashFunction)
	require.NoError(t, err)
	require.NoError(t, VerifySelfHash(built))

	tampered := built.Clone()
	tampered.ID = tampered.ID[:strings.LastIndex(tampered.ID, ":")+1] + "notTheRealSelfHash"
	require.NoError(t, VerifySelfHash(tampered), "self-hash recomputation is blind to the id's hash segment by design")

	_, err = Create(tampered)
	require.Error(t, err, "Create must still reject an id whose root-self-hash segment disagrees with selfHash")
}
