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

package vdr_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/storage"
	_ "github.com/webplus-id/core/storage/boltstore"
	. "github.com/webplus-id/core/vdr"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	backend, err := storage.CreateDIDBackend(&storage.DIDBackendConfig{
		Type:   "bolt",
		Params: storage.Parameters{"file": filepath.Join(t.TempDir(), "vdr.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewRegistry(backend, nil, nil)
}

func buildTestRoot(t *testing.T) (*microledger.DIDDocument, *microledger.KeyPair) {
	t.Helper()
	kp, err := microledger.GenerateKeyPair(microledger.AlgEdDSA)
	require.NoError(t, err)
	multibase, err := kp.PublicKeyMultibase()
	require.NoError(t, err)

	draftID := "did:webplus:example.com:registry-test"
	root := &microledger.DIDDocument{
		ID:        draftID,
		VersionID: 0,
		ValidFrom: time.Now().UTC(),
		PublicKeyMaterial: microledger.PublicKeyMaterial{
			VerificationMethod: []microledger.VerificationMethod{
				{ID: draftID + "#update-key", Type: "Ed25519VerificationKey2020", Controller: draftID, PublicKeyMultibase: multibase},
			},
		},
		UpdateRules: microledger.SingleKeyUpdateRule(draftID + "#update-key"),
	}
	built, err := microledger.BuildRoot(root, microledger.DefaultHashFunction)
	require.NoError(t, err)
	return built, kp
}

// TestCreateRootAcceptsMatchingID pins down the one structural check
// CreateRoot performs beyond microledger.Create: the request URL's DID
// must equal the document's own id.
func TestCreateRootAcceptsMatchingID(t *testing.T) {
	r := newTestRegistry(t)
	root, _ := buildTestRoot(t)

	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))

	latest, err := r.Latest(context.Background(), root.ID)
	require.NoError(t, err)
	require.Equal(t, root.SelfHash, latest.SelfHash)
}

func TestCreateRootRejectsMismatchedID(t *testing.T) {
	r := newTestRegistry(t)
	root, _ := buildTestRoot(t)

	err := r.CreateRoot(context.Background(), "did:webplus:example.com:someone-else", root)
	require.Error(t, err)
}

func TestCreateRootRejectsDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	root, _ := buildTestRoot(t)

	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))
	err := r.CreateRoot(context.Background(), root.ID, root)
	require.Error(t, err)
}

// TestAppendVersionAcceptsValidSuccessor pins down the full accept path:
// a correctly-signed, correctly-sequenced successor is persisted and
// becomes the new tail.
func TestAppendVersionAcceptsValidSuccessor(t *testing.T) {
	r := newTestRegistry(t)
	root, kp := buildTestRoot(t)
	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))

	next := &microledger.DIDDocument{
		ValidFrom:         root.ValidFrom.Add(time.Second),
		PublicKeyMaterial: root.PublicKeyMaterial,
		UpdateRules:       root.UpdateRules,
	}
	built, err := microledger.BuildNonRoot(root, next, microledger.DefaultHashFunction, kp, root.ID+"#update-key")
	require.NoError(t, err)

	require.NoError(t, r.AppendVersion(context.Background(), root.ID, built))

	latest, err := r.Latest(context.Background(), root.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), latest.VersionID)
}

// TestAppendVersionRejectsVersionGap pins down that a successor skipping
// ahead of the stored tail is rejected rather than silently accepted.
func TestAppendVersionRejectsVersionGap(t *testing.T) {
	r := newTestRegistry(t)
	root, kp := buildTestRoot(t)
	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))

	next := &microledger.DIDDocument{
		ValidFrom:         root.ValidFrom.Add(time.Second),
		PublicKeyMaterial: root.PublicKeyMaterial,
		UpdateRules:       root.UpdateRules,
	}
	built, err := microledger.BuildNonRoot(root, next, microledger.DefaultHashFunction, kp, root.ID+"#update-key")
	require.NoError(t, err)
	built.VersionID = 5

	err = r.AppendVersion(context.Background(), root.ID, built)
	require.Error(t, err)
}

// TestAppendVersionRejectsAlreadyCommitted pins down that resubmitting a
// version number already committed is rejected as AlreadyExists rather
// than silently overwriting it.
func TestAppendVersionRejectsAlreadyCommitted(t *testing.T) {
	r := newTestRegistry(t)
	root, kp := buildTestRoot(t)
	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))

	next := &microledger.DIDDocument{
		ValidFrom:         root.ValidFrom.Add(time.Second),
		PublicKeyMaterial: root.PublicKeyMaterial,
		UpdateRules:       root.UpdateRules,
	}
	built, err := microledger.BuildNonRoot(root, next, microledger.DefaultHashFunction, kp, root.ID+"#update-key")
	require.NoError(t, err)
	require.NoError(t, r.AppendVersion(context.Background(), root.ID, built))

	built.VersionID = 0
	err = r.AppendVersion(context.Background(), root.ID, built)
	require.Error(t, err)
}

// TestAppendVersionRejectsBadSignature pins down that AppendVersion
// actually runs VerifyNonrecursive rather than trusting the caller: a
// successor signed by a key the predecessor's updateRules doesn't name
// must be rejected.
func TestAppendVersionRejectsBadSignature(t *testing.T) {
	r := newTestRegistry(t)
	root, _ := buildTestRoot(t)
	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))

	impostor, err := microledger.GenerateKeyPair(microledger.AlgEdDSA)
	require.NoError(t, err)

	next := &microledger.DIDDocument{
		ValidFrom:         root.ValidFrom.Add(time.Second),
		PublicKeyMaterial: root.PublicKeyMaterial,
		UpdateRules:       root.UpdateRules,
	}
	built, err := microledger.BuildNonRoot(root, next, microledger.DefaultHashFunction, impostor, root.ID+"#update-key")
	require.NoError(t, err)

	err = r.AppendVersion(context.Background(), root.ID, built)
	require.Error(t, err)
}

func TestByVersionIDAndBySelfHash(t *testing.T) {
	r := newTestRegistry(t)
	root, kp := buildTestRoot(t)
	require.NoError(t, r.CreateRoot(context.Background(), root.ID, root))

	next := &microledger.DIDDocument{
		ValidFrom:         root.ValidFrom.Add(time.Second),
		PublicKeyMaterial: root.PublicKeyMaterial,
		UpdateRules:       root.UpdateRules,
	}
	built, err := microledger.BuildNonRoot(root, next, microledger.DefaultHashFunction, kp, root.ID+"#update-key")
	require.NoError(t, err)
	require.NoError(t, r.AppendVersion(context.Background(), root.ID, built))

	byVersion, err := r.ByVersionID(context.Background(), root.ID, 1)
	require.NoError(t, err)
	require.Equal(t, built.SelfHash, byVersion.SelfHash)

	bySelfHash, err := r.BySelfHash(context.Background(), root.ID, root.SelfHash)
	require.NoError(t, err)
	require.Equal(t, root.SelfHash, bySelfHash.SelfHash)

	_, err = r.ByVersionID(context.Background(), root.ID, 99)
	require.Error(t, err)
}

func TestChainRejectsUnknownDID(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Chain(context.Background(), "did:webplus:example.com:does-not-exist")
	require.Error(t, err)
}
