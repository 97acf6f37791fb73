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

package resolver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webplus-id/core/microledger"
	. "github.com/webplus-id/core/resolver"
	"github.com/webplus-id/core/storage"
	_ "github.com/webplus-id/core/storage/boltstore"
)

// vdrFixture serves a chain of DID document versions over HTTP the way a
// real VDR would, so FullResolver can be driven against it without a real
// network.
type vdrFixture struct {
	server *httptest.Server
	docs   []*microledger.DIDDocument
}

func newVDRFixture(t *testing.T, docs []*microledger.DIDDocument) *vdrFixture {
	t.Helper()
	f := &vdrFixture{docs: docs}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *vdrFixture) handle(w http.ResponseWriter, r *http.Request) {
	var doc *microledger.DIDDocument
	p := r.URL.Path
	if i := strings.IndexByte(strings.TrimPrefix(p, "/"), '/'); i >= 0 {
		p = p[i+1:]
	}
	switch {
	case p == "/did.json":
		doc = f.docs[len(f.docs)-1]
	case strings.HasPrefix(p, "/did/versionId/"):
		s := strings.TrimSuffix(strings.TrimPrefix(p, "/did/versionId/"), ".json")
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil || v >= uint64(len(f.docs)) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		doc = f.docs[v]
	case strings.HasPrefix(p, "/did/selfHash/"):
		hash := strings.TrimSuffix(strings.TrimPrefix(p, "/did/selfHash/"), ".json")
		for _, d := range f.docs {
			if d.SelfHash == hash {
				doc = d
				break
			}
		}
		if doc == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	raw, err := doc.MarshalJCS()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// hostPort extracts the host and port serving f, as a did:webplus would
// encode them in its identifier.
func (f *vdrFixture) hostPort(t *testing.T) (string, string) {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	host, port, err := splitHostPort(u.Host)
	require.NoError(t, err)
	return host, port
}

func splitHostPort(hostport string) (string, string, error) {
	i := strings.LastIndexByte(hostport, ':')
	if i < 0 {
		return hostport, "", nil
	}
	return hostport[:i], hostport[i+1:], nil
}

// buildChain constructs a root document plus n non-root updates, all under
// a single Ed25519 update key, returning them in versionId order.
func buildChain(t *testing.T, host, port string, n int) []*microledger.DIDDocument {
	t.Helper()
	updateKP, err := microledger.GenerateKeyPair(microledger.AlgEdDSA)
	require.NoError(t, err)
	updateMultibase, err := updateKP.PublicKeyMultibase()
	require.NoError(t, err)

	draftID := "did:webplus:" + host + "%3A" + port + ":placeholder"
	root := &microledger.DIDDocument{
		ID:        draftID,
		VersionID: 0,
		ValidFrom: time.Now().UTC(),
		PublicKeyMaterial: microledger.PublicKeyMaterial{
			VerificationMethod: []microledger.VerificationMethod{
				{ID: draftID + "#update-key", Type: "Ed25519VerificationKey2020", Controller: draftID, PublicKeyMultibase: updateMultibase},
			},
		},
		UpdateRules: microledger.SingleKeyUpdateRule(draftID + "#update-key"),
	}
	builtRoot, err := microledger.BuildRoot(root, microledger.DefaultHashFunction)
	require.NoError(t, err)

	docs := []*microledger.DIDDocument{builtRoot}
	prev := builtRoot
	for i := 0; i < n; i++ {
		next := &microledger.DIDDocument{
			ValidFrom:         prev.ValidFrom.Add(time.Duration(i+1) * time.Second),
			PublicKeyMaterial: prev.PublicKeyMaterial,
			UpdateRules:       prev.UpdateRules,
		}
		built, err := microledger.BuildNonRoot(prev, next, microledger.DefaultHashFunction, updateKP, prev.ID+"#update-key")
		require.NoError(t, err)
		docs = append(docs, built)
		prev = built
	}
	return docs
}

func newBoltBackend(t *testing.T) storage.DIDBackend {
	t.Helper()
	backend, err := storage.CreateDIDBackend(&storage.DIDBackendConfig{
		Type:   "bolt",
		Params: storage.Parameters{"file": filepath.Join(t.TempDir(), "resolver.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

// TestFullResolverFetchesAndPersistsLatest pins down the common path: no
// local state, resolve the bare DID, and the resolver must fetch the root
// plus every intermediate version up to the tail and persist them all.
func TestFullResolverFetchesAndPersistsLatest(t *testing.T) {
	fixture := newVDRFixture(t, nil)
	host, port := fixture.hostPort(t)
	docs := buildChain(t, host, port, 3)
	fixture.docs = docs

	backend := newBoltBackend(t)
	r := NewFullResolver(backend, nil, 4)

	doc, _, err := r.ResolveDIDDocument(context.Background(), docs[0].ID, microledger.RequestedMetadata{})
	require.NoError(t, err)
	require.Equal(t, docs[len(docs)-1].SelfHash, doc.SelfHash)

	stored, err := backend.GetDIDLog(context.Background(), docs[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, len(docs))
}

// TestFullResolverResolvesByVersionIDFromLocalCache pins down that a
// selector resolvable from the already-persisted local ledger is served
// without refetching from the origin.
func TestFullResolverResolvesByVersionIDFromLocalCache(t *testing.T) {
	fixture := newVDRFixture(t, nil)
	host, port := fixture.hostPort(t)
	docs := buildChain(t, host, port, 2)
	fixture.docs = docs

	backend := newBoltBackend(t)
	r := NewFullResolver(backend, nil, 4)

	_, _, err := r.ResolveDIDDocument(context.Background(), docs[0].ID, microledger.RequestedMetadata{})
	require.NoError(t, err)

	versionID := uint64(1)
	d := docs[0].ID + "?versionId=" + strconv.FormatUint(versionID, 10)
	doc, _, err := r.ResolveDIDDocument(context.Background(), d, microledger.RequestedMetadata{})
	require.NoError(t, err)
	require.Equal(t, docs[1].SelfHash, doc.SelfHash)
}

// TestFullResolverRejectsFragmentInQuery pins down that a resolution query
// carrying a verification-method fragment is a client error.
func TestFullResolverRejectsFragmentInQuery(t *testing.T) {
	backend := newBoltBackend(t)
	r := NewFullResolver(backend, nil, 4)

	_, _, err := r.ResolveDIDDocument(context.Background(), "did:webplus:example.com:abc#update-key", microledger.RequestedMetadata{})
	require.Error(t, err)
}

// TestFullResolverRejectsNonWebPlusMethod pins down that a full resolver
// only ever talks to did:webplus identifiers.
func TestFullResolverRejectsNonWebPlusMethod(t *testing.T) {
	backend := newBoltBackend(t)
	r := NewFullResolver(backend, nil, 4)

	updateKP, err := microledger.GenerateKeyPair(microledger.AlgEdDSA)
	require.NoError(t, err)
	encoded, err := updateKP.PublicKeyMultibase()
	require.NoError(t, err)

	_, _, err = r.ResolveDIDDocument(context.Background(), "did:key:"+encoded, microledger.RequestedMetadata{})
	require.Error(t, err)
}
