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

package vdg_test

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
	"github.com/webplus-id/core/storage"
	_ "github.com/webplus-id/core/storage/boltstore"
	. "github.com/webplus-id/core/vdg"
)

type vdrFixture struct {
	server *httptest.Server
	docs   []*microledger.DIDDocument
}

func newVDRFixture(t *testing.T) *vdrFixture {
	t.Helper()
	f := &vdrFixture{}
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
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	raw, err := doc.MarshalJCS()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write(raw)
}

func (f *vdrFixture) hostPort(t *testing.T) (string, string) {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	i := strings.LastIndexByte(u.Host, ':')
	return u.Host[:i], u.Host[i+1:]
}

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

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	backend, err := storage.CreateDIDBackend(&storage.DIDBackendConfig{
		Type:   "bolt",
		Params: storage.Parameters{"file": filepath.Join(t.TempDir(), "vdg.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewGateway(backend, nil, 4)
}

// TestGatewayResolveMissesThenHitsCache pins down the caching contract: the
// first resolution of a DID is never a cache hit, and a second resolution
// of the same latest-version query with nothing new at the origin is.
func TestGatewayResolveMissesThenHitsCache(t *testing.T) {
	fixture := newVDRFixture(t)
	host, port := fixture.hostPort(t)
	docs := buildChain(t, host, port, 1)
	fixture.docs = docs

	g := newTestGateway(t)

	_, _, cacheHit, err := g.Resolve(context.Background(), docs[0].ID, microledger.RequestedMetadata{})
	require.NoError(t, err)
	require.False(t, cacheHit)

	_, _, cacheHit, err = g.Resolve(context.Background(), docs[0].ID, microledger.RequestedMetadata{})
	require.NoError(t, err)
	require.True(t, cacheHit)
}

// TestGatewayResolveBySelfHashHitsCacheWhenAlreadyStored pins down that a
// selfHash selector is reported as a cache hit once that specific document
// has been cached by a prior resolution, even though it's a different
// query than the one that originally cached it.
func TestGatewayResolveBySelfHashHitsCacheWhenAlreadyStored(t *testing.T) {
	fixture := newVDRFixture(t)
	host, port := fixture.hostPort(t)
	docs := buildChain(t, host, port, 1)
	fixture.docs = docs

	g := newTestGateway(t)

	_, _, _, err := g.Resolve(context.Background(), docs[0].ID, microledger.RequestedMetadata{})
	require.NoError(t, err)

	q := docs[0].ID + "?selfHash=" + docs[0].SelfHash
	_, _, cacheHit, err := g.Resolve(context.Background(), q, microledger.RequestedMetadata{})
	require.NoError(t, err)
	require.True(t, cacheHit)
}

// TestGatewayChainForcesRefreshAndReturnsFullLog pins down that Chain
// always re-resolves the latest version before returning the log, so a
// caller sees any new version the origin has published.
func TestGatewayChainForcesRefreshAndReturnsFullLog(t *testing.T) {
	fixture := newVDRFixture(t)
	host, port := fixture.hostPort(t)
	docs := buildChain(t, host, port, 2)
	fixture.docs = docs

	g := newTestGateway(t)

	chain, err := g.Chain(context.Background(), docs[0].ID)
	require.NoError(t, err)
	require.Len(t, chain, len(docs))
}

// TestGatewayRefreshIsBestEffort pins down that Refresh never panics or
// blocks the caller even when resolution of a non-existent DID fails.
func TestGatewayRefreshIsBestEffort(t *testing.T) {
	g := newTestGateway(t)
	g.Refresh("did:webplus:example.com:does-not-exist")
}

func TestGatewayListCachedDIDs(t *testing.T) {
	fixture := newVDRFixture(t)
	host, port := fixture.hostPort(t)
	docs := buildChain(t, host, port, 0)
	fixture.docs = docs

	g := newTestGateway(t)
	_, _, _, err := g.Resolve(context.Background(), docs[0].ID, microledger.RequestedMetadata{})
	require.NoError(t, err)

	cached, err := g.ListCachedDIDs(context.Background())
	require.NoError(t, err)
	require.Contains(t, cached, docs[0].ID)
}
