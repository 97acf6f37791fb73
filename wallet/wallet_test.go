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

package wallet_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/model"
	. "github.com/webplus-id/core/wallet"
)

// fakeVDR accepts POST (create root) and PUT (append) of a did.json
// resource and serves it back under the did:webplus resolution paths a
// resolver.FullResolver expects, standing in for a real VDR server.
type fakeVDR struct {
	server *httptest.Server

	mu   sync.Mutex
	logs map[string][]*microledger.DIDDocument // keyed by bare DID
}

func newFakeVDR(t *testing.T) *fakeVDR {
	t.Helper()
	f := &fakeVDR{logs: make(map[string][]*microledger.DIDDocument)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeVDR) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/did.json"):
		f.ingest(w, r, true)
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/did.json"):
		f.ingest(w, r, false)
	case r.Method == http.MethodGet:
		f.serve(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeVDR) ingest(w http.ResponseWriter, r *http.Request, root bool) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	doc, err := microledger.ParseDIDDocument(raw)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	bare := doc.ID
	if root {
		if _, ok := f.logs[bare]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.logs[bare] = []*microledger.DIDDocument{doc}
	} else {
		f.logs[bare] = append(f.logs[bare], doc)
	}
	w.WriteHeader(http.StatusCreated)
}

// pathPrefixFor renders the path segments a did:webplus resolution URL for
// bare shares regardless of which resource (did.json, versionId/N.json,
// selfHash/H.json) is being requested.
func pathPrefixFor(bare string) (string, error) {
	d, err := diduri.Parse(bare)
	if err != nil {
		return "", err
	}
	segs := append(append([]string{}, d.PathSegments...), d.RootSelfHash)
	return "/" + strings.Join(segs, "/"), nil
}

func (f *fakeVDR) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for bare, log := range f.logs {
		prefix, err := pathPrefixFor(bare)
		if err != nil || !strings.HasPrefix(r.URL.Path, prefix) {
			continue
		}

		suffix := strings.TrimPrefix(r.URL.Path, prefix)
		var doc *microledger.DIDDocument
		switch {
		case suffix == "/did.json":
			doc = log[len(log)-1]
		case strings.HasPrefix(suffix, "/did/versionId/"):
			s := strings.TrimSuffix(strings.TrimPrefix(suffix, "/did/versionId/"), ".json")
			for _, d := range log {
				if d.VersionID == parseUintOrMax(s) {
					doc = d
					break
				}
			}
		case strings.HasPrefix(suffix, "/did/selfHash/"):
			s := strings.TrimSuffix(strings.TrimPrefix(suffix, "/did/selfHash/"), ".json")
			for _, d := range log {
				if d.SelfHash == s {
					doc = d
					break
				}
			}
		}

		if doc == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		raw, err := doc.MarshalJCS()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(raw)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func parseUintOrMax(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return ^uint64(0)
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}

func (f *fakeVDR) hostPort(t *testing.T) (string, string) {
	t.Helper()
	u, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	i := strings.LastIndexByte(u.Host, ':')
	return u.Host[:i], u.Host[i+1:]
}

func newTestWallet(t *testing.T, vdrURL string) *Wallet {
	t.Helper()
	masterKey := model.NewEncryptionKey()
	w, err := Open(t.TempDir(), vdrURL, masterKey, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

// TestCreateDIDPublishesAndRecordsKeys pins down that CreateDID publishes
// a self-hashed root document to the VDR and records both the update and
// authentication keys as controlled by the wallet.
func TestCreateDIDPublishesAndRecordsKeys(t *testing.T) {
	vdr := newFakeVDR(t)
	host, port := vdr.hostPort(t)

	w := newTestWallet(t, vdr.server.URL)

	did, err := w.CreateDID(context.Background(), host+"%3A"+port, []string{"users", "alice"}, microledger.AlgEdDSA)
	require.NoError(t, err)
	require.Contains(t, did, "did:webplus:")

	dids, err := w.GetControlledDIDs()
	require.NoError(t, err)
	require.Contains(t, dids, did)

	updateKeys, err := w.GetLocallyControlledVerificationMethod(did, PurposeUpdate)
	require.NoError(t, err)
	require.Len(t, updateKeys, 1)

	authKeys, err := w.GetLocallyControlledVerificationMethod(did, PurposeAuthentication)
	require.NoError(t, err)
	require.Len(t, authKeys, 1)
}

// TestSignJWSUsesAnAvailableAuthenticationKey pins down that SignJWS finds
// and uses a key matching the requested purpose, and bumps its usage count.
func TestSignJWSUsesAnAvailableAuthenticationKey(t *testing.T) {
	vdr := newFakeVDR(t)
	host, port := vdr.hostPort(t)

	w := newTestWallet(t, vdr.server.URL)

	did, err := w.CreateDID(context.Background(), host+"%3A"+port, []string{"users", "bob"}, microledger.AlgEdDSA)
	require.NoError(t, err)

	proof, err := w.SignJWS(did, PurposeAuthentication, []byte("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	keys, err := w.GetLocallyControlledVerificationMethod(did, PurposeAuthentication)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, uint64(1), keys[0].UsageCount)
}

// TestSignJWSFailsForUnknownPurpose pins down that SignJWS reports not
// found rather than silently falling back to an unrelated key when no key
// matches the requested purpose.
func TestSignJWSFailsForUnknownPurpose(t *testing.T) {
	vdr := newFakeVDR(t)
	host, port := vdr.hostPort(t)

	w := newTestWallet(t, vdr.server.URL)

	did, err := w.CreateDID(context.Background(), host+"%3A"+port, []string{"users", "carol"}, microledger.AlgEdDSA)
	require.NoError(t, err)

	_, err = w.SignJWS(did, PurposeKeyAgreement, []byte("hello"))
	require.Error(t, err)
}

// TestUpdateDIDAppendsNewVersion pins down the update path end to end: a
// mutated copy of the tail is built, signed by the recorded update key,
// published to the VDR, and replicated locally as the new tail.
func TestUpdateDIDAppendsNewVersion(t *testing.T) {
	vdr := newFakeVDR(t)
	host, port := vdr.hostPort(t)

	w := newTestWallet(t, vdr.server.URL)

	did, err := w.CreateDID(context.Background(), host+"%3A"+port, []string{"users", "dana"}, microledger.AlgEdDSA)
	require.NoError(t, err)

	err = w.UpdateDID(context.Background(), did, func(next *microledger.DIDDocument) {
		next.PublicKeyMaterial.KeyAgreement = append(next.PublicKeyMaterial.KeyAgreement, next.PublicKeyMaterial.Authentication[0])
	})
	require.NoError(t, err)

	vdr.mu.Lock()
	log := vdr.logs[did]
	vdr.mu.Unlock()
	require.Len(t, log, 2)
	require.Equal(t, uint64(1), log[1].VersionID)
}

func TestKeyRecordAvailableRespectsUsageCeiling(t *testing.T) {
	rec := &KeyRecord{UsageCeiling: 2}
	require.True(t, rec.Available())
	rec.UsageCount = 2
	require.False(t, rec.Available())
}

func TestKeyRecordHasPurpose(t *testing.T) {
	rec := &KeyRecord{Purposes: []string{PurposeAuthentication}}
	require.True(t, rec.HasPurpose(PurposeAuthentication))
	require.False(t, rec.HasPurpose(PurposeUpdate))
}
