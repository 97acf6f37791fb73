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

package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/storage"
	"github.com/webplus-id/core/utils/measure"
	"github.com/webplus-id/core/werrors"
)

// FullResolver fetches, verifies and locally persists DID documents from
// each DID's own origin (VDR). Unlike a thin resolver or a wallet's wallet
// client, it talks to as many distinct origins as there are distinct DIDs,
// so it owns a single general-purpose HTTP client rather than the
// single-origin sdk/httpsecure.Client used for wallet-to-VDR write calls.
type FullResolver struct {
	store    storage.DIDBackend
	http     *http.Client
	scheme   *diduri.SchemeOverride
	fetchCap int

	mu      sync.Mutex
	ledgers map[string]*microledger.Microledger
}

// NewFullResolver constructs a full resolver persisting into store, fetching
// from origins resolved through scheme (nil uses the default https/http
// split), with up to fetchCap concurrent back-fill fetches (ingest remains
// sequential regardless).
func NewFullResolver(store storage.DIDBackend, scheme *diduri.SchemeOverride, fetchCap int) *FullResolver {
	if fetchCap < 1 {
		fetchCap = 1
	}
	return &FullResolver{
		store:    store,
		http:     &http.Client{Timeout: 30 * time.Second},
		scheme:   scheme,
		fetchCap: fetchCap,
		ledgers:  make(map[string]*microledger.Microledger),
	}
}

func (r *FullResolver) fetchJCS(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, werrors.Wrap(werrors.InternalError, "failed to build request", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, werrors.Wrap(werrors.NetworkError, "failed to reach VDR", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, werrors.New(werrors.NotFound, "VDR has no document at "+url)
	default:
		return nil, werrors.New(werrors.NetworkError, fmt.Sprintf("VDR returned status %d for %s", resp.StatusCode, url))
	}
}

func (r *FullResolver) fetchDocument(ctx context.Context, url string) (*microledger.DIDDocument, error) {
	raw, err := r.fetchJCS(ctx, url)
	if err != nil {
		return nil, err
	}
	return microledger.ParseDIDDocument(raw)
}

// localLedger returns the in-memory ledger for bareDID, materializing it
// from the store's persisted log (empty/absent if never resolved before).
func (r *FullResolver) localLedger(ctx context.Context, bareDID string) (*microledger.Microledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.ledgers[bareDID]; ok {
		return m, nil
	}

	docs, err := r.store.GetDIDLog(ctx, bareDID, 0)
	if err != nil && err != storage.ErrDIDNotFound {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	m, err := microledger.Create(docs[0])
	if err != nil {
		return nil, err
	}
	for _, d := range docs[1:] {
		if err := m.Append(d); err != nil {
			return nil, err
		}
	}
	r.ledgers[bareDID] = m
	return m, nil
}

// ResolveDIDDocument implements the full-resolver procedure of §4.6: local
// lookup, target fetch, sequential back-fill of any missing predecessors,
// verify-and-persist, then a final selector recheck.
func (r *FullResolver) ResolveDIDDocument(ctx context.Context, didQuery string, req microledger.RequestedMetadata) (*microledger.DIDDocument, microledger.Metadata, error) {
	q, err := parseQuery(didQuery)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}

	local, err := r.localLedger(ctx, q.bare)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}

	if local != nil && (q.selfHash != nil || q.versionID != nil) {
		doc, md, err := local.Resolve(q.versionID, q.selfHash, req)
		if err == nil {
			return doc, md, nil
		}
		if !werrors.Is(err, werrors.NotFound) {
			return nil, microledger.Metadata{}, err
		}
		// fall through to fetch from origin
	}

	targetURL := r.targetURL(q)
	target, err := r.fetchDocument(ctx, targetURL)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}

	local, err = r.backfillAndAppend(ctx, q.bare, local, target)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}

	doc, md, err := local.Resolve(q.versionID, q.selfHash, req)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}
	return doc, md, nil
}

func (r *FullResolver) targetURL(q *query) string {
	switch {
	case q.selfHash != nil:
		return q.did.BySelfHashURL(r.scheme, *q.selfHash)
	case q.versionID != nil:
		return q.did.ByVersionIDURL(r.scheme, *q.versionID)
	default:
		return q.did.LatestDocumentURL(r.scheme)
	}
}

// backfillAndAppend fetches every predecessor missing between the local
// ledger's tail and target (concurrently, up to fetchCap), then appends
// them — and finally target — to the ledger in strict versionId order,
// persisting each successful append to the store in the same step.
func (r *FullResolver) backfillAndAppend(ctx context.Context, bareDID string, local *microledger.Microledger, target *microledger.DIDDocument) (*microledger.Microledger, error) {
	defer measure.ExecTime("resolver.backfillAndAppend")()

	r.mu.Lock()
	defer r.mu.Unlock()

	var fromVersion uint64
	if local == nil {
		root, err := r.fetchDocument(ctx, r.rootURLFor(target))
		if err != nil {
			return nil, err
		}
		local, err = microledger.Create(root)
		if err != nil {
			return nil, err
		}
		if err := r.store.CreateDIDLog(ctx, bareDID, root); err != nil && err != storage.ErrDIDExists {
			return nil, err
		}
		fromVersion = 1
	} else {
		fromVersion = local.Tail().VersionID + 1
	}

	if target.VersionID >= fromVersion {
		missing := make([]*microledger.DIDDocument, target.VersionID-fromVersion)
		if err := r.fetchConcurrently(ctx, target.ID, fromVersion, target.VersionID-1, missing); err != nil {
			return nil, err
		}
		for _, d := range missing {
			if err := r.appendAndPersist(ctx, bareDID, local, d); err != nil {
				return nil, err
			}
		}
		if target.VersionID >= fromVersion {
			if _, err := local.GetByVersionID(target.VersionID); err != nil {
				if err := r.appendAndPersist(ctx, bareDID, local, target); err != nil {
					return nil, err
				}
			}
		}
	}

	r.ledgers[bareDID] = local
	return local, nil
}

func (r *FullResolver) rootURLFor(target *microledger.DIDDocument) string {
	d, err := diduri.Parse(target.ID)
	if err != nil {
		return target.ID
	}
	return d.ByVersionIDURL(r.scheme, 0)
}

func (r *FullResolver) appendAndPersist(ctx context.Context, bareDID string, local *microledger.Microledger, d *microledger.DIDDocument) error {
	if err := local.Append(d); err != nil {
		return err
	}
	if err := r.store.AppendDIDDocument(ctx, bareDID, d); err != nil && err != storage.ErrVersionExists {
		return err
	}
	return nil
}

// fetchConcurrently retrieves versions [from, to] into out[i] = version
// from+i, bounded to fetchCap concurrent requests; ingest order is imposed
// by the caller afterward, not by completion order here.
func (r *FullResolver) fetchConcurrently(ctx context.Context, did string, from, to uint64, out []*microledger.DIDDocument) error {
	if to < from {
		return nil
	}
	d, err := diduri.Parse(did)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, r.fetchCap)
	var wg sync.WaitGroup
	errs := make([]error, len(out))

	for v := from; v <= to; v++ {
		idx := int(v - from)
		sem <- struct{}{}
		wg.Add(1)
		go func(versionID uint64, idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			doc, err := r.fetchDocument(ctx, d.ByVersionIDURL(r.scheme, versionID))
			if err != nil {
				errs[idx] = err
				return
			}
			out[idx] = doc
		}(v, idx)
	}
	wg.Wait()

	for i, e := range errs {
		if e != nil {
			return e
		}
		if out[i] == nil {
			return werrors.New(werrors.NetworkError, "back-fill fetch returned no document")
		}
	}
	return nil
}
