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

// Package vdg implements the Verifiable Data Gateway: a caching, verifying
// front end that resolves did:webplus documents on behalf of thin clients,
// fetching and validating from each DID's own VDR the same way a full
// resolver would, and serving subsequent requests from its local cache
// until a VDR notifies it of a new version.
package vdg

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/resolver"
	"github.com/webplus-id/core/storage"
	"github.com/webplus-id/core/werrors"
)

// Gateway is the VDG's core logic: a FullResolver plus cache-hit reporting
// and a post-notification refresh path, independent of the HTTP transport
// that exposes it.
type Gateway struct {
	store    storage.DIDBackend
	resolver *resolver.FullResolver
}

// NewGateway wires a Gateway storing into and serving from store, fetching
// from origins through scheme with up to fetchCap concurrent back-fills.
func NewGateway(store storage.DIDBackend, scheme *diduri.SchemeOverride, fetchCap int) *Gateway {
	return &Gateway{
		store:    store,
		resolver: resolver.NewFullResolver(store, scheme, fetchCap),
	}
}

func (g *Gateway) Close() error { return g.store.Close() }

// ListCachedDIDs returns every DID this gateway has ever resolved, for the
// periodic revalidation sweep.
func (g *Gateway) ListCachedDIDs(ctx context.Context) ([]string, error) {
	return g.store.ListDIDs(ctx)
}

// Resolve answers didQuery the way a full resolver would, additionally
// reporting whether it could be answered entirely from documents already
// cached before this call started.
func (g *Gateway) Resolve(ctx context.Context, didQuery string, req microledger.RequestedMetadata) (*microledger.DIDDocument, microledger.Metadata, bool, error) {
	bare, q, err := splitQuery(didQuery)
	if err != nil {
		return nil, microledger.Metadata{}, false, err
	}

	before, err := g.store.GetDIDLog(ctx, bare, 0)
	if err != nil && err != storage.ErrDIDNotFound {
		return nil, microledger.Metadata{}, false, err
	}

	doc, md, err := g.resolver.ResolveDIDDocument(ctx, didQuery, req)
	if err != nil {
		return nil, microledger.Metadata{}, false, err
	}

	return doc, md, answeredFromCache(before, q, doc), nil
}

// Chain forces did's cache up to date with a latest-version resolution,
// then returns its full ordered document log — the gateway's JSONL
// passthrough reads this.
func (g *Gateway) Chain(ctx context.Context, did string) ([]*microledger.DIDDocument, error) {
	if _, _, _, err := g.Resolve(ctx, did, microledger.RequestedMetadata{}); err != nil {
		return nil, err
	}
	docs, err := g.store.GetDIDLog(ctx, did, 0)
	if err == storage.ErrDIDNotFound {
		return nil, werrors.New(werrors.NotFound, "DID not found")
	}
	return docs, err
}

// Refresh re-resolves did's latest version in the background. It is called
// when a VDR notifies this gateway of an accepted write, so the cache picks
// up the new version before the next reader asks for it rather than
// waiting for that reader's own revalidating fetch.
func (g *Gateway) Refresh(did string) {
	if _, _, _, err := g.Resolve(context.Background(), did, microledger.RequestedMetadata{}); err != nil {
		log.Warn().Err(err).Str("did", did).Msg("background cache refresh after update notification failed")
	}
}

type parsedQuery struct {
	selfHash  string
	versionID *uint64
}

func splitQuery(didQuery string) (string, parsedQuery, error) {
	d, err := diduri.Parse(didQuery)
	if err != nil {
		return "", parsedQuery{}, err
	}
	if d.Fragment != "" {
		return "", parsedQuery{}, werrors.New(werrors.Malformed, "resolution query must not include a fragment")
	}
	if !d.IsWebPlus() {
		return "", parsedQuery{}, werrors.New(werrors.Unsupported, "gateway only resolves did:webplus queries")
	}

	var q parsedQuery
	q.selfHash = d.SelfHash
	if d.VersionID != "" {
		v, err := strconv.ParseUint(d.VersionID, 10, 64)
		if err != nil {
			return "", parsedQuery{}, werrors.Wrap(werrors.Malformed, "malformed versionId", err)
		}
		q.versionID = &v
	}

	return d.WithoutQuery().String(), q, nil
}

// answeredFromCache reports whether before (the documents cached prior to
// resolution) already contained the document the query resolved to: an
// explicit selfHash/versionId query is a hit if that exact document was
// already present; a latest query is a hit if resolution did not extend
// the chain beyond what was already cached (i.e. the VDR had nothing new).
func answeredFromCache(before []*microledger.DIDDocument, q parsedQuery, resolved *microledger.DIDDocument) bool {
	if len(before) == 0 {
		return false
	}
	switch {
	case q.selfHash != "":
		for _, d := range before {
			if d.SelfHash == q.selfHash {
				return true
			}
		}
		return false
	case q.versionID != nil:
		for _, d := range before {
			if d.VersionID == *q.versionID {
				return true
			}
		}
		return false
	default:
		return before[len(before)-1].SelfHash == resolved.SelfHash
	}
}
