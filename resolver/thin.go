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
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/sdk/httpsecure"
	"github.com/webplus-id/core/werrors"
)

// gatewayResponse is the VDG's resolution envelope: the document plus the
// metadata fields the caller asked for and a cache-hit flag.
type gatewayResponse struct {
	Document  json.RawMessage      `json:"document"`
	Metadata  microledger.Metadata `json:"metadata"`
	CacheHit  bool                 `json:"cacheHit"`
}

// ThinResolver delegates full resolution (fetch, verify, cache) to a VDG
// and performs no cryptography of its own; trust is delegated entirely to
// the gateway named by client's connection URL.
type ThinResolver struct {
	client *httpsecure.Client

	// LastCacheHit records whether the most recent resolution was served
	// from the gateway's own cache, for callers that want to surface it.
	LastCacheHit bool
}

func NewThinResolver(client *httpsecure.Client) *ThinResolver {
	return &ThinResolver{client: client}
}

func (r *ThinResolver) ResolveDIDDocument(ctx context.Context, didQuery string, req microledger.RequestedMetadata) (*microledger.DIDDocument, microledger.Metadata, error) {
	q := url.Values{}
	q.Set("did", didQuery)
	if req.Created {
		q.Set("created", "true")
	}
	if req.NextUpdate {
		q.Set("nextUpdate", "true")
	}
	if req.NextVersionID {
		q.Set("nextVersionId", "true")
	}
	if req.MostRecentUpdate {
		q.Set("mostRecentUpdate", "true")
	}
	if req.MostRecentVersionID {
		q.Set("mostRecentVersionId", "true")
	}
	if req.Deactivated {
		q.Set("deactivated", "true")
	}

	var resp gatewayResponse
	err := r.client.LoadContents(ctx, http.MethodGet, "/resolve?"+q.Encode(), nil, &resp)
	if err != nil {
		return nil, microledger.Metadata{}, werrors.Wrap(werrors.NetworkError, "gateway resolution failed", err)
	}

	doc, err := microledger.ParseDIDDocument(resp.Document)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}

	r.LastCacheHit = resp.CacheHit

	return doc, resp.Metadata, nil
}
