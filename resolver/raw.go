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
	"io"
	"net/http"
	"time"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/werrors"
)

// RawResolver passes a query straight through to the document's own origin
// with no verification of any kind: no self-hash check, no proof check, no
// chain check. It exists only for bootstrapping a new VDR/VDG deployment
// and for tests that need a document without paying for cryptography.
type RawResolver struct {
	http   *http.Client
	scheme *diduri.SchemeOverride
}

func NewRawResolver(scheme *diduri.SchemeOverride) *RawResolver {
	return &RawResolver{http: &http.Client{Timeout: 30 * time.Second}, scheme: scheme}
}

func (r *RawResolver) ResolveDIDDocument(ctx context.Context, didQuery string, req microledger.RequestedMetadata) (*microledger.DIDDocument, microledger.Metadata, error) {
	q, err := parseQuery(didQuery)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}

	var target string
	switch {
	case q.selfHash != nil:
		target = q.did.BySelfHashURL(r.scheme, *q.selfHash)
	case q.versionID != nil:
		target = q.did.ByVersionIDURL(r.scheme, *q.versionID)
	default:
		target = q.did.LatestDocumentURL(r.scheme)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, microledger.Metadata{}, werrors.Wrap(werrors.InternalError, "failed to build request", err)
	}
	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, microledger.Metadata{}, werrors.Wrap(werrors.NetworkError, "failed to reach origin", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, microledger.Metadata{}, werrors.New(werrors.NotFound, "no document at "+target)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, microledger.Metadata{}, werrors.New(werrors.NetworkError, "origin returned an error response")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, microledger.Metadata{}, werrors.Wrap(werrors.NetworkError, "failed to read response", err)
	}

	doc, err := microledger.ParseDIDDocument(raw)
	if err != nil {
		return nil, microledger.Metadata{}, err
	}
	return doc, microledger.Metadata{}, nil
}
