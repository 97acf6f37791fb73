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

// Package resolver implements the three did:webplus resolution strategies
// sharing one contract: full (fetch, verify, cache locally), thin
// (delegate verification to a gateway), and raw (no verification, for
// bootstrap and tests).
package resolver

import (
	"context"
	"strconv"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/werrors"
)

// Resolver is the shared contract every strategy implements.
type Resolver interface {
	ResolveDIDDocument(ctx context.Context, didQuery string, req microledger.RequestedMetadata) (*microledger.DIDDocument, microledger.Metadata, error)
}

// query is a parsed did_query: the bare DID plus optional selectors. A
// fragment on a resolution query is always a client error — fragments name
// verification methods, not document versions.
type query struct {
	did       *diduri.DID
	bare      string
	selfHash  *string
	versionID *uint64
}

func parseQuery(didQuery string) (*query, error) {
	d, err := diduri.Parse(didQuery)
	if err != nil {
		return nil, err
	}
	if d.Fragment != "" {
		return nil, werrors.New(werrors.Malformed, "resolution query must not include a fragment")
	}
	if !d.IsWebPlus() {
		return nil, werrors.New(werrors.Unsupported, "resolver only handles did:webplus queries")
	}

	q := &query{did: d, bare: d.WithoutQuery().String()}
	if d.SelfHash != "" {
		q.selfHash = &d.SelfHash
	}
	if d.VersionID != "" {
		v, err := strconv.ParseUint(d.VersionID, 10, 64)
		if err != nil {
			return nil, werrors.Wrap(werrors.Malformed, "malformed versionId", err)
		}
		q.versionID = &v
	}
	return q, nil
}
