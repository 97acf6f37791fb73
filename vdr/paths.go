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

package vdr

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/webplus-id/core/diduri"
	"github.com/webplus-id/core/werrors"
)

type resourceKind int

const (
	resourceUnknown resourceKind = iota
	resourceLatest
	resourceChain
	resourceBySelfHash
	resourceByVersionID
)

// parseResourcePath recognizes one of the four read/write resource shapes
// a DID-document path can take and splits off the path-segments-plus-
// root-self-hash prefix that names the DID. The suffix component count is
// fixed per shape, so this is independent of how many path segments the
// DID itself carries.
func parseResourcePath(p string) (dirSegs []string, kind resourceKind, token string) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil, resourceUnknown, ""
	}
	segs := strings.Split(p, "/")
	n := len(segs)

	switch {
	case segs[n-1] == "did.json":
		return segs[:n-1], resourceLatest, ""
	case segs[n-1] == "did-documents.jsonl":
		return segs[:n-1], resourceChain, ""
	case n >= 3 && segs[n-3] == "did" && segs[n-2] == "selfHash" && strings.HasSuffix(segs[n-1], ".json"):
		return segs[:n-3], resourceBySelfHash, strings.TrimSuffix(segs[n-1], ".json")
	case n >= 3 && segs[n-3] == "did" && segs[n-2] == "versionId" && strings.HasSuffix(segs[n-1], ".json"):
		return segs[:n-3], resourceByVersionID, strings.TrimSuffix(segs[n-1], ".json")
	default:
		return nil, resourceUnknown, ""
	}
}

// didFor builds the canonical did:webplus string a request's Host header
// and resource-path prefix (path segments plus terminal root-self-hash)
// name. It performs no network lookups: the resulting string is used both
// as the storage key and as the value root.ID/doc.ID must match.
func didFor(hostHeader string, dirSegs []string) (string, error) {
	if len(dirSegs) == 0 || dirSegs[len(dirSegs)-1] == "" {
		return "", werrors.New(werrors.Malformed, "request path names no DID")
	}

	host, port := hostHeader, ""
	if h, p, err := net.SplitHostPort(hostHeader); err == nil {
		host, port = h, p
	}
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return "", werrors.New(werrors.Malformed, "malformed port in Host header")
		}
	}

	d := &diduri.DID{
		Method:       diduri.MethodWebPlus,
		Host:         host,
		Port:         port,
		PathSegments: dirSegs[:len(dirSegs)-1],
		RootSelfHash: dirSegs[len(dirSegs)-1],
	}
	return d.String(), nil
}

// updateNotificationPath is the gateway endpoint a VDR posts to after
// accepting a write, per the resolution-endpoints table. It is relative to
// the gateway client's own connection URL, the same way ThinResolver's
// "/resolve" is relative to a thin client's connection URL: a gateway is
// configured (and dialled) by a base URL that already carries any
// deployment-specific version prefix (e.g. ".../webplus/v1"), so the
// service itself only ever sees the path below that prefix.
func updateNotificationPath(did string) string {
	return "/update/" + url.PathEscape(did)
}
