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

// Package diduri parses and renders did:webplus and did:key URIs, and
// derives the resolution URLs a full resolver fetches from a VDR.
package diduri

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/webplus-id/core/werrors"
)

const (
	MethodWebPlus = "webplus"
	MethodKey     = "key"
)

// DID is a parsed did:webplus or did:key URI.
type DID struct {
	Method       string
	Host         string
	Port         string // empty when absent
	PathSegments []string
	RootSelfHash string // root-self-hash for webplus; multibase pubkey for key

	SelfHash  string // query selfHash=, empty when absent
	VersionID string // query versionId=, empty when absent

	Fragment string
}

// Parse parses a did:webplus:... or did:key:... URI.
func Parse(raw string) (*DID, error) {
	if !strings.HasPrefix(raw, "did:") {
		return nil, werrors.New(werrors.Malformed, "not a DID URI: "+raw)
	}

	rest := raw[len("did:"):]

	var fragment string
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		fragment = rest[i+1:]
		rest = rest[:i]
	}

	var query string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		query = rest[i+1:]
		rest = rest[:i]
	}

	parts := strings.Split(rest, ":")
	if len(parts) < 2 {
		return nil, werrors.New(werrors.Malformed, "malformed DID: "+raw)
	}

	method := parts[0]

	d := &DID{Method: method, Fragment: fragment}

	switch method {
	case MethodKey:
		if len(parts) != 2 {
			return nil, werrors.New(werrors.Malformed, "did:key takes exactly one component: "+raw)
		}
		if query != "" {
			return nil, werrors.New(werrors.Malformed, "did:key does not accept query parameters: "+raw)
		}
		d.RootSelfHash = parts[1]
		return d, nil
	case MethodWebPlus:
		// parts[1] is host(+percent-encoded port); parts[2..len-2] are path
		// segments; parts[len-1] is the root self-hash.
		if len(parts) < 3 {
			return nil, werrors.New(werrors.Malformed, "did:webplus requires host and root-self-hash: "+raw)
		}

		hostComponent := parts[1]
		if i := strings.Index(hostComponent, "%3A"); i >= 0 {
			d.Host = hostComponent[:i]
			d.Port = hostComponent[i+len("%3A"):]
			if _, err := strconv.Atoi(d.Port); err != nil {
				return nil, werrors.New(werrors.Malformed, "malformed port in DID: "+raw)
			}
		} else {
			d.Host = hostComponent
		}
		if d.Host == "" {
			return nil, werrors.New(werrors.Malformed, "empty host in DID: "+raw)
		}

		d.PathSegments = parts[2 : len(parts)-1]
		d.RootSelfHash = parts[len(parts)-1]
		if d.RootSelfHash == "" {
			return nil, werrors.New(werrors.Malformed, "empty root-self-hash in DID: "+raw)
		}

		if query != "" {
			if err := d.parseQuery(query); err != nil {
				return nil, err
			}
		}

		return d, nil
	default:
		return nil, werrors.New(werrors.Unsupported, "unknown DID method: "+method)
	}
}

func (d *DID) parseQuery(query string) error {
	// The grammar requires selfHash, versionId, or both in that exact
	// order; no other parameters permitted.
	values, err := url.ParseQuery(query)
	if err != nil {
		return werrors.Wrap(werrors.Malformed, "malformed query string", err)
	}

	allowed := map[string]bool{"selfHash": true, "versionId": true}
	for k := range values {
		if !allowed[k] {
			return werrors.New(werrors.Malformed, "unexpected query parameter: "+k)
		}
	}

	pairs := strings.Split(query, "&")
	expectedOrder := []string{}
	if _, ok := values["selfHash"]; ok {
		expectedOrder = append(expectedOrder, "selfHash")
	}
	if _, ok := values["versionId"]; ok {
		expectedOrder = append(expectedOrder, "versionId")
	}
	if len(pairs) != len(expectedOrder) {
		return werrors.New(werrors.Malformed, "duplicate or malformed query parameters")
	}
	for i, p := range pairs {
		if !strings.HasPrefix(p, expectedOrder[i]+"=") {
			return werrors.New(werrors.Malformed, "query parameters out of order, expected selfHash before versionId")
		}
	}

	if v := values.Get("selfHash"); v != "" {
		d.SelfHash = v
	}
	if v := values.Get("versionId"); v != "" {
		if _, err := strconv.ParseUint(v, 10, 64); err != nil {
			return werrors.New(werrors.Malformed, "malformed versionId: "+v)
		}
		d.VersionID = v
	}

	return nil
}

// IsWebPlus reports whether d uses the did:webplus method.
func (d *DID) IsWebPlus() bool { return d.Method == MethodWebPlus }

// IsKey reports whether d uses the did:key method.
func (d *DID) IsKey() bool { return d.Method == MethodKey }

// WithoutQuery returns a copy of d with selfHash/versionId/fragment cleared —
// the bare DID that identifies the microledger as a whole.
func (d *DID) WithoutQuery() *DID {
	cpy := *d
	cpy.SelfHash = ""
	cpy.VersionID = ""
	cpy.Fragment = ""
	return &cpy
}

// String renders d back to its canonical URI form. Rendering is the exact
// inverse of Parse.
func (d *DID) String() string {
	var b strings.Builder
	b.WriteString("did:")
	b.WriteString(d.Method)

	switch d.Method {
	case MethodKey:
		b.WriteByte(':')
		b.WriteString(d.RootSelfHash)
	default:
		b.WriteByte(':')
		b.WriteString(d.Host)
		if d.Port != "" {
			b.WriteString("%3A")
			b.WriteString(d.Port)
		}
		for _, seg := range d.PathSegments {
			b.WriteByte(':')
			b.WriteString(seg)
		}
		b.WriteByte(':')
		b.WriteString(d.RootSelfHash)

		if d.SelfHash != "" || d.VersionID != "" {
			b.WriteByte('?')
			first := true
			if d.SelfHash != "" {
				b.WriteString("selfHash=")
				b.WriteString(d.SelfHash)
				first = false
			}
			if d.VersionID != "" {
				if !first {
					b.WriteByte('&')
				}
				b.WriteString("versionId=")
				b.WriteString(d.VersionID)
			}
		}
	}

	if d.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(d.Fragment)
	}

	return b.String()
}

// SchemeOverride resolves the HTTP scheme to use for a DID's host. The
// default is https, except for localhost (http); an explicit override table
// supersedes both, mirroring per-deployment host remapping used in local
// development and test networks.
type SchemeOverride struct {
	overrides map[string]string
}

func NewSchemeOverride() *SchemeOverride {
	return &SchemeOverride{overrides: make(map[string]string)}
}

func (s *SchemeOverride) Set(host, scheme string) {
	s.overrides[host] = scheme
}

func (s *SchemeOverride) SchemeFor(host string) string {
	if s != nil {
		if scheme, ok := s.overrides[host]; ok {
			return scheme
		}
	}
	if host == "localhost" || strings.HasPrefix(host, "127.") || strings.HasPrefix(host, "[::1]") {
		return "http"
	}
	return "https"
}

func (d *DID) hostPort() string {
	if d.Port != "" {
		return d.Host + ":" + d.Port
	}
	return d.Host
}

func (d *DID) pathPrefix() string {
	segs := append(append([]string{}, d.PathSegments...), d.RootSelfHash)
	return strings.Join(segs, "/")
}

func (d *DID) baseURL(override *SchemeOverride) string {
	return fmt.Sprintf("%s://%s/%s", override.SchemeFor(d.Host), d.hostPort(), d.pathPrefix())
}

// LatestDocumentURL returns the VDR URL serving the latest DID document.
func (d *DID) LatestDocumentURL(override *SchemeOverride) string {
	return d.baseURL(override) + "/did.json"
}

// BySelfHashURL returns the VDR URL serving the document with the given
// self-hash.
func (d *DID) BySelfHashURL(override *SchemeOverride, hash string) string {
	return d.baseURL(override) + "/did/selfHash/" + hash + ".json"
}

// ByVersionIDURL returns the VDR URL serving the document at versionID.
func (d *DID) ByVersionIDURL(override *SchemeOverride, versionID uint64) string {
	return fmt.Sprintf("%s/did/versionId/%d.json", d.baseURL(override), versionID)
}

// ChainURL returns the VDR URL serving the full JSONL chain.
func (d *DID) ChainURL(override *SchemeOverride) string {
	return d.baseURL(override) + "/did-documents.jsonl"
}

// MetadataURL mirrors one of the document-fetch URLs under /did/metadata/.
func (d *DID) MetadataURL(override *SchemeOverride, suffix string) string {
	return d.baseURL(override) + "/did/metadata/" + suffix
}

// SelfHashURLToken extracts the terminal self-hash token from a self-hash
// URL: the path component after the final '/', stripped of any extension.
func SelfHashURLToken(selfHashURL string) (string, error) {
	u, err := url.Parse(selfHashURL)
	if err != nil {
		return "", werrors.Wrap(werrors.Malformed, "malformed self-hash URL", err)
	}
	base := u.Path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		return "", werrors.New(werrors.Malformed, "self-hash URL has no terminal token: "+selfHashURL)
	}
	return base, nil
}

// ReplaceSelfHashURLToken replaces the terminal path token of a self-hash
// URL with a new hash, preserving scheme/host/extension.
func ReplaceSelfHashURLToken(selfHashURL, newHash string) (string, error) {
	u, err := url.Parse(selfHashURL)
	if err != nil {
		return "", werrors.Wrap(werrors.Malformed, "malformed self-hash URL", err)
	}
	dir, file := splitPath(u.Path)
	ext := ""
	if i := strings.LastIndexByte(file, '.'); i >= 0 {
		ext = file[i:]
	}
	u.Path = dir + newHash + ext
	return u.String(), nil
}

func splitPath(p string) (dir, file string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i+1], p[i+1:]
}
