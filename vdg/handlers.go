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

package vdg

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/sdk/apibase"
	"github.com/webplus-id/core/werrors"
)

// resolutionResponse is the gateway's resolution envelope. Its JSON shape
// must stay byte-for-byte compatible with resolver.ThinResolver's decode
// target: document, metadata, cacheHit.
type resolutionResponse struct {
	Document json.RawMessage      `json:"document"`
	Metadata microledger.Metadata `json:"metadata"`
	CacheHit bool                 `json:"cacheHit"`
}

func failJSON(c *gin.Context, err error) {
	status := werrors.HTTPStatus(err)
	apibase.JSON(c, status, apibase.Response{Status: apibase.StatusError, Message: err.Error()})
}

// handleResolve serves GET /resolve?did=...&created=...&...: the thin
// resolution endpoint. Its query parameters mirror exactly what
// resolver.ThinResolver sends.
func (s *Server) handleResolve(c *gin.Context) {
	didQuery := c.Query("did")
	if didQuery == "" {
		failJSON(c, werrors.New(werrors.Malformed, "missing did query parameter"))
		return
	}

	req := microledger.RequestedMetadata{
		Created:             c.Query("created") == "true",
		NextUpdate:          c.Query("nextUpdate") == "true",
		NextVersionID:       c.Query("nextVersionId") == "true",
		MostRecentUpdate:    c.Query("mostRecentUpdate") == "true",
		MostRecentVersionID: c.Query("mostRecentVersionId") == "true",
		Deactivated:         c.Query("deactivated") == "true",
	}

	doc, md, cacheHit, err := s.gateway.Resolve(c.Request.Context(), didQuery, req)
	if err != nil {
		failJSON(c, err)
		return
	}

	raw, err := doc.MarshalJCS()
	if err != nil {
		failJSON(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("ETag", doc.SelfHash)
	h.Set("Last-Modified", doc.ValidFrom.UTC().Format(http.TimeFormat))
	if queryNamesVersion(didQuery) {
		h.Set("Cache-Control", "public, max-age=31536000, immutable")
	} else {
		h.Set("Cache-Control", "public, max-age=0, no-cache, no-transform")
	}
	if cacheHit {
		h.Set("X-VDG-Cache-Hit", "true")
	} else {
		h.Set("X-VDG-Cache-Hit", "false")
	}

	apibase.JSON(c, http.StatusOK, resolutionResponse{
		Document: json.RawMessage(raw),
		Metadata: md,
		CacheHit: cacheHit,
	})
}

// queryNamesVersion reports whether a did_query string pins a specific
// version, either by selfHash or versionId, so the response can be cached
// as immutable rather than revalidated on every request.
func queryNamesVersion(didQuery string) bool {
	return strings.Contains(didQuery, "?")
}

// handleFetch serves GET /fetch/:did/did-documents.jsonl: a passthrough of
// the gateway's own cached chain, refreshed against the origin VDR first.
func (s *Server) handleFetch(c *gin.Context) {
	did, err := url.PathUnescape(c.Param("did"))
	if err != nil {
		failJSON(c, werrors.Wrap(werrors.Malformed, "malformed did path segment", err))
		return
	}

	docs, err := s.gateway.Chain(c.Request.Context(), did)
	if err != nil {
		failJSON(c, err)
		return
	}

	var buf bytes.Buffer
	for _, d := range docs {
		raw, err := d.MarshalJCS()
		if err != nil {
			failJSON(c, err)
			return
		}
		buf.Write(raw)
		buf.WriteByte('\n')
	}

	c.Writer.Header().Set("Cache-Control", "public, max-age=0, no-cache, no-transform")
	http.ServeContent(c.Writer, c.Request, "did-documents.jsonl", time.Time{}, bytes.NewReader(buf.Bytes()))
}

// handleUpdate serves POST /update/:did: a VDR's notification that it
// accepted a new version for did. The refresh runs in the background; the
// VDR that sent this is not waiting on the outcome.
func (s *Server) handleUpdate(c *gin.Context) {
	did, err := url.PathUnescape(c.Param("did"))
	if err != nil {
		failJSON(c, werrors.Wrap(werrors.Malformed, "malformed did path segment", err))
		return
	}
	go s.gateway.Refresh(did)
	c.Status(http.StatusOK)
}
