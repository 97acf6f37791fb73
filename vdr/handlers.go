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
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/sdk/apibase"
	"github.com/webplus-id/core/werrors"
)

func failJSON(c *gin.Context, err error) {
	status := werrors.HTTPStatus(err)
	apibase.JSON(c, status, apibase.Response{Status: apibase.StatusError, Message: err.Error()})
}

func docHeaders(c *gin.Context, d *microledger.DIDDocument) {
	h := c.Writer.Header()
	h.Set("ETag", d.SelfHash)
	h.Set("Last-Modified", d.ValidFrom.UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", "public, max-age=0, no-cache, no-transform")
}

func writeDoc(c *gin.Context, d *microledger.DIDDocument) {
	raw, err := d.MarshalJCS()
	if err != nil {
		failJSON(c, err)
		return
	}
	docHeaders(c, d)
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// handleGet dispatches the three per-document read shapes and the JSONL
// chain fetch.
func (s *Server) handleGet(c *gin.Context) {
	dirSegs, kind, token := parseResourcePath(c.Param("path"))
	if kind == resourceUnknown {
		c.Status(http.StatusNotFound)
		return
	}
	did, err := didFor(c.Request.Host, dirSegs)
	if err != nil {
		failJSON(c, err)
		return
	}

	ctx := c.Request.Context()

	switch kind {
	case resourceLatest:
		d, err := s.registry.Latest(ctx, did)
		if err != nil {
			failJSON(c, err)
			return
		}
		writeDoc(c, d)

	case resourceBySelfHash:
		d, err := s.registry.BySelfHash(ctx, did, token)
		if err != nil {
			failJSON(c, err)
			return
		}
		writeDoc(c, d)

	case resourceByVersionID:
		versionID, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			failJSON(c, werrors.Wrap(werrors.Malformed, "malformed versionId", err))
			return
		}
		d, err := s.registry.ByVersionID(ctx, did, versionID)
		if err != nil {
			failJSON(c, err)
			return
		}
		writeDoc(c, d)

	case resourceChain:
		docs, err := s.registry.Chain(ctx, did)
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
}

// handleCreateRoot serves POST .../did.json: create a new microledger.
func (s *Server) handleCreateRoot(c *gin.Context) {
	dirSegs, kind, _ := parseResourcePath(c.Param("path"))
	if kind != resourceLatest {
		c.Status(http.StatusNotFound)
		return
	}
	did, err := didFor(c.Request.Host, dirSegs)
	if err != nil {
		failJSON(c, err)
		return
	}

	root, err := decodeBody(c)
	if err != nil {
		failJSON(c, err)
		return
	}

	if err := s.registry.CreateRoot(c.Request.Context(), did, root); err != nil {
		failJSON(c, err)
		return
	}
	writeDoc(c, root)
}

// handleAppend serves PUT .../did.json: append the next version.
func (s *Server) handleAppend(c *gin.Context) {
	dirSegs, kind, _ := parseResourcePath(c.Param("path"))
	if kind != resourceLatest {
		c.Status(http.StatusNotFound)
		return
	}
	did, err := didFor(c.Request.Host, dirSegs)
	if err != nil {
		failJSON(c, err)
		return
	}

	doc, err := decodeBody(c)
	if err != nil {
		failJSON(c, err)
		return
	}

	if err := s.registry.AppendVersion(c.Request.Context(), did, doc); err != nil {
		failJSON(c, err)
		return
	}
	writeDoc(c, doc)
}

func decodeBody(c *gin.Context) (*microledger.DIDDocument, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, werrors.Wrap(werrors.Malformed, "failed to read request body", err)
	}
	return microledger.ParseDIDDocument(raw)
}
