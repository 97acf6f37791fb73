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

// Package storage defines the pluggable backends used by the VDR, VDG and
// VJSON store: append-only DID microledgers and content-addressed VJSON
// values.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/webplus-id/core/microledger"
)

var (
	ErrDIDExists     = errors.New("DID already exists")
	ErrDIDNotFound   = errors.New("DID not found")
	ErrVersionExists = errors.New("DID document version already exists")
	ErrVersionGap    = errors.New("DID document version is out of sequence")
	ErrValueExists   = errors.New("VJSON value already exists")
	ErrValueNotFound = errors.New("VJSON value not found")
)

type (
	// DIDBackend is the origin (VDR) or cache (VDG) store for per-DID
	// microledgers: an ordered, append-only list of DID document versions.
	DIDBackend interface {
		io.Closer

		// CreateDIDLog stores the root (versionId 0) document of a new
		// microledger. It returns ErrDIDExists if the DID is already known.
		CreateDIDLog(ctx context.Context, did string, root *microledger.DIDDocument) error

		// AppendDIDDocument appends a new version to an existing microledger.
		// It returns ErrVersionExists if the versionId already exists, and
		// ErrVersionGap if it does not immediately follow the current head.
		AppendDIDDocument(ctx context.Context, did string, doc *microledger.DIDDocument) error

		// GetDIDDocument returns the document at the given versionID
		// (0 is the root). It returns ErrDIDNotFound if no such version
		// exists. Callers that want the current tail use GetDIDLog.
		GetDIDDocument(ctx context.Context, did string, versionID uint64) (*microledger.DIDDocument, error)

		// GetDIDLog returns the full microledger, ordered by versionId, from
		// fromVersionID (inclusive, 0 means from the root) onward.
		GetDIDLog(ctx context.Context, did string, fromVersionID uint64) ([]*microledger.DIDDocument, error)

		// ListDIDs returns every DID known to this backend.
		ListDIDs(ctx context.Context) ([]string, error)
	}

	// VJSONBackend is the content-addressed store for VJSON values, keyed by
	// their self-hash.
	VJSONBackend interface {
		io.Closer

		StoreValue(ctx context.Context, selfHash string, raw []byte) error
		GetValue(ctx context.Context, selfHash string) ([]byte, error)
		HasValue(ctx context.Context, selfHash string) (bool, error)
		ListValues(ctx context.Context) ([]string, error)
	}
)
