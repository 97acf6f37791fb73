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

// Package vdr implements the Verifiable Data Registry: the stateful,
// append-only origin service that owns the microledgers it hosts. It
// accepts new roots and successor versions, verifies them against the
// stored chain before committing, and serves the four read paths a
// resolver needs to reconstruct a microledger.
package vdr

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/sdk/httpsecure"
	"github.com/webplus-id/core/services/notification"
	"github.com/webplus-id/core/storage"
	"github.com/webplus-id/core/werrors"
)

// Registry is the VDR's core logic: chain validation at ingest plus the
// read paths, independent of the HTTP transport that exposes it.
type Registry struct {
	store storage.DIDBackend
	ns    notification.Service
	vdgs  []*httpsecure.Client
}

// NewRegistry wires a Registry over store. ns receives in-process
// "DID updated" notifications (e.g. for a VDG sharing this process in
// tests); vdgs are remote gateways notified out-of-band over HTTP after
// every accepted write.
func NewRegistry(store storage.DIDBackend, ns notification.Service, vdgs []*httpsecure.Client) *Registry {
	return &Registry{store: store, ns: ns, vdgs: vdgs}
}

func (r *Registry) Close() error { return r.store.Close() }

// CreateRoot accepts a new microledger's root document. did is the
// canonical DID string derived from the request URL (method, host, port,
// path segments and root-self-hash); it MUST equal root.ID, which is the
// check that the DID names this VDR's own host/port and the exact path
// the document was POSTed to.
func (r *Registry) CreateRoot(ctx context.Context, did string, root *microledger.DIDDocument) error {
	if root.ID != did {
		return werrors.New(werrors.FailedConstraint, "root document id does not match the request URL")
	}
	if _, err := microledger.Create(root); err != nil {
		return err
	}

	if err := r.store.CreateDIDLog(ctx, did, root); err != nil {
		if err == storage.ErrDIDExists {
			return werrors.New(werrors.AlreadyExists, "DID already has a root document")
		}
		return werrors.Wrap(werrors.StorageError, "failed to persist root document", err)
	}

	r.notify(ctx, did, root)
	return nil
}

// AppendVersion accepts the next version of an existing microledger,
// verifying it against the currently-stored tail before committing.
func (r *Registry) AppendVersion(ctx context.Context, did string, doc *microledger.DIDDocument) error {
	tail, err := r.tail(ctx, did)
	if err != nil {
		return err
	}

	if doc.ID != did {
		return werrors.New(werrors.FailedConstraint, "document id does not match the request URL")
	}
	if doc.VersionID != tail.VersionID+1 {
		if doc.VersionID <= tail.VersionID {
			return werrors.New(werrors.AlreadyExists, "versionId has already been committed")
		}
		return werrors.New(werrors.FailedConstraint, "versionId does not immediately follow the stored tail")
	}
	if err := microledger.VerifyNonrecursive(doc, tail); err != nil {
		return err
	}

	if err := r.store.AppendDIDDocument(ctx, did, doc); err != nil {
		switch err {
		case storage.ErrVersionExists:
			return werrors.New(werrors.AlreadyExists, "versionId has already been committed")
		case storage.ErrVersionGap:
			return werrors.New(werrors.FailedConstraint, "versionId does not immediately follow the stored tail")
		case storage.ErrDIDNotFound:
			return werrors.New(werrors.NotFound, "DID not found")
		default:
			return werrors.Wrap(werrors.StorageError, "failed to persist document", err)
		}
	}

	r.notify(ctx, did, doc)
	return nil
}

// Latest returns the current tail of did's microledger.
func (r *Registry) Latest(ctx context.Context, did string) (*microledger.DIDDocument, error) {
	return r.tail(ctx, did)
}

// ByVersionID returns the document at versionID.
func (r *Registry) ByVersionID(ctx context.Context, did string, versionID uint64) (*microledger.DIDDocument, error) {
	doc, err := r.store.GetDIDDocument(ctx, did, versionID)
	if err == storage.ErrDIDNotFound {
		return nil, werrors.New(werrors.NotFound, "no document at that versionId")
	}
	return doc, err
}

// BySelfHash returns the document whose selfHash equals hash.
func (r *Registry) BySelfHash(ctx context.Context, did, hash string) (*microledger.DIDDocument, error) {
	docs, err := r.Chain(ctx, did)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.SelfHash == hash {
			return d, nil
		}
	}
	return nil, werrors.New(werrors.NotFound, "no document with that selfHash")
}

// Chain returns the full, ordered document sequence for did.
func (r *Registry) Chain(ctx context.Context, did string) ([]*microledger.DIDDocument, error) {
	docs, err := r.store.GetDIDLog(ctx, did, 0)
	if err == storage.ErrDIDNotFound {
		return nil, werrors.New(werrors.NotFound, "DID not found")
	}
	return docs, err
}

func (r *Registry) tail(ctx context.Context, did string) (*microledger.DIDDocument, error) {
	docs, err := r.Chain(ctx, did)
	if err != nil {
		return nil, err
	}
	return docs[len(docs)-1], nil
}

// notify fans out an accepted write: locally, for any in-process
// subscriber (a VDG embedded in this process, or a test harness), and
// out-of-band to every configured remote VDG. The HTTP leg is
// best-effort — a VDG that is slow or unreachable never blocks or fails
// the write that triggered it.
func (r *Registry) notify(ctx context.Context, did string, doc *microledger.DIDDocument) {
	event := updateEvent{DID: did, VersionID: doc.VersionID, SelfHash: doc.SelfHash}

	if r.ns != nil {
		if err := r.ns.Publish(event, false, true, did); err != nil {
			log.Warn().Err(err).Str("did", did).Msg("failed to publish local DID update notification")
		}
	}

	for _, vdg := range r.vdgs {
		go func(vdg *httpsecure.Client) {
			res, err := vdg.SendRequest(context.Background(), "POST", updateNotificationPath(did),
				httpsecure.WithJSONBody(event), httpsecure.SkipAuthentication())
			if err != nil {
				log.Warn().Err(err).Str("did", did).Msg("failed to notify gateway of DID update")
				return
			}
			_ = res.Body.Close()
		}(vdg)
	}

	_ = ctx // notifications are fire-and-forget; ctx only bounds the triggering request
}

// updateEvent is the payload of a "DID was updated" notification, both the
// in-process pubsub message and the JSON body POSTed to remote gateways.
type updateEvent struct {
	DID       string `json:"did"`
	VersionID uint64 `json:"versionId"`
	SelfHash  string `json:"selfHash"`
}
