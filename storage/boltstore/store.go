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

// Package boltstore implements the DID and VJSON storage backends on top of
// an embedded bbolt database, adapted from utils.BoltClient's bucket-scoped
// get/put conventions.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/storage"
	"github.com/webplus-id/core/utils"
)

const (
	didIndexBucket  = "did_index"
	didDocsBucket   = "did_documents"
	vjsonBucket     = "vjson_values"
)

func init() {
	storage.RegisterDIDBackend("bolt", newDIDBackend)
	storage.RegisterVJSONBackend("bolt", newVJSONBackend)
}

type didBackend struct {
	bc *utils.BoltClient
}

type fileConfig struct {
	File string `json:"file"`
}

func newDIDBackend(params storage.Parameters) (storage.DIDBackend, error) {
	var cfg fileConfig
	if err := params.As(&cfg); err != nil || cfg.File == "" {
		return nil, fmt.Errorf("bolt DID backend requires a 'file' parameter")
	}
	bc, err := utils.NewBoltClient(cfg.File, func(bc *utils.BoltClient) error {
		return bc.DB.Update(func(tx *bbolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists([]byte(didIndexBucket)); err != nil {
				return err
			}
			_, err := tx.CreateBucketIfNotExists([]byte(didDocsBucket))
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &didBackend{bc: bc}, nil
}

func (b *didBackend) Close() error { return b.bc.Close() }

func docKey(did string, versionID uint64) []byte {
	key := make([]byte, len(did)+1+8)
	copy(key, did)
	key[len(did)] = 0
	binary.BigEndian.PutUint64(key[len(did)+1:], versionID)
	return key
}

func (b *didBackend) CreateDIDLog(_ context.Context, did string, root *microledger.DIDDocument) error {
	raw, err := root.MarshalJCS()
	if err != nil {
		return err
	}
	return b.bc.DB.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(didIndexBucket))
		if idx.Get([]byte(did)) != nil {
			return storage.ErrDIDExists
		}
		docs := tx.Bucket([]byte(didDocsBucket))
		if err := idx.Put([]byte(did), []byte{1}); err != nil {
			return err
		}
		return docs.Put(docKey(did, root.VersionID), raw)
	})
}

func (b *didBackend) AppendDIDDocument(_ context.Context, did string, doc *microledger.DIDDocument) error {
	raw, err := doc.MarshalJCS()
	if err != nil {
		return err
	}
	return b.bc.DB.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(didIndexBucket))
		if idx.Get([]byte(did)) == nil {
			return storage.ErrDIDNotFound
		}
		docs := tx.Bucket([]byte(didDocsBucket))
		key := docKey(did, doc.VersionID)
		if docs.Get(key) != nil {
			return storage.ErrVersionExists
		}
		if doc.VersionID > 0 && docs.Get(docKey(did, doc.VersionID-1)) == nil {
			return storage.ErrVersionGap
		}
		return docs.Put(key, raw)
	})
}

func (b *didBackend) GetDIDDocument(_ context.Context, did string, versionID uint64) (*microledger.DIDDocument, error) {
	raw, err := b.bc.FetchBytes(didDocsBucket, string(docKey(did, versionID)))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrDIDNotFound
	}
	return microledger.ParseDIDDocument(raw)
}

func (b *didBackend) GetDIDLog(_ context.Context, did string, fromVersionID uint64) ([]*microledger.DIDDocument, error) {
	var out []*microledger.DIDDocument
	err := b.bc.DB.View(func(tx *bbolt.Tx) error {
		docs := tx.Bucket([]byte(didDocsBucket))
		c := docs.Cursor()
		prefix := append([]byte(did), 0)
		for k, v := c.Seek(docKey(did, fromVersionID)); k != nil; k, v = c.Next() {
			if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
				break
			}
			doc, err := microledger.ParseDIDDocument(v)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.ErrDIDNotFound
	}
	return out, nil
}

func (b *didBackend) ListDIDs(_ context.Context) ([]string, error) {
	var out []string
	err := b.bc.DB.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(didIndexBucket))
		return idx.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

type vjsonBackend struct {
	bc *utils.BoltClient
}

func newVJSONBackend(params storage.Parameters) (storage.VJSONBackend, error) {
	var cfg fileConfig
	if err := params.As(&cfg); err != nil || cfg.File == "" {
		return nil, fmt.Errorf("bolt VJSON backend requires a 'file' parameter")
	}
	bc, err := utils.NewBoltClient(cfg.File, func(bc *utils.BoltClient) error {
		return bc.DB.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(vjsonBucket))
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return &vjsonBackend{bc: bc}, nil
}

func (b *vjsonBackend) Close() error { return b.bc.Close() }

func (b *vjsonBackend) StoreValue(_ context.Context, selfHash string, raw []byte) error {
	return b.bc.DB.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vjsonBucket))
		if bucket.Get([]byte(selfHash)) != nil {
			return storage.ErrValueExists
		}
		return bucket.Put([]byte(selfHash), raw)
	})
}

func (b *vjsonBackend) GetValue(_ context.Context, selfHash string) ([]byte, error) {
	raw, err := b.bc.FetchBytes(vjsonBucket, selfHash)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrValueNotFound
	}
	return raw, nil
}

func (b *vjsonBackend) HasValue(_ context.Context, selfHash string) (bool, error) {
	raw, err := b.bc.FetchBytes(vjsonBucket, selfHash)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (b *vjsonBackend) ListValues(_ context.Context) ([]string, error) {
	var out []string
	err := b.bc.DB.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(vjsonBucket))
		return bucket.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}
