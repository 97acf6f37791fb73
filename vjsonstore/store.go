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

// Package vjsonstore is the content-addressed VJSON repository: values are
// keyed by self-hash, validated (schema, self-hash, proofs,
// directDependencies closure) before being admitted, and the Default
// schema is always present so every other schema can declare it as a
// dependency.
package vjsonstore

import (
	"bytes"
	"context"

	"github.com/rs/zerolog/log"

	"github.com/webplus-id/core/microledger"
	"github.com/webplus-id/core/storage"
	"github.com/webplus-id/core/utils/fingerprint"
	"github.com/webplus-id/core/utils/jsonw"
	"github.com/webplus-id/core/vjson"
	"github.com/webplus-id/core/werrors"
)

// AlreadyExistsPolicy controls Add's behavior when a value with the same
// self-hash is already stored.
type AlreadyExistsPolicy int

const (
	// RejectIfExists fails Add with AlreadyExists.
	RejectIfExists AlreadyExistsPolicy = iota
	// SkipIfExists treats a re-add of an identical value as a no-op.
	SkipIfExists
)

// SchemaResolver fetches a schema by its self-hash URL, for values whose
// $schema names something other than the Default schema.
type SchemaResolver interface {
	ResolveSchema(ctx context.Context, schemaURL string) (*vjson.Schema, error)
}

// Store is the VJSON store: backend persistence plus the validation
// pipeline every admitted value passes through.
type Store struct {
	backend        storage.VJSONBackend
	keys           vjson.KeyResolver
	schemas        SchemaResolver
	defaultSchema  *vjson.Schema
	defaultRaw     []byte
}

// Open constructs a Store over backend, seeding it with the Default schema
// (selfURLTemplate names where this store, or its VDR/VDG front-end, serves
// self-hash URLs from — e.g. "https://example.com/schemas/default/%s.json").
func Open(ctx context.Context, backend storage.VJSONBackend, keys vjson.KeyResolver, schemas SchemaResolver, selfURLTemplate string) (*Store, error) {
	body, raw, err := vjson.BuildDefaultSchema(selfURLTemplate)
	if err != nil {
		return nil, err
	}
	selfHash, _ := body["selfHash"].(string)

	defaultSchema, err := vjson.ParseSchema(raw, selfURLTemplate)
	if err != nil {
		return nil, err
	}

	s := &Store{backend: backend, keys: keys, schemas: schemas, defaultSchema: defaultSchema, defaultRaw: raw}

	has, err := backend.HasValue(ctx, selfHash)
	if err != nil {
		return nil, err
	}
	if !has {
		if err := backend.StoreValue(ctx, selfHash, raw); err != nil && err != storage.ErrValueExists {
			return nil, err
		}
		log.Info().Str("selfHash", selfHash).Msg("seeded default VJSON schema")
	}

	return s, nil
}

// HasValue implements vjson.DependencyChecker.
func (s *Store) HasValue(selfHash string) (bool, error) {
	return s.backend.HasValue(context.Background(), selfHash)
}

// GetBySelfHash returns the raw JCS bytes of the stored value.
func (s *Store) GetBySelfHash(ctx context.Context, selfHash string) ([]byte, error) {
	return s.backend.GetValue(ctx, selfHash)
}

// schemaFor resolves the schema a value declares via its $schema field:
// the Default schema's own URL resolves to the Default schema without a
// round trip; anything else goes through schemas.
func (s *Store) schemaFor(ctx context.Context, value map[string]any) (*vjson.Schema, bool, error) {
	schemaURL, _ := value["$schema"].(string)
	if schemaURL == "" {
		return nil, false, werrors.New(werrors.Malformed, "value has no $schema")
	}
	if schemaURL == s.defaultSchema.SelfHashURL {
		return s.defaultSchema, true, nil
	}
	if s.schemas == nil {
		return nil, false, werrors.New(werrors.Unsupported, "no schema resolver configured for non-default schemas")
	}
	schema, err := s.schemas.ResolveSchema(ctx, schemaURL)
	return schema, false, err
}

// Add validates raw as a VJSON value (schema, self-hash, proofs,
// directDependencies closure, all of them resolved against this same
// store) and, if it passes, inserts it keyed by its self-hash.
func (s *Store) Add(ctx context.Context, raw []byte, policy AlreadyExistsPolicy) (string, error) {
	var value map[string]any
	if err := jsonw.Unmarshal(raw, &value); err != nil {
		return "", werrors.Wrap(werrors.Malformed, "invalid JSON", err)
	}

	schema, isSelfSchema, err := s.schemaFor(ctx, value)
	if err != nil {
		return "", err
	}

	if err := vjson.Validate(schema, value, isSelfSchema, s.keys, s); err != nil {
		return "", err
	}

	selfHash, _ := value["selfHash"].(string)
	if selfHash == "" {
		return "", werrors.New(werrors.Malformed, "value has no selfHash")
	}

	jcs, err := microledger.CanonicalJSON(value)
	if err != nil {
		return "", err
	}

	err = s.backend.StoreValue(ctx, selfHash, jcs)
	if err == storage.ErrValueExists && policy == SkipIfExists {
		return selfHash, nil
	}
	if err != nil {
		return "", err
	}

	if fp, ferr := fingerprint.GetFingerprint(bytes.NewReader(jcs), fingerprint.AlgoMultihash256); ferr == nil {
		log.Debug().Str("selfHash", selfHash).Hex("fingerprint", fp).Msg("stored VJSON value")
	}

	return selfHash, nil
}
