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

// Package sqlstore is the SQL-backed alternative to boltstore, for
// deployments that already run a relational database for the VJSON store.
// It speaks database/sql directly rather than through an ORM — see
// DESIGN.md for why entgo.io/ent, the teacher's query layer, was not
// carried over.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/webplus-id/core/storage"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS vjson_values (
	self_hash TEXT PRIMARY KEY,
	added_at  INTEGER NOT NULL,
	vjson_jcs BLOB NOT NULL
);
`

func init() {
	storage.RegisterVJSONBackend("sqlite", newVJSONBackend)
}

type vjsonBackend struct {
	db *sql.DB
}

type dsnConfig struct {
	DSN string `json:"dsn"`
}

func newVJSONBackend(params storage.Parameters) (storage.VJSONBackend, error) {
	var cfg dsnConfig
	if err := params.As(&cfg); err != nil || cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite VJSON backend requires a 'dsn' parameter")
	}
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, err
	}
	return &vjsonBackend{db: db}, nil
}

func (b *vjsonBackend) Close() error { return b.db.Close() }

func (b *vjsonBackend) StoreValue(ctx context.Context, selfHash string, raw []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO vjson_values (self_hash, added_at, vjson_jcs) VALUES (?, strftime('%s','now'), ?)`,
		selfHash, raw)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrValueExists
		}
		return err
	}
	return nil
}

func (b *vjsonBackend) GetValue(ctx context.Context, selfHash string) ([]byte, error) {
	var raw []byte
	err := b.db.QueryRowContext(ctx, `SELECT vjson_jcs FROM vjson_values WHERE self_hash = ?`, selfHash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrValueNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (b *vjsonBackend) HasValue(ctx context.Context, selfHash string) (bool, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM vjson_values WHERE self_hash = ?`, selfHash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (b *vjsonBackend) ListValues(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT self_hash FROM vjson_values`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
