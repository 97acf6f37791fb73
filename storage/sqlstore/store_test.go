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

package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webplus-id/core/storage"
)

func newVJSONBackend(t *testing.T) storage.VJSONBackend {
	t.Helper()
	backend, err := storage.CreateVJSONBackend(&storage.VJSONBackendConfig{
		Type:   "sqlite",
		Params: storage.Parameters{"dsn": filepath.Join(t.TempDir(), "vjson.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestVJSONBackendRequiresDSNParameter(t *testing.T) {
	_, err := storage.CreateVJSONBackend(&storage.VJSONBackendConfig{Type: "sqlite", Params: storage.Parameters{}})
	require.Error(t, err)
}

func TestVJSONBackendStoreGetHasList(t *testing.T) {
	b := newVJSONBackend(t)

	require.NoError(t, b.StoreValue(context.Background(), "hash1", []byte(`{"a":1}`)))

	has, err := b.HasValue(context.Background(), "hash1")
	require.NoError(t, err)
	require.True(t, has)

	has, err = b.HasValue(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, has)

	raw, err := b.GetValue(context.Background(), "hash1")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(raw))

	_, err = b.GetValue(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrValueNotFound)

	values, err := b.ListValues(context.Background())
	require.NoError(t, err)
	require.Contains(t, values, "hash1")
}

func TestVJSONBackendStoreValueRejectsDuplicateSelfHash(t *testing.T) {
	b := newVJSONBackend(t)

	require.NoError(t, b.StoreValue(context.Background(), "hash1", []byte(`{"a":1}`)))
	err := b.StoreValue(context.Background(), "hash1", []byte(`{"a":2}`))
	require.ErrorIs(t, err, storage.ErrValueExists)
}
