// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-xmss.
//
// go-xmss is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

func openMemoryDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true}, "signer")
	require.NoError(t, err)
	return s
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.StateStore {
		return openMemoryDB(t)
	})
}

func TestStore_SharedDatabaseIsolatesKeys(t *testing.T) {
	db, err := OpenDB(Config{InMemory: true, Logger: logger.NewNoop()})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	a, err := New(db, "partition-a")
	require.NoError(t, err)
	b, err := New(db, "partition-b")
	require.NoError(t, err)

	require.NoError(t, a.Store(types.PrivateStateless, []byte("seed")))
	_, err = b.Load(types.PrivateStateless)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, b.Store(types.PrivateStateless, []byte("seed")))
	require.NoError(t, b.Purge())

	got, err := a.Load(types.PrivateStateless)
	require.NoError(t, err)
	assert.Equal(t, []byte("seed"), got)

	// Closing a borrowed store leaves the database open.
	require.NoError(t, a.Close())
	_, err = a.Load(types.PrivateStateless)
	assert.ErrorIs(t, err, storage.ErrClosed)
	require.NoError(t, b.Store(types.Public, []byte("pub")))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Dir: dir}, "signer")
	require.NoError(t, err)
	require.NoError(t, s.Store(types.PrivateStateful, []byte("aaaa")))
	require.NoError(t, s.StoreStatefulPart([]byte("aaaa"), []byte("bbbb")))
	require.NoError(t, s.Close())

	reopened, err := Open(Config{Dir: dir}, "signer")
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Load(types.PrivateStateful)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbb"), got)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "signer")
	assert.Error(t, err)

	db, err := OpenDB(Config{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = New(db, "")
	assert.ErrorIs(t, err, storage.ErrInvalidID)
	_, err = New(db, "a/b")
	assert.ErrorIs(t, err, storage.ErrInvalidID)

	_, err = OpenDB(Config{})
	assert.Error(t, err)
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := openMemoryDB(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Purge(), storage.ErrClosed)
}
