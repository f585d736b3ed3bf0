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

package storage_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.StateStore {
		return storage.NewMemoryStore()
	})
}

func TestNew(t *testing.T) {
	s := storage.New()
	require.NotNil(t, s)
	defer func() { _ = s.Close() }()

	_, err := s.Load(types.Public)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_Exists(t *testing.T) {
	s := storage.NewMemoryStore()
	defer func() { _ = s.Close() }()

	assert.False(t, s.Exists(types.PrivateStateless))
	require.NoError(t, s.Store(types.PrivateStateless, []byte("seed")))
	assert.True(t, s.Exists(types.PrivateStateless))
}

func TestMemoryStore_StoreCopiesInput(t *testing.T) {
	s := storage.NewMemoryStore()
	defer func() { _ = s.Close() }()

	data := []byte("seed")
	require.NoError(t, s.Store(types.PrivateStateless, data))
	data[0] = 'X'

	got, err := s.Load(types.PrivateStateless)
	require.NoError(t, err)
	assert.Equal(t, []byte("seed"), got)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := storage.NewMemoryStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Store(types.Public, []byte("x")), storage.ErrClosed)
	assert.ErrorIs(t, s.StoreStatefulPart([]byte("a"), []byte("b")), storage.ErrClosed)
	assert.ErrorIs(t, s.DeletePublicPart(), storage.ErrClosed)
	assert.ErrorIs(t, s.Purge(), storage.ErrClosed)
	_, err := s.Load(types.Public)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestCheckSwap(t *testing.T) {
	a := bytes.Repeat([]byte{1}, 8)
	b := bytes.Repeat([]byte{2}, 8)

	assert.NoError(t, storage.CheckSwap(a, a, b))
	assert.ErrorIs(t, storage.CheckSwap(a, b, a), storage.ErrContentMismatch)
	assert.ErrorIs(t, storage.CheckSwap(a, a, b[:4]), storage.ErrSizeMismatch)
	assert.ErrorIs(t, storage.CheckSwap(a[:4], a, b), storage.ErrSizeMismatch)
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3}
	storage.Zeroize(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

func TestIsContractError(t *testing.T) {
	assert.True(t, storage.IsContractError(storage.ErrNotFound))
	assert.True(t, storage.IsContractError(storage.ErrContentMismatch))
	assert.False(t, storage.IsContractError(assert.AnError))
	assert.False(t, storage.IsContractError(nil))
}
