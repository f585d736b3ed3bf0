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

// Package storagetest provides a conformance suite that every
// storage.StateStore implementation runs from its own tests.
package storagetest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Factory returns a fresh, empty store. The suite closes it when done.
type Factory func(t *testing.T) storage.StateStore

var (
	stateless = bytes.Repeat([]byte{0xA5}, 100)
	stateful1 = bytes.Repeat([]byte{0x01}, 48)
	stateful2 = bytes.Repeat([]byte{0x02}, 48)
	public    = bytes.Repeat([]byte{0x5A}, 68)
)

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	open := func(t *testing.T) storage.StateStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("LoadEmpty", func(t *testing.T) {
		s := open(t)
		for _, part := range types.KeyParts {
			_, err := s.Load(part)
			assert.ErrorIs(t, err, storage.ErrNotFound, part.String())
		}
	})

	t.Run("StoreAndLoad", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateless, stateless))
		require.NoError(t, s.Store(types.PrivateStateful, stateful1))
		require.NoError(t, s.Store(types.Public, public))

		got, err := s.Load(types.PrivateStateless)
		require.NoError(t, err)
		assert.Equal(t, stateless, got)

		got, err = s.Load(types.PrivateStateful)
		require.NoError(t, err)
		assert.Equal(t, stateful1, got)

		got, err = s.Load(types.Public)
		require.NoError(t, err)
		assert.Equal(t, public, got)
	})

	t.Run("LoadReturnsCopy", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateless, stateless))

		got, err := s.Load(types.PrivateStateless)
		require.NoError(t, err)
		got[0] ^= 0xFF

		again, err := s.Load(types.PrivateStateless)
		require.NoError(t, err)
		assert.Equal(t, stateless, again)
	})

	t.Run("StoreIsCreateOnce", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateless, stateless))
		err := s.Store(types.PrivateStateless, []byte("other"))
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		got, err := s.Load(types.PrivateStateless)
		require.NoError(t, err)
		assert.Equal(t, stateless, got)
	})

	t.Run("StoreInvalidPart", func(t *testing.T) {
		s := open(t)
		assert.ErrorIs(t, s.Store(types.KeyPart(9), stateless), storage.ErrInvalidPart)
		_, err := s.Load(types.KeyPart(-1))
		assert.ErrorIs(t, err, storage.ErrInvalidPart)
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateful, stateful1))
		require.NoError(t, s.StoreStatefulPart(stateful1, stateful2))

		got, err := s.Load(types.PrivateStateful)
		require.NoError(t, err)
		assert.Equal(t, stateful2, got)
	})

	t.Run("CompareAndSwapContentMismatch", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateful, stateful1))

		err := s.StoreStatefulPart(stateful2, stateful1)
		assert.ErrorIs(t, err, storage.ErrContentMismatch)

		got, err := s.Load(types.PrivateStateful)
		require.NoError(t, err)
		assert.Equal(t, stateful1, got)
	})

	t.Run("CompareAndSwapSizeMismatch", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateful, stateful1))

		err := s.StoreStatefulPart(stateful1, stateful2[:10])
		assert.ErrorIs(t, err, storage.ErrSizeMismatch)

		err = s.StoreStatefulPart(stateful1[:10], stateful2[:10])
		assert.ErrorIs(t, err, storage.ErrSizeMismatch)

		got, err := s.Load(types.PrivateStateful)
		require.NoError(t, err)
		assert.Equal(t, stateful1, got)
	})

	t.Run("CompareAndSwapMissing", func(t *testing.T) {
		s := open(t)
		err := s.StoreStatefulPart(stateful1, stateful2)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeletePublicPartIdempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.DeletePublicPart())

		require.NoError(t, s.Store(types.Public, public))
		require.NoError(t, s.Store(types.PrivateStateless, stateless))
		require.NoError(t, s.DeletePublicPart())
		require.NoError(t, s.DeletePublicPart())

		_, err := s.Load(types.Public)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.Load(types.PrivateStateless)
		assert.NoError(t, err)

		require.NoError(t, s.Store(types.Public, public))
	})

	t.Run("PurgeIdempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Purge())

		require.NoError(t, s.Store(types.PrivateStateless, stateless))
		require.NoError(t, s.Store(types.PrivateStateful, stateful1))
		require.NoError(t, s.Store(types.Public, public))
		require.NoError(t, s.Purge())
		require.NoError(t, s.Purge())

		for _, part := range types.KeyParts {
			_, err := s.Load(part)
			assert.ErrorIs(t, err, storage.ErrNotFound, part.String())
		}
	})

	t.Run("StoreAfterPurge", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Store(types.PrivateStateless, stateless))
		require.NoError(t, s.Store(types.PrivateStateful, stateful1))
		require.NoError(t, s.Purge())

		require.NoError(t, s.Store(types.PrivateStateless, stateless))
		require.NoError(t, s.Store(types.PrivateStateful, stateful2))
		got, err := s.Load(types.PrivateStateful)
		require.NoError(t, err)
		assert.Equal(t, stateful2, got)
	})
}
