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

package xmss

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginemocks "github.com/jeremyhahn/go-xmss/pkg/engine/mocks"
	"github.com/jeremyhahn/go-xmss/pkg/state"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	storagemocks "github.com/jeremyhahn/go-xmss/pkg/storage/mocks"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// importPartition loads the key held by store into a new handle.
func importPartition(t *testing.T, store storage.StateStore) *Key {
	t.Helper()
	key := New(WithEngine(enginemocks.NewMockEngine()), WithName(t.Name()+"/partition"))
	require.NoError(t, key.ImportPrivateKey(store))
	t.Cleanup(func() { _ = key.Close() })
	return key
}

func assertEmpty(t *testing.T, store *storagemocks.MockStateStore) {
	t.Helper()
	for _, part := range types.KeyParts {
		_, err := store.Backing().Load(part)
		assert.ErrorIs(t, err, storage.ErrNotFound, part.String())
	}
}

func TestSplitPrivateKey_Conservation(t *testing.T) {
	for _, count := range []uint32{1, 100, 512, 1023, 1024} {
		key, _, _ := testKey(t)
		before := key.SignaturesRemaining()
		dest := storagemocks.NewMockStateStore()

		require.NoError(t, key.SplitPrivateKey(dest, count), "count %d", count)
		partition := importPartition(t, dest)

		assert.Equal(t, uint64(count), partition.SignaturesRemaining())
		assert.Equal(t, before, key.SignaturesRemaining()+partition.SignaturesRemaining())
		assert.Equal(t, StatePublicKeyReady, partition.State())
	}
}

func TestSplitPrivateKey_DisjointRanges(t *testing.T) {
	key, _, store := testKey(t)
	_, err := key.Sign([]byte("before split"))
	require.NoError(t, err)

	dest := storagemocks.NewMockStateStore()
	require.NoError(t, key.SplitPrivateKey(dest, 100))

	assert.Equal(t, []state.Range{{Start: 1, End: 101}}, persistedCursor(t, dest).Ranges())
	assert.Equal(t, []state.Range{{Start: 101, End: 1024}}, persistedCursor(t, store).Ranges())

	stateless, err := store.Backing().Load(types.PrivateStateless)
	require.NoError(t, err)
	copied, err := dest.Backing().Load(types.PrivateStateless)
	require.NoError(t, err)
	assert.Equal(t, stateless, copied)

	assert.Equal(t, []string{
		"Load(xmss_private_stateless)",
		"Load(xmss_private_stateful)",
		"Purge",
		"Store(xmss_private_stateless)",
		"Store(xmss_public)",
		"Store(xmss_private_stateful)",
	}, dest.Calls)
}

func TestSplitPrivateKey_WithoutPublicPart(t *testing.T) {
	key, _, _ := testKey(t, true)
	dest := storagemocks.NewMockStateStore()
	require.NoError(t, key.SplitPrivateKey(dest, 10))

	_, err := dest.Backing().Load(types.Public)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	partition := importPartition(t, dest)
	assert.Equal(t, StatePrivateKeyLoaded, partition.State())
}

func TestSplitPrivateKey_Validation(t *testing.T) {
	key, _, store := testKey(t)

	t.Run("NilDestination", func(t *testing.T) {
		assert.ErrorIs(t, key.SplitPrivateKey(nil, 1), ErrValidation)
	})
	t.Run("SameStore", func(t *testing.T) {
		assert.ErrorIs(t, key.SplitPrivateKey(store, 1), ErrValidation)
	})
	t.Run("ZeroCount", func(t *testing.T) {
		assert.ErrorIs(t, key.SplitPrivateKey(storagemocks.NewMockStateStore(), 0), ErrValidation)
	})
	t.Run("NoKey", func(t *testing.T) {
		err := New().SplitPrivateKey(storagemocks.NewMockStateStore(), 1)
		assert.ErrorIs(t, err, ErrNoPrivateKey)
	})
	assert.Zero(t, store.Mutations())
}

func TestSplitPrivateKey_ReservedIndicesNotSplittable(t *testing.T) {
	key, _, store := testKey(t)
	require.NoError(t, key.RequestFutureSignatures(10))
	store.Reset()

	dest := storagemocks.NewMockStateStore()
	err := key.SplitPrivateKey(dest, 1015)
	var cerr *CapacityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, uint64(1014), cerr.Remaining)
	assert.Zero(t, store.Mutations())
	assert.Zero(t, dest.Mutations())

	require.NoError(t, key.SplitPrivateKey(dest, 1014))
	assert.Equal(t, uint64(10), key.SignaturesRemaining())
	for i := 0; i < 10; i++ {
		_, err := key.Sign([]byte("reserved"))
		require.NoError(t, err)
	}
	_, err = key.Sign([]byte("empty"))
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestSplitPrivateKey_DestinationOccupied(t *testing.T) {
	key, _, store := testKey(t)
	_, _, occupied := testKey(t)

	err := key.SplitPrivateKey(occupied, 10)
	assert.ErrorIs(t, err, ErrDestinationOccupied)
	assert.Zero(t, occupied.Mutations())
	assert.Zero(t, store.Mutations())
	assert.Equal(t, uint64(1024), key.SignaturesRemaining())
}

func TestSplitPrivateKey_Ephemeral(t *testing.T) {
	key := New(WithEngine(enginemocks.NewMockEngine()))
	require.NoError(t, key.GeneratePrivateKey(nil, types.XMSS_SHA2_10_256, true))
	dest := storagemocks.NewMockStateStore()

	err := key.SplitPrivateKey(dest, 10)
	assert.ErrorIs(t, err, ErrEphemeralUnsupported)
	assert.ErrorIs(t, err, ErrValidation)

	err = key.MergePartition(dest)
	assert.ErrorIs(t, err, ErrEphemeralUnsupported)

	assert.Empty(t, dest.Calls)
	assert.Equal(t, uint64(1024), key.SignaturesRemaining())
}

func TestSplitPrivateKey_FaultInjection(t *testing.T) {
	tests := []struct {
		name        string
		inject      func(source, dest *storagemocks.MockStateStore)
		invalidated bool
	}{
		{
			name:   "DestinationPurge",
			inject: func(_, dest *storagemocks.MockStateStore) { dest.FailOn(storagemocks.OpPurge, 1, errBoom) },
		},
		{
			name:   "DestinationStateless",
			inject: func(_, dest *storagemocks.MockStateStore) { dest.FailOn(storagemocks.OpStore, 1, errBoom) },
		},
		{
			name:   "DestinationPublic",
			inject: func(_, dest *storagemocks.MockStateStore) { dest.FailOn(storagemocks.OpStore, 2, errBoom) },
		},
		{
			name: "SourceCompareAndSwap",
			inject: func(source, _ *storagemocks.MockStateStore) {
				source.FailOn(storagemocks.OpStoreStatefulPart, 1, errBoom)
			},
			invalidated: true,
		},
		{
			name:   "DestinationStateful",
			inject: func(_, dest *storagemocks.MockStateStore) { dest.FailOn(storagemocks.OpStore, 3, errBoom) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, _, source := testKey(t)
			before := persistedCursor(t, source)
			dest := storagemocks.NewMockStateStore()
			tt.inject(source, dest)

			err := key.SplitPrivateKey(dest, 100)
			require.Error(t, err)
			assert.ErrorIs(t, err, errBoom)
			assert.ErrorIs(t, err, ErrPersistence)
			assert.NotErrorIs(t, err, ErrAggregateFailure)

			assertEmpty(t, dest)
			assert.True(t, before.Equal(persistedCursor(t, source)), "source cursor must be restored")

			if tt.invalidated {
				assert.Equal(t, StateInvalidated, key.State())
				require.NoError(t, key.ImportPrivateKey(source))
			} else {
				assert.Equal(t, StatePublicKeyReady, key.State())
			}
			assert.Equal(t, uint64(1024), key.SignaturesRemaining())

			dest.ClearFailures()
			require.NoError(t, key.SplitPrivateKey(dest, 100))
			assert.Equal(t, uint64(924), key.SignaturesRemaining())
			assert.Equal(t, uint64(100), importPartition(t, dest).SignaturesRemaining())
		})
	}
}

func TestSplitPrivateKey_RollbackFailure(t *testing.T) {
	key, _, source := testKey(t)
	dest := storagemocks.NewMockStateStore()
	rollbackErr := errors.New("destination unreachable")

	source.FailOn(storagemocks.OpStoreStatefulPart, 1, errBoom)
	dest.FailOn(storagemocks.OpPurge, 2, rollbackErr)

	err := key.SplitPrivateKey(dest, 100)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, "split", agg.Op)
	assert.ErrorIs(t, agg.Err, errBoom)
	assert.ErrorIs(t, agg.RollbackErr, rollbackErr)
	assert.ErrorIs(t, err, ErrAggregateFailure)
	assert.Equal(t, StateInvalidated, key.State())

	_, err = dest.Backing().Load(types.PrivateStateful)
	assert.ErrorIs(t, err, storage.ErrNotFound, "destination never received a cursor")
}

func TestSplitPrivateKey_RestoreFailure(t *testing.T) {
	key, _, source := testKey(t)
	dest := storagemocks.NewMockStateStore()
	restoreErr := errors.New("source unreachable")

	dest.FailOn(storagemocks.OpStore, 3, errBoom)
	source.FailOn(storagemocks.OpStoreStatefulPart, 2, restoreErr)

	err := key.SplitPrivateKey(dest, 100)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.ErrorIs(t, agg.Err, errBoom)
	assert.ErrorIs(t, agg.RollbackErr, restoreErr)
	assert.Equal(t, StateInvalidated, key.State())

	assertEmpty(t, dest)
	assert.Equal(t, []state.Range{{Start: 100, End: 1024}}, persistedCursor(t, source).Ranges())
}

func TestMergePartition_RoundTrip(t *testing.T) {
	key, _, _ := testKey(t)
	before := key.SignaturesRemaining()
	dest := storagemocks.NewMockStateStore()

	require.NoError(t, key.SplitPrivateKey(dest, 300))
	require.NoError(t, key.MergePartition(dest))

	assert.Equal(t, before, key.SignaturesRemaining())
	assertEmpty(t, dest)
	assert.Equal(t, StatePublicKeyReady, key.State())
}

func TestMergePartition_KeepsReservedIndices(t *testing.T) {
	key, eng, store := testKey(t)
	dest := storagemocks.NewMockStateStore()
	require.NoError(t, key.SplitPrivateKey(dest, 100))
	require.NoError(t, key.RequestFutureSignatures(5))

	require.NoError(t, key.MergePartition(dest))
	assert.Equal(t, uint64(1024), key.SignaturesRemaining())
	assert.Equal(t, []state.Range{{Start: 0, End: 100}, {Start: 105, End: 1024}}, persistedCursor(t, store).Ranges())

	_, err := key.Sign([]byte("reserved first"))
	require.NoError(t, err)
	assert.Equal(t, []uint32{100}, eng.Signed())
}

func TestMergePartition_IdentityMismatch(t *testing.T) {
	key, _, store := testKey(t)
	_, _, unrelated := testKey(t)

	err := key.MergePartition(unrelated)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, unrelated.Mutations())
	assert.Zero(t, store.Mutations())
}

func TestMergePartition_Validation(t *testing.T) {
	key, _, store := testKey(t)
	assert.ErrorIs(t, key.MergePartition(nil), ErrValidation)
	assert.ErrorIs(t, key.MergePartition(store), ErrValidation)

	err := key.MergePartition(storagemocks.NewMockStateStore())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMergePartition_Overlap(t *testing.T) {
	key, _, _ := testKey(t)
	dest := storagemocks.NewMockStateStore()
	require.NoError(t, key.SplitPrivateKey(dest, 50))

	// A copy of the partition taken before the merge.
	duplicate := storagemocks.NewMockStateStore()
	for _, part := range types.KeyParts {
		data, err := dest.Backing().Load(part)
		require.NoError(t, err)
		require.NoError(t, duplicate.Backing().Store(part, data))
	}

	require.NoError(t, key.MergePartition(dest))
	remaining := key.SignaturesRemaining()

	err := key.MergePartition(duplicate)
	assert.ErrorIs(t, err, ErrConsistency)
	assert.ErrorIs(t, err, state.ErrOverlap)
	assert.Equal(t, remaining, key.SignaturesRemaining())
	assert.Zero(t, duplicate.CallCount(storagemocks.OpPurge))
}

func TestMergePartition_CommitFailure(t *testing.T) {
	key, _, store := testKey(t)
	dest := storagemocks.NewMockStateStore()
	require.NoError(t, key.SplitPrivateKey(dest, 50))
	dest.Reset()

	store.FailOn(storagemocks.OpStoreStatefulPart, 1, errBoom)
	err := key.MergePartition(dest)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, StateInvalidated, key.State())
	assert.Zero(t, dest.Mutations())

	require.NoError(t, key.ImportPrivateKey(store))
	assert.Equal(t, uint64(974), key.SignaturesRemaining())
}

func TestMergePartition_DonorPurgeFailure(t *testing.T) {
	key, _, store := testKey(t)
	dest := storagemocks.NewMockStateStore()
	require.NoError(t, key.SplitPrivateKey(dest, 50))
	dest.FailOn(storagemocks.OpPurge, 1, errBoom)

	err := key.MergePartition(dest)
	var derr *DonorPurgeError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, ErrDonorNotPurged)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrAggregateFailure)
	assert.Equal(t, StateInvalidated, key.State())

	require.NoError(t, key.ImportPrivateKey(store))
	assert.Equal(t, uint64(1024), key.SignaturesRemaining())
	_, err = dest.Backing().Load(types.PrivateStateful)
	assert.NoError(t, err, "donor still holds its cursor")
}
