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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/engine/rfc8391"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/storage/file"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// TestPartitionScenario runs the split, sign and merge cycle of an h=10 key
// on the reference engine with file backed stores.
func TestPartitionScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a full XMSS tree")
	}
	root := t.TempDir()
	sourceStore, err := file.New(root, "source")
	require.NoError(t, err)
	partitionStore, err := file.New(root, "partition-b")
	require.NoError(t, err)

	source := New(WithEngine(rfc8391.New()), WithName("source"), WithPartitions(2), WithLogger(logger.NewNoop()))
	defer source.Close()
	require.NoError(t, source.GeneratePrivateKey(sourceStore, types.XMSS_SHA2_10_256, false))
	require.NoError(t, source.CalculatePublicKey(context.Background(), nil))
	publicKey, err := source.PublicKey()
	require.NoError(t, err)

	require.NoError(t, source.SplitPrivateKey(partitionStore, 100))
	assert.Equal(t, uint64(924), source.SignaturesRemaining())

	partition := New(WithEngine(rfc8391.New()), WithName("partition-b"))
	defer partition.Close()
	require.NoError(t, partition.ImportPrivateKey(partitionStore))
	assert.Equal(t, uint64(100), partition.SignaturesRemaining())
	assert.True(t, partition.HasPublicKey(), "public part travels with the partition")

	msgA := []byte("signed by the source")
	sigA, err := source.Sign(msgA)
	require.NoError(t, err)
	assert.Equal(t, uint64(923), source.SignaturesRemaining())

	msgB := []byte("signed by partition b")
	sigB, err := partition.Sign(msgB)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), partition.SignaturesRemaining())

	for _, tc := range []struct{ msg, sig []byte }{{msgA, sigA}, {msgB, sigB}} {
		ok, err := Verify(nil, publicKey, tc.msg, tc.sig)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.NotEqual(t, sigA[:4], sigB[:4], "partitions sign with distinct indices")

	require.NoError(t, partition.Close())
	require.NoError(t, source.MergePartition(partitionStore))
	assert.Equal(t, uint64(1022), source.SignaturesRemaining())

	for _, part := range types.KeyParts {
		_, err := partitionStore.Load(part)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	}

	reloaded := New(WithEngine(rfc8391.New()))
	defer reloaded.Close()
	require.NoError(t, reloaded.ImportPrivateKey(sourceStore))
	assert.Equal(t, uint64(1022), reloaded.SignaturesRemaining())
	sig, err := reloaded.Sign([]byte("after merge"))
	require.NoError(t, err)
	ok, err := reloaded.Verify([]byte("after merge"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}
