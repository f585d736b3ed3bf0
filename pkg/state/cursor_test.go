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

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = IdentityOf([]byte("stateless"))

func mustNew(t *testing.T, leaves uint64) *Cursor {
	t.Helper()
	c, err := New(testIdentity, leaves)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c := mustNew(t, 1024)
	assert.Equal(t, uint64(1024), c.Remaining())
	assert.Equal(t, []Range{{0, 1024}}, c.Ranges())
	next, ok := c.Next()
	assert.True(t, ok)
	assert.Equal(t, uint32(0), next)
	assert.Equal(t, testIdentity, c.Identity())

	_, err := New(testIdentity, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = New(testIdentity, 1<<32)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestTake(t *testing.T) {
	c := mustNew(t, 1024)

	taken, rest, err := c.Take(100)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 100}}, taken.Ranges())
	assert.Equal(t, []Range{{100, 1024}}, rest.Ranges())
	assert.Equal(t, c.Remaining(), taken.Remaining()+rest.Remaining())

	// c is unchanged
	assert.Equal(t, uint64(1024), c.Remaining())
}

func TestTake_All(t *testing.T) {
	c := mustNew(t, 16)
	taken, rest, err := c.Take(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), taken.Remaining())
	assert.Equal(t, uint64(0), rest.Remaining())
	_, ok := rest.Next()
	assert.False(t, ok)
}

func TestTake_SpansRanges(t *testing.T) {
	c, err := FromRanges(testIdentity, []Range{{1, 5}, {10, 20}, {30, 40}})
	require.NoError(t, err)

	taken, rest, err := c.Take(8)
	require.NoError(t, err)
	assert.Equal(t, []Range{{1, 5}, {10, 14}}, taken.Ranges())
	assert.Equal(t, []Range{{14, 20}, {30, 40}}, rest.Ranges())
}

func TestTake_Errors(t *testing.T) {
	c := mustNew(t, 16)
	_, _, err := c.Take(0)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, _, err = c.Take(17)
	assert.ErrorIs(t, err, ErrInsufficient)
}

func TestMerge_RoundTrip(t *testing.T) {
	c := mustNew(t, 1024)
	taken, rest, err := c.Take(100)
	require.NoError(t, err)

	merged, err := rest.Merge(taken)
	require.NoError(t, err)
	assert.True(t, merged.Equal(c))
}

func TestMerge_WithGap(t *testing.T) {
	// Source consumed index 100, partition consumed index 0.
	source, err := FromRanges(testIdentity, []Range{{101, 1024}})
	require.NoError(t, err)
	partition, err := FromRanges(testIdentity, []Range{{1, 100}})
	require.NoError(t, err)

	merged, err := source.Merge(partition)
	require.NoError(t, err)
	assert.Equal(t, uint64(1022), merged.Remaining())
	assert.Equal(t, []Range{{1, 100}, {101, 1024}}, merged.Ranges())
	assert.False(t, merged.Contains(0))
	assert.False(t, merged.Contains(100))
	assert.True(t, merged.Contains(99))
}

func TestMerge_Overlap(t *testing.T) {
	a, err := FromRanges(testIdentity, []Range{{0, 50}})
	require.NoError(t, err)
	b, err := FromRanges(testIdentity, []Range{{49, 60}})
	require.NoError(t, err)

	_, err = a.Merge(b)
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = a.Merge(a)
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestMerge_IdentityMismatch(t *testing.T) {
	a := mustNew(t, 16)
	b, err := New(IdentityOf([]byte("other")), 16)
	require.NoError(t, err)

	_, err = a.Merge(b)
	assert.ErrorIs(t, err, ErrIdentityMismatch)

	_, err = a.Merge(nil)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestMerge_TooFragmented(t *testing.T) {
	var even, odd []Range
	for i := uint32(0); i < MaxRanges; i++ {
		even = append(even, Range{Start: i * 4, End: i*4 + 1})
		odd = append(odd, Range{Start: i*4 + 2, End: i*4 + 3})
	}
	a, err := FromRanges(testIdentity, even)
	require.NoError(t, err)
	b, err := FromRanges(testIdentity, odd)
	require.NoError(t, err)

	_, err = a.Merge(b)
	assert.ErrorIs(t, err, ErrTooFragmented)
}

func TestFromRanges_Validation(t *testing.T) {
	tests := map[string][]Range{
		"empty range": {{5, 5}},
		"reversed":    {{6, 5}},
		"unsorted":    {{10, 20}, {0, 5}},
		"adjacent":    {{0, 5}, {5, 10}},
		"overlapping": {{0, 6}, {5, 10}},
	}
	for name, ranges := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromRanges(testIdentity, ranges)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}

	tooMany := make([]Range, MaxRanges+1)
	for i := range tooMany {
		tooMany[i] = Range{Start: uint32(i * 2), End: uint32(i*2 + 1)}
	}
	_, err := FromRanges(testIdentity, tooMany)
	assert.ErrorIs(t, err, ErrTooFragmented)
}

func TestWithin(t *testing.T) {
	c := mustNew(t, 1024)
	assert.True(t, c.Within(1024))
	assert.False(t, c.Within(1023))

	_, rest, err := c.Take(1024)
	require.NoError(t, err)
	assert.True(t, rest.Within(1))
}

func TestString(t *testing.T) {
	c, err := FromRanges(testIdentity, []Range{{1, 100}, {101, 1024}})
	require.NoError(t, err)
	assert.Equal(t, "cursor{remaining=1022 ranges=[1,100),[101,1024)}", c.String())
}
