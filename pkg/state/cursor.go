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

// Package state models the stateful part of an XMSS private key: the set of
// leaf indices a partition still owns. A cursor is a sorted list of disjoint
// half-open ranges bound to the identity of the key's stateless part. Indices
// are always consumed lowest first, and cursors are immutable values.
package state

import (
	"crypto/sha256"
	"fmt"
	"math"
	"slices"
	"strings"
)

const (
	// IdentitySize is the size of the stateless identity digest.
	IdentitySize = sha256.Size

	// MaxRanges bounds how fragmented a cursor may become through merges.
	MaxRanges = 16
)

// Identity is the SHA-256 digest of a key's stateless part. Every partition
// derived from one key carries the same identity.
type Identity [IdentitySize]byte

// IdentityOf computes the identity of a stateless blob.
func IdentityOf(stateless []byte) Identity {
	return sha256.Sum256(stateless)
}

// Range is the half-open interval [Start, End) of leaf indices.
type Range struct {
	Start uint32
	End   uint32
}

// Len returns the number of indices in the range.
func (r Range) Len() uint64 {
	return uint64(r.End - r.Start)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Cursor is the set of unused leaf indices owned by one partition.
type Cursor struct {
	identity Identity
	ranges   []Range
}

// New returns the cursor of a freshly generated key owning [0, leafCount).
func New(identity Identity, leafCount uint64) (*Cursor, error) {
	if leafCount == 0 || leafCount > math.MaxUint32 {
		return nil, fmt.Errorf("%w: leaf count %d", ErrInvalidRange, leafCount)
	}
	return &Cursor{
		identity: identity,
		ranges:   []Range{{Start: 0, End: uint32(leafCount)}},
	}, nil
}

// FromRanges builds a cursor from explicit ranges, validating that they are
// non-empty, sorted, disjoint and at most MaxRanges long.
func FromRanges(identity Identity, ranges []Range) (*Cursor, error) {
	if err := validateRanges(ranges); err != nil {
		return nil, err
	}
	return &Cursor{identity: identity, ranges: slices.Clone(ranges)}, nil
}

func validateRanges(ranges []Range) error {
	if len(ranges) > MaxRanges {
		return ErrTooFragmented
	}
	for i, r := range ranges {
		if r.End <= r.Start {
			return fmt.Errorf("%w: %s", ErrInvalidRange, r)
		}
		if i > 0 && r.Start <= ranges[i-1].End {
			// Adjacent ranges must be coalesced, so touching counts as invalid.
			return fmt.Errorf("%w: %s after %s", ErrInvalidRange, r, ranges[i-1])
		}
	}
	return nil
}

// Identity returns the stateless identity the cursor is bound to.
func (c *Cursor) Identity() Identity {
	return c.identity
}

// Ranges returns a copy of the owned ranges in ascending order.
func (c *Cursor) Ranges() []Range {
	return slices.Clone(c.ranges)
}

// Remaining returns the number of unused indices.
func (c *Cursor) Remaining() uint64 {
	var total uint64
	for _, r := range c.ranges {
		total += r.Len()
	}
	return total
}

// Next returns the lowest unused index.
func (c *Cursor) Next() (uint32, bool) {
	if len(c.ranges) == 0 {
		return 0, false
	}
	return c.ranges[0].Start, true
}

// Contains reports whether idx is owned and unused.
func (c *Cursor) Contains(idx uint32) bool {
	for _, r := range c.ranges {
		if idx >= r.Start && idx < r.End {
			return true
		}
	}
	return false
}

// Within reports whether every owned index is below leafCount.
func (c *Cursor) Within(leafCount uint64) bool {
	if len(c.ranges) == 0 {
		return true
	}
	return uint64(c.ranges[len(c.ranges)-1].End) <= leafCount
}

// Take splits off the lowest n indices. It returns the taken indices and the
// cursor that remains; c itself is unchanged.
func (c *Cursor) Take(n uint64) (taken, rest *Cursor, err error) {
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: count must be positive", ErrInvalidRange)
	}
	if n > c.Remaining() {
		return nil, nil, fmt.Errorf("%w: requested %d, remaining %d", ErrInsufficient, n, c.Remaining())
	}

	taken = &Cursor{identity: c.identity}
	rest = &Cursor{identity: c.identity}
	need := n
	for _, r := range c.ranges {
		switch {
		case need == 0:
			rest.ranges = append(rest.ranges, r)
		case r.Len() <= need:
			taken.ranges = append(taken.ranges, r)
			need -= r.Len()
		default:
			split := r.Start + uint32(need)
			taken.ranges = append(taken.ranges, Range{Start: r.Start, End: split})
			rest.ranges = append(rest.ranges, Range{Start: split, End: r.End})
			need = 0
		}
	}
	return taken, rest, nil
}

// Merge returns the union of c and other. The cursors must share an
// identity and must not overlap; adjacent ranges are coalesced.
func (c *Cursor) Merge(other *Cursor) (*Cursor, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: nil cursor", ErrInvalidRange)
	}
	if c.identity != other.identity {
		return nil, ErrIdentityMismatch
	}

	all := make([]Range, 0, len(c.ranges)+len(other.ranges))
	all = append(all, c.ranges...)
	all = append(all, other.ranges...)
	slices.SortFunc(all, func(a, b Range) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	merged := make([]Range, 0, len(all))
	for _, r := range all {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if r.Start < last.End {
				return nil, fmt.Errorf("%w: %s and %s", ErrOverlap, *last, r)
			}
			if r.Start == last.End {
				last.End = r.End
				continue
			}
		}
		merged = append(merged, r)
	}
	if len(merged) > MaxRanges {
		return nil, fmt.Errorf("%w: merge needs %d ranges", ErrTooFragmented, len(merged))
	}
	return &Cursor{identity: c.identity, ranges: merged}, nil
}

// Equal reports whether both cursors have the same identity and ranges.
func (c *Cursor) Equal(other *Cursor) bool {
	if other == nil {
		return false
	}
	return c.identity == other.identity && slices.Equal(c.ranges, other.ranges)
}

func (c *Cursor) String() string {
	parts := make([]string, len(c.ranges))
	for i, r := range c.ranges {
		parts[i] = r.String()
	}
	return fmt.Sprintf("cursor{remaining=%d ranges=%s}", c.Remaining(), strings.Join(parts, ","))
}
