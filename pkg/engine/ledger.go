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

package engine

import (
	"fmt"

	"github.com/jeremyhahn/go-xmss/pkg/state"
)

// Ledger tracks the unreserved cursor of a loaded key together with the
// indices that have been reserved but not yet signed. Engines embed it so
// every implementation applies the same reservation rules.
type Ledger struct {
	cursor   *state.Cursor
	reserved []state.Range
}

// NewLedger decodes a stateful blob, checks that it belongs to identity and
// that every index is below leafCount.
func NewLedger(stateful []byte, identity state.Identity, leafCount uint64) (*Ledger, error) {
	cursor, err := decodeCursor(stateful, identity, leafCount)
	if err != nil {
		return nil, err
	}
	return &Ledger{cursor: cursor}, nil
}

func decodeCursor(stateful []byte, identity state.Identity, leafCount uint64) (*state.Cursor, error) {
	cursor, err := state.Unmarshal(stateful)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlob, err)
	}
	if cursor.Identity() != identity {
		return nil, ErrIdentityMismatch
	}
	if !cursor.Within(leafCount) {
		return nil, fmt.Errorf("%w: cursor exceeds %d leaves", ErrInvalidBlob, leafCount)
	}
	return cursor, nil
}

// Cursor returns the unreserved cursor.
func (l *Ledger) Cursor() *state.Cursor {
	return l.cursor
}

// Reserve moves the lowest count unreserved indices into the reserved set.
func (l *Ledger) Reserve(count uint32) ([]byte, error) {
	if count == 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrInvalidArgument)
	}
	if uint64(count) > l.cursor.Remaining() {
		return nil, fmt.Errorf("%w: requested %d, unreserved %d", ErrTooFewSignatures, count, l.cursor.Remaining())
	}

	taken, rest, err := l.cursor.Take(uint64(count))
	if err != nil {
		return nil, err
	}
	blob, err := rest.MarshalBinary()
	if err != nil {
		return nil, err
	}

	l.cursor = rest
	l.reserved = append(l.reserved, taken.Ranges()...)
	return blob, nil
}

// Reserved returns the number of reserved indices.
func (l *Ledger) Reserved() uint32 {
	var n uint64
	for _, r := range l.reserved {
		n += r.Len()
	}
	return uint32(n)
}

// Remaining returns reserved plus unreserved indices.
func (l *Ledger) Remaining() uint64 {
	return uint64(l.Reserved()) + l.cursor.Remaining()
}

// Pop removes and returns the lowest-ordered reserved index.
func (l *Ledger) Pop() (uint32, error) {
	if len(l.reserved) == 0 {
		return 0, ErrNoReservedSignatures
	}
	head := &l.reserved[0]
	idx := head.Start
	head.Start++
	if head.Start == head.End {
		l.reserved = l.reserved[1:]
	}
	return idx, nil
}

// Replace installs a new unreserved cursor. It must belong to the same key
// and must not hand out any reserved index again.
func (l *Ledger) Replace(stateful []byte, leafCount uint64) error {
	cursor, err := decodeCursor(stateful, l.cursor.Identity(), leafCount)
	if err != nil {
		return err
	}
	for _, r := range l.reserved {
		for _, c := range cursor.Ranges() {
			if r.Start < c.End && c.Start < r.End {
				return fmt.Errorf("%w: %s", ErrReservedOverlap, r)
			}
		}
	}
	l.cursor = cursor
	return nil
}
