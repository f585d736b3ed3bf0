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

import "errors"

var (
	// ErrCorrupt is returned when a stateful blob fails its integrity checks.
	// It indicates storage corruption or tampering and must never be retried.
	ErrCorrupt = errors.New("state: stateful blob is corrupt")

	// ErrIdentityMismatch is returned when merging cursors of different keys.
	ErrIdentityMismatch = errors.New("state: cursors belong to different keys")

	// ErrOverlap is returned when merging cursors whose ranges intersect.
	// Two live partitions owning the same index means an index may already
	// have been used twice.
	ErrOverlap = errors.New("state: partition ranges overlap")

	// ErrTooFragmented is returned when a merge would need more than
	// MaxRanges disjoint ranges.
	ErrTooFragmented = errors.New("state: too many disjoint ranges")

	// ErrInsufficient is returned when taking more indices than remain.
	ErrInsufficient = errors.New("state: not enough unused indices")

	// ErrInvalidRange is returned for empty, unordered or out-of-bounds ranges.
	ErrInvalidRange = errors.New("state: invalid range")
)
