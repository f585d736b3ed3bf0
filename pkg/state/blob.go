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
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// Blob layout, all integers big-endian:
//
//	magic[4] | body | body | sha256(magic | body | body)
//	body = version[1] | count[1] | reserved[2] | identity[32] | MaxRanges × (start[4] | end[4])
//
// Every blob has the same size, so compare-and-swap always compares
// equal-length values.
const (
	blobVersion = 1
	bodySize    = 4 + IdentitySize + MaxRanges*8
	checksumOff = 4 + 2*bodySize

	// BlobSize is the size of every encoded cursor.
	BlobSize = checksumOff + sha256.Size
)

var blobMagic = [4]byte{'X', 'S', 'T', 'F'}

// MarshalBinary encodes the cursor into a BlobSize byte slice.
func (c *Cursor) MarshalBinary() ([]byte, error) {
	if err := validateRanges(c.ranges); err != nil {
		return nil, err
	}

	body := make([]byte, bodySize)
	body[0] = blobVersion
	body[1] = byte(len(c.ranges))
	copy(body[4:], c.identity[:])
	off := 4 + IdentitySize
	for _, r := range c.ranges {
		binary.BigEndian.PutUint32(body[off:], r.Start)
		binary.BigEndian.PutUint32(body[off+4:], r.End)
		off += 8
	}

	blob := make([]byte, 0, BlobSize)
	blob = append(blob, blobMagic[:]...)
	blob = append(blob, body...)
	blob = append(blob, body...)
	sum := sha256.Sum256(blob)
	blob = append(blob, sum[:]...)
	return blob, nil
}

// Unmarshal decodes and verifies a stateful blob.
func Unmarshal(blob []byte) (*Cursor, error) {
	if len(blob) != BlobSize {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrCorrupt, len(blob), BlobSize)
	}
	if !bytes.Equal(blob[:4], blobMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	sum := sha256.Sum256(blob[:checksumOff])
	if subtle.ConstantTimeCompare(sum[:], blob[checksumOff:]) != 1 {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	body := blob[4 : 4+bodySize]
	if !bytes.Equal(body, blob[4+bodySize:checksumOff]) {
		return nil, fmt.Errorf("%w: redundant copies differ", ErrCorrupt)
	}
	if body[0] != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, body[0])
	}

	count := int(body[1])
	if count > MaxRanges {
		return nil, fmt.Errorf("%w: range count %d", ErrCorrupt, count)
	}

	c := &Cursor{ranges: make([]Range, 0, count)}
	copy(c.identity[:], body[4:4+IdentitySize])
	off := 4 + IdentitySize
	for i := 0; i < MaxRanges; i++ {
		start := binary.BigEndian.Uint32(body[off:])
		end := binary.BigEndian.Uint32(body[off+4:])
		off += 8
		if i < count {
			c.ranges = append(c.ranges, Range{Start: start, End: end})
		} else if start != 0 || end != 0 {
			return nil, fmt.Errorf("%w: unused range slot %d is not zero", ErrCorrupt, i)
		}
	}
	if err := validateRanges(c.ranges); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return c, nil
}
