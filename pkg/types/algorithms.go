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

package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownParameterSet is returned when a parameter set OID or name is not recognized.
	ErrUnknownParameterSet = errors.New("unknown XMSS parameter set")

	// ErrInvalidKeyPart is returned for a key part outside the three defined slots.
	ErrInvalidKeyPart = errors.New("invalid key part")
)

// =============================================================================
// Parameter Sets
// =============================================================================
// Values are the OIDs registered in RFC 8391 section 5.3 and NIST SP 800-208.
// Only n=32 single-tree sets are supported.

// ParameterSet selects the tree height and hash function family of an XMSS key.
// It is fixed at key creation.
type ParameterSet uint32

const (
	// XMSS_SHA2_10_256 is SHA-256 with tree height 10 (1024 signatures).
	XMSS_SHA2_10_256 ParameterSet = 0x00000001

	// XMSS_SHA2_16_256 is SHA-256 with tree height 16 (65536 signatures).
	XMSS_SHA2_16_256 ParameterSet = 0x00000002

	// XMSS_SHA2_20_256 is SHA-256 with tree height 20 (1048576 signatures).
	XMSS_SHA2_20_256 ParameterSet = 0x00000003

	// XMSS_SHAKE256_10_256 is SHAKE256/256 with tree height 10.
	XMSS_SHAKE256_10_256 ParameterSet = 0x00000010

	// XMSS_SHAKE256_16_256 is SHAKE256/256 with tree height 16.
	XMSS_SHAKE256_16_256 ParameterSet = 0x00000011

	// XMSS_SHAKE256_20_256 is SHAKE256/256 with tree height 20.
	XMSS_SHAKE256_20_256 ParameterSet = 0x00000012
)

// HashFamily identifies the hash function family underlying a parameter set.
type HashFamily string

const (
	HashSHA2     HashFamily = "SHA2"
	HashSHAKE256 HashFamily = "SHAKE256"
)

type parameterInfo struct {
	name   string
	height int
	family HashFamily
}

var parameterSets = map[ParameterSet]parameterInfo{
	XMSS_SHA2_10_256:     {"XMSS-SHA2_10_256", 10, HashSHA2},
	XMSS_SHA2_16_256:     {"XMSS-SHA2_16_256", 16, HashSHA2},
	XMSS_SHA2_20_256:     {"XMSS-SHA2_20_256", 20, HashSHA2},
	XMSS_SHAKE256_10_256: {"XMSS-SHAKE256_10_256", 10, HashSHAKE256},
	XMSS_SHAKE256_16_256: {"XMSS-SHAKE256_16_256", 16, HashSHAKE256},
	XMSS_SHAKE256_20_256: {"XMSS-SHAKE256_20_256", 20, HashSHAKE256},
}

// AvailableParameterSets returns every supported parameter set in OID order.
func AvailableParameterSets() []ParameterSet {
	return []ParameterSet{
		XMSS_SHA2_10_256,
		XMSS_SHA2_16_256,
		XMSS_SHA2_20_256,
		XMSS_SHAKE256_10_256,
		XMSS_SHAKE256_16_256,
		XMSS_SHAKE256_20_256,
	}
}

// IsValid reports whether the parameter set is supported.
func (ps ParameterSet) IsValid() bool {
	_, ok := parameterSets[ps]
	return ok
}

// OID returns the registered object identifier value.
func (ps ParameterSet) OID() uint32 {
	return uint32(ps)
}

// Height returns the Merkle tree height h, or 0 for an unknown set.
func (ps ParameterSet) Height() int {
	return parameterSets[ps].height
}

// LeafCount returns 2^h, the total number of one-time signature leaves.
func (ps ParameterSet) LeafCount() uint64 {
	info, ok := parameterSets[ps]
	if !ok {
		return 0
	}
	return uint64(1) << uint(info.height)
}

// HashFamily returns the hash function family.
func (ps ParameterSet) HashFamily() HashFamily {
	return parameterSets[ps].family
}

// String returns the RFC 8391 name, e.g. "XMSS-SHA2_10_256".
func (ps ParameterSet) String() string {
	if info, ok := parameterSets[ps]; ok {
		return info.name
	}
	return fmt.Sprintf("XMSS-UNKNOWN(0x%08x)", uint32(ps))
}

// ParameterSetFromOID validates a raw OID value.
func ParameterSetFromOID(oid uint32) (ParameterSet, error) {
	ps := ParameterSet(oid)
	if !ps.IsValid() {
		return 0, fmt.Errorf("%w: oid 0x%08x", ErrUnknownParameterSet, oid)
	}
	return ps, nil
}

// ParseParameterSet parses a parameter set name. Matching is case-insensitive
// and accepts both the RFC form ("XMSS-SHA2_10_256") and an underscore form
// ("XMSS_SHA2_10_256").
func ParseParameterSet(s string) (ParameterSet, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "_", "-")
	for ps, info := range parameterSets {
		if strings.EqualFold(strings.ReplaceAll(info.name, "_", "-"), normalized) {
			return ps, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownParameterSet, s)
}

// MarshalText implements encoding.TextMarshaler.
func (ps ParameterSet) MarshalText() ([]byte, error) {
	if !ps.IsValid() {
		return nil, fmt.Errorf("%w: oid 0x%08x", ErrUnknownParameterSet, uint32(ps))
	}
	return []byte(ps.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ps *ParameterSet) UnmarshalText(text []byte) error {
	parsed, err := ParseParameterSet(string(text))
	if err != nil {
		return err
	}
	*ps = parsed
	return nil
}
