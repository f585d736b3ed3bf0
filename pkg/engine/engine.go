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

// Package engine defines the contract between the key lifecycle layer and
// the component that performs XMSS tree hashing. The lifecycle layer owns
// persistence and ordering; an engine owns the mathematics and treats the
// blobs it emits as opaque to callers.
package engine

import (
	"context"

	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// ProgressFunc receives the completed share of a long computation in the
// range (0, 100]. Calls are serialized and strictly increasing; the final
// call reports exactly 100.
type ProgressFunc func(percent float64)

// Engine creates and loads XMSS private keys and verifies signatures.
type Engine interface {
	// RandomSizes returns the number of secret and public random bytes
	// GenerateKeyMaterial expects for the parameter set.
	RandomSizes(ps types.ParameterSet) (secure, public int, err error)

	// GenerateKeyMaterial derives a new private key from caller supplied
	// randomness. The stateful blob owns every leaf index of the key.
	GenerateKeyMaterial(ps types.ParameterSet, secureRandom, publicRandom []byte) (stateless, stateful []byte, err error)

	// LoadPrivateKey parses and verifies both private parts and returns a
	// context that owns the secret material until Close.
	LoadPrivateKey(stateless, stateful []byte) (Context, error)

	// Verify checks a signature against an exported public key.
	Verify(publicKey, message, signature []byte) (bool, error)
}

// Context is an in-memory private key. A context is not safe for
// concurrent use.
type Context interface {
	// ParameterSet returns the key's parameter set.
	ParameterSet() types.ParameterSet

	// ComputePublicKey builds the Merkle tree split into partitions that are
	// computed in parallel. Cancellation is observed between partitions and
	// leaves the context unchanged. On success the public key becomes
	// available and its storable blob is returned.
	ComputePublicKey(ctx context.Context, partitions int, onProgress ProgressFunc) ([]byte, error)

	// LoadPublicKey installs a public blob previously returned by
	// ComputePublicKey for this key.
	LoadPublicKey(blob []byte) error

	// HasPublicKey reports whether the public key is available.
	HasPublicKey() bool

	// ExportPublicKey returns the RFC 8391 public key: OID || root || seed.
	ExportPublicKey() ([]byte, error)

	// ReserveFutureSignatures moves the lowest count unused indices into the
	// reserved set and returns the stateful blob that records them as used.
	// The caller must persist that blob before the next Sign. On error the
	// context is unchanged.
	ReserveFutureSignatures(count uint32) ([]byte, error)

	// ReservedSignatures returns the number of reserved, unsigned indices.
	ReservedSignatures() uint32

	// UpdateStateful replaces the unreserved cursor after a partition split
	// or merge was persisted. The reserved set is kept.
	UpdateStateful(stateful []byte) error

	// SignaturesRemaining returns reserved plus unreserved indices.
	SignaturesRemaining() uint64

	// Sign consumes the lowest reserved index. The index is spent even when
	// signing fails.
	Sign(message []byte) ([]byte, error)

	// Verify checks a signature against this key's public key.
	Verify(message, signature []byte) (bool, error)

	// Close zeroizes secret material. It is safe to call more than once.
	Close()
}
