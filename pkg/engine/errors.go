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

import "errors"

var (
	// ErrInvalidBlob indicates a key blob that fails structural or integrity checks
	ErrInvalidBlob = errors.New("engine: invalid key blob")
	// ErrInvalidRandom indicates seed material of the wrong size
	ErrInvalidRandom = errors.New("engine: invalid random input size")
	// ErrInvalidArgument indicates a bad argument such as a zero count
	ErrInvalidArgument = errors.New("engine: invalid argument")
	// ErrIdentityMismatch indicates a stateful or public blob that belongs to a different key
	ErrIdentityMismatch = errors.New("engine: blob belongs to a different key")
	// ErrTooFewSignatures indicates a reservation larger than the unreserved budget
	ErrTooFewSignatures = errors.New("engine: not enough signatures remaining")
	// ErrNoReservedSignatures indicates Sign was called without a reserved index
	ErrNoReservedSignatures = errors.New("engine: no reserved signatures")
	// ErrReservedOverlap indicates a stateful update that hands out an index already reserved
	ErrReservedOverlap = errors.New("engine: stateful update overlaps reserved indices")
	// ErrNoPublicKey indicates an operation that needs the public key before it is available
	ErrNoPublicKey = errors.New("engine: public key not available")
	// ErrPublicKeyExists indicates the public key has already been computed or loaded
	ErrPublicKeyExists = errors.New("engine: public key already available")
	// ErrFaultDetected indicates a freshly computed signature failed self-verification
	ErrFaultDetected = errors.New("engine: fault detected, signature discarded")
	// ErrClosed indicates use of a released context
	ErrClosed = errors.New("engine: context closed")
)
