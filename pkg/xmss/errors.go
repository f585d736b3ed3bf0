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
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-xmss/pkg/engine"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Error kinds. Every error returned by a Key matches one of these with
// errors.Is, except cancellation of CalculatePublicKey which matches
// context.Canceled or context.DeadlineExceeded.
//
// An AggregateError also matches the kinds of the failures it wraps, which
// are usually ErrPersistence, and a DonorPurgeError matches ErrPersistence
// as well as ErrDonorNotPurged. Test for ErrAggregateFailure and
// ErrDonorNotPurged before ErrPersistence: both require manual
// reconciliation and must not be retried like a plain store failure.
var (
	// ErrValidation indicates a bad argument or handle state, detected before any mutation
	ErrValidation = errors.New("xmss: validation failed")
	// ErrPersistence indicates a failure of the state store
	ErrPersistence = errors.New("xmss: persistence failed")
	// ErrConsistency indicates key material that failed an integrity check
	ErrConsistency = errors.New("xmss: consistency check failed")
	// ErrCapacityExhausted indicates fewer signatures remain than requested
	ErrCapacityExhausted = errors.New("xmss: signature capacity exhausted")
	// ErrAggregateFailure indicates an operation failed and so did its rollback
	ErrAggregateFailure = errors.New("xmss: operation and rollback failed, state may be inconsistent")
)

var (
	// ErrEphemeralUnsupported indicates split or merge of a key without a store
	ErrEphemeralUnsupported = errors.New("xmss: operation not supported on an ephemeral key")
	// ErrNoPrivateKey indicates an operation on a handle without a private key
	ErrNoPrivateKey = errors.New("xmss: no private key loaded")
	// ErrNoPublicKey indicates an operation that needs the public key
	ErrNoPublicKey = errors.New("xmss: public key not calculated")
	// ErrPublicKeyExists indicates the public key was already calculated
	ErrPublicKeyExists = errors.New("xmss: public key already calculated")
	// ErrInvalidated indicates a handle whose in-memory state may differ from the store
	ErrInvalidated = errors.New("xmss: key handle invalidated, re-import required")
	// ErrDestinationOccupied indicates a split or generate target that already holds a private key
	ErrDestinationOccupied = errors.New("xmss: destination store already holds a private key")
	// ErrIdentityMismatch indicates a partition of a different key
	ErrIdentityMismatch = errors.New("xmss: partition belongs to a different key")
	// ErrRateLimited indicates a signature refused by the handle's rate limiter
	ErrRateLimited = errors.New("xmss: signing rate limit exceeded")
	// ErrDonorNotPurged indicates a merged partition whose store still holds signing capability
	ErrDonorNotPurged = errors.New("xmss: merged partition was not purged")
)

// ValidationError reports a rejected argument or handle state.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("xmss: %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// Cause tells whether a store failure is a contract violation reported by
// the store or a failure of the backend itself.
type Cause int

const (
	// CauseContract is a not found, already exists, size or content
	// mismatch reported by the store. It points at a concurrent writer or a
	// caller bug.
	CauseContract Cause = iota
	// CauseBackend is an I/O, network or permission failure.
	CauseBackend
)

func (c Cause) String() string {
	switch c {
	case CauseContract:
		return "contract"
	case CauseBackend:
		return "backend"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// PersistenceError wraps a failed store call.
type PersistenceError struct {
	Op    string
	Part  string
	Cause Cause
	Err   error
}

// persistenceError wraps a failed store call. part is empty for calls that
// span every slot.
func persistenceError(op, part string, err error) *PersistenceError {
	cause := CauseBackend
	if storage.IsContractError(err) {
		cause = CauseContract
	}
	return &PersistenceError{Op: op, Part: part, Cause: cause, Err: err}
}

func (e *PersistenceError) Error() string {
	if e.Part != "" {
		return fmt.Sprintf("xmss: %s %s (%s): %v", e.Op, e.Part, e.Cause, e.Err)
	}
	return fmt.Sprintf("xmss: %s (%s): %v", e.Op, e.Cause, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// ConsistencyError reports key material that failed an integrity check,
// including a signature that failed self-verification. It is never retried.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("xmss: %s: %v", e.Op, e.Err)
}

func (e *ConsistencyError) Unwrap() []error {
	return []error{ErrConsistency, e.Err}
}

// CapacityError reports a request for more signatures than remain.
type CapacityError struct {
	Op        string
	Requested uint64
	Remaining uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("xmss: %s: requested %d signatures, %d remaining", e.Op, e.Requested, e.Remaining)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExhausted
}

// AggregateError reports an operation that failed and whose rollback failed
// too. Both stores involved must be reconciled manually before further use.
type AggregateError struct {
	Op          string
	Err         error
	RollbackErr error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("xmss: %s failed: %v; rollback failed: %v", e.Op, e.Err, e.RollbackErr)
}

func (e *AggregateError) Unwrap() []error {
	return []error{ErrAggregateFailure, e.Err, e.RollbackErr}
}

// DonorPurgeError reports a merge that committed but could not purge the
// merged store. That store still holds live indices and must be purged by
// an operator before anything signs with it.
type DonorPurgeError struct {
	Err error
}

func (e *DonorPurgeError) Error() string {
	return fmt.Sprintf("xmss: merge committed but the merged store still holds live indices and must be purged manually: %v", e.Err)
}

func (e *DonorPurgeError) Unwrap() []error {
	return []error{ErrDonorNotPurged, e.Err}
}

func validationError(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// engineError maps an engine failure onto the error kinds.
func engineError(op string, err error) error {
	switch {
	case errors.Is(err, types.ErrUnknownParameterSet),
		errors.Is(err, engine.ErrInvalidArgument),
		errors.Is(err, engine.ErrInvalidRandom):
		return &ValidationError{Op: op, Err: err}
	case errors.Is(err, engine.ErrNoPublicKey):
		return &ValidationError{Op: op, Err: fmt.Errorf("%w: %w", ErrNoPublicKey, err)}
	case errors.Is(err, engine.ErrPublicKeyExists):
		return &ValidationError{Op: op, Err: fmt.Errorf("%w: %w", ErrPublicKeyExists, err)}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("xmss: %s: %w", op, err)
	default:
		return &ConsistencyError{Op: op, Err: err}
	}
}

// errorType labels err for metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrAggregateFailure):
		return "aggregate_failure"
	case errors.Is(err, ErrDonorNotPurged):
		return "donor_not_purged"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrCapacityExhausted):
		return "capacity_exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
