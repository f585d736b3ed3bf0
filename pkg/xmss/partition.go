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
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/correlation"
	"github.com/jeremyhahn/go-xmss/pkg/metrics"
	"github.com/jeremyhahn/go-xmss/pkg/state"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// requirePartitionable rejects ephemeral and unloaded handles.
func (k *Key) requirePartitionable(op string) error {
	if k.ephemeral {
		return validationError(op, ErrEphemeralUnsupported)
	}
	return k.requirePrivate(op)
}

// committedCursor decodes the last persisted stateful part.
func (k *Key) committedCursor(op string) (*state.Cursor, error) {
	cursor, err := state.Unmarshal(k.committed)
	if err != nil {
		return nil, &ConsistencyError{Op: op, Err: err}
	}
	return cursor, nil
}

// loadStateless reads the stateless part of the bound store and checks it
// still belongs to the loaded key.
func (k *Key) loadStateless(op string) ([]byte, error) {
	stateless, err := k.store.Load(types.PrivateStateless)
	if err != nil {
		return nil, persistenceError(opLoad, types.PrivateStateless.String(), err)
	}
	if id := state.IdentityOf(stateless); subtle.ConstantTimeCompare(id[:], k.identity[:]) != 1 {
		storage.Zeroize(stateless)
		return nil, &ConsistencyError{Op: op, Err: errors.New("stored stateless part changed since the key was loaded")}
	}
	return stateless, nil
}

// SplitPrivateKey moves the lowest count unreserved indices of the key into
// dest, which must not hold a private key. dest receives the stateless part,
// the public part if one is stored, and a stateful part owning exactly the
// moved indices. The stateful part of dest is written last, after the
// source has given up the indices.
//
// Any failure purges dest. If the source had already committed, its
// previous state is restored. A purge or restore that fails yields an
// AggregateError.
func (k *Key) SplitPrivateKey(dest storage.StateStore, count uint32) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpSplit, correlation.NewID())
	defer func() { finish(err) }()

	if err := k.requirePartitionable(metrics.OpSplit); err != nil {
		return err
	}
	switch {
	case dest == nil:
		return validationError(metrics.OpSplit, errors.New("destination store is required"))
	case dest == k.store:
		return validationError(metrics.OpSplit, errors.New("destination is the source store"))
	case count == 0:
		return validationError(metrics.OpSplit, errors.New("count must be positive"))
	}

	cursor, err := k.committedCursor(metrics.OpSplit)
	if err != nil {
		return err
	}
	if uint64(count) > cursor.Remaining() {
		return &CapacityError{Op: metrics.OpSplit, Requested: uint64(count), Remaining: cursor.Remaining()}
	}
	taken, rest, err := cursor.Take(uint64(count))
	if err != nil {
		return &ConsistencyError{Op: metrics.OpSplit, Err: err}
	}
	destBlob, err := taken.MarshalBinary()
	if err != nil {
		return &ConsistencyError{Op: metrics.OpSplit, Err: err}
	}
	restBlob, err := rest.MarshalBinary()
	if err != nil {
		return &ConsistencyError{Op: metrics.OpSplit, Err: err}
	}

	if err := checkEmpty(metrics.OpSplit, dest); err != nil {
		return err
	}
	stateless, err := k.loadStateless(metrics.OpSplit)
	if err != nil {
		return err
	}
	defer storage.Zeroize(stateless)

	public, err := k.store.Load(types.Public)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return persistenceError(opLoad, types.Public.String(), err)
		}
		public = nil
	}

	log = log.With(logger.Int64("count", int64(count)), logger.Stringer("range", taken))
	log.Info("splitting key")

	previous := k.committed
	sourceCommitted := false

	err = func() error {
		if err := dest.Purge(); err != nil {
			return persistenceError(opPurge, "", err)
		}
		if err := dest.Store(types.PrivateStateless, stateless); err != nil {
			return persistenceError(opStore, types.PrivateStateless.String(), err)
		}
		if public != nil {
			if err := dest.Store(types.Public, public); err != nil {
				return persistenceError(opStore, types.Public.String(), err)
			}
		}
		if err := k.commit(log, restBlob); err != nil {
			return err
		}
		sourceCommitted = true
		if err := k.ctx.UpdateStateful(restBlob); err != nil {
			return &ConsistencyError{Op: metrics.OpSplit, Err: err}
		}
		if err := dest.Store(types.PrivateStateful, destBlob); err != nil {
			return persistenceError(opStore, types.PrivateStateful.String(), err)
		}
		return nil
	}()
	if err != nil {
		return k.rollbackSplit(log, dest, err, sourceCommitted, previous)
	}

	metrics.SetSignaturesRemaining(k.name, k.ctx.SignaturesRemaining())
	log.Info("split key",
		logger.Uint64("source_remaining", rest.Remaining()),
		logger.Uint64("partition_remaining", taken.Remaining()))
	return nil
}

// rollbackSplit purges dest and, when the source had already given up the
// indices, hands them back. The source is restored only after dest is known
// to be empty, so a partially written dest never overlaps it.
func (k *Key) rollbackSplit(log logger.Logger, dest storage.StateStore, err error, sourceCommitted bool, previous []byte) error {
	err = k.rollback(log, metrics.OpSplit, dest, err)
	if !sourceCommitted || errors.Is(err, ErrAggregateFailure) {
		if sourceCommitted {
			log.Error("source gave up indices that no partition owns", logger.Error(err))
		}
		return err
	}

	if restoreErr := k.commit(log, previous); restoreErr != nil {
		metrics.RecordRollback(metrics.OpSplit, metrics.OutcomeRollbackFailed)
		agg := &AggregateError{Op: metrics.OpSplit, Err: err, RollbackErr: restoreErr}
		log.Error("restoring source state failed", logger.Error(agg))
		return agg
	}
	if k.ctx != nil {
		if updateErr := k.ctx.UpdateStateful(previous); updateErr != nil {
			k.invalidate(log, updateErr)
			return &AggregateError{Op: metrics.OpSplit, Err: err, RollbackErr: &ConsistencyError{Op: metrics.OpSplit, Err: updateErr}}
		}
	}
	log.Info("source state restored")
	return err
}

// MergePartition returns the indices held by other to this key and purges
// other. other must hold a partition of the same key. The merge commits
// before other is purged; if the purge fails a DonorPurgeError is returned
// and other must be purged by hand before anything signs with it.
func (k *Key) MergePartition(other storage.StateStore) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpMerge, correlation.NewID())
	defer func() { finish(err) }()

	if err := k.requirePartitionable(metrics.OpMerge); err != nil {
		return err
	}
	switch {
	case other == nil:
		return validationError(metrics.OpMerge, errors.New("partition store is required"))
	case other == k.store:
		return validationError(metrics.OpMerge, errors.New("cannot merge a key with itself"))
	}

	ours, err := k.loadStateless(metrics.OpMerge)
	if err != nil {
		return err
	}
	defer storage.Zeroize(ours)

	theirs, err := other.Load(types.PrivateStateless)
	if err != nil {
		return persistenceError(opLoad, types.PrivateStateless.String(), err)
	}
	defer storage.Zeroize(theirs)
	if subtle.ConstantTimeCompare(ours, theirs) != 1 {
		return validationError(metrics.OpMerge, ErrIdentityMismatch)
	}

	otherStateful, err := other.Load(types.PrivateStateful)
	if err != nil {
		return persistenceError(opLoad, types.PrivateStateful.String(), err)
	}
	donor, err := state.Unmarshal(otherStateful)
	if err != nil {
		return &ConsistencyError{Op: metrics.OpMerge, Err: err}
	}
	if donor.Identity() != k.identity {
		return &ConsistencyError{Op: metrics.OpMerge, Err: fmt.Errorf("%w: stateful part is bound to another key", ErrIdentityMismatch)}
	}
	if !donor.Within(k.ps.LeafCount()) {
		return &ConsistencyError{Op: metrics.OpMerge, Err: fmt.Errorf("partition %s exceeds %d leaves", donor, k.ps.LeafCount())}
	}

	cursor, err := k.committedCursor(metrics.OpMerge)
	if err != nil {
		return err
	}
	merged, err := cursor.Merge(donor)
	switch {
	case errors.Is(err, state.ErrTooFragmented):
		return validationError(metrics.OpMerge, err)
	case err != nil:
		return &ConsistencyError{Op: metrics.OpMerge, Err: err}
	}
	mergedBlob, err := merged.MarshalBinary()
	if err != nil {
		return &ConsistencyError{Op: metrics.OpMerge, Err: err}
	}

	// The engine rejects a merge that would hand out an index reserved in
	// memory; it leaves its state unchanged on error.
	if err := k.ctx.UpdateStateful(mergedBlob); err != nil {
		return &ConsistencyError{Op: metrics.OpMerge, Err: err}
	}

	log = log.With(logger.Stringer("partition", donor))
	if err := k.commit(log, mergedBlob); err != nil {
		return err
	}
	metrics.SetSignaturesRemaining(k.name, k.ctx.SignaturesRemaining())

	if err := other.Purge(); err != nil {
		perr := &DonorPurgeError{Err: persistenceError(opPurge, "", err)}
		k.invalidate(log, perr)
		return perr
	}

	log.Info("merged partition",
		logger.Uint64("merged", donor.Remaining()),
		logger.Uint64("signatures_remaining", k.ctx.SignaturesRemaining()))
	return nil
}
