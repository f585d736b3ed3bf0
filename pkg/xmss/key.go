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

// Package xmss manages the lifecycle of XMSS private keys whose signing
// state is persisted in a storage.StateStore.
//
// A leaf index is spent at most once, across restarts and across
// partitions of one key. Signing reserves an index, commits the reservation
// to the store with a compare-and-swap, and only then computes the
// signature. A key's remaining indices can be split into another store for
// an independent signer and merged back later.
//
//	key := xmss.New(xmss.WithName("release-signer"))
//	if err := key.GeneratePrivateKey(store, types.XMSS_SHA2_10_256, false); err != nil {
//	    return err
//	}
//	if err := key.CalculatePublicKey(ctx, nil); err != nil {
//	    return err
//	}
//	sig, err := key.Sign(message)
package xmss

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/audit"
	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/correlation"
	"github.com/jeremyhahn/go-xmss/pkg/engine"
	"github.com/jeremyhahn/go-xmss/pkg/engine/rfc8391"
	"github.com/jeremyhahn/go-xmss/pkg/metrics"
	"github.com/jeremyhahn/go-xmss/pkg/state"
	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Store call names used in PersistenceError.Op.
const (
	opStore            = "store"
	opCompareAndSwap   = "compare-and-swap"
	opLoad             = "load"
	opDeletePublicPart = "delete public part"
	opPurge            = "purge"
)

// State is the lifecycle state of a key handle.
type State int

const (
	StateUninitialized State = iota
	StatePrivateKeyLoaded
	StatePublicKeyReady
	// StateInvalidated follows a failed commit. The handle refuses private
	// key operations until a key is generated or imported again.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrivateKeyLoaded:
		return "private_key_loaded"
	case StatePublicKeyReady:
		return "public_key_ready"
	case StateInvalidated:
		return "invalidated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Key is a handle to one XMSS private key. Methods are safe to call from
// multiple goroutines. Operations are serialized, so a running
// CalculatePublicKey blocks every other operation on the same handle. The
// read-only accessors State, SignaturesRemaining, HasPrivateKey,
// HasPublicKey, ParameterSet and IsEphemeral never wait on an operation;
// they report the handle as of the last completed one.
type Key struct {
	mu sync.Mutex

	viewMu sync.RWMutex
	view   snapshot

	engine     engine.Engine
	logger     logger.Logger
	auditor    audit.Auditor
	limiter    SignLimiter
	random     io.Reader
	partitions int
	name       string

	store     storage.StateStore
	ctx       engine.Context
	ps        types.ParameterSet
	identity  state.Identity
	committed []byte
	ephemeral bool
	state     State
}

// snapshot is the part of the handle served to the read-only accessors.
type snapshot struct {
	state     State
	ps        types.ParameterSet
	ephemeral bool
	remaining uint64
}

// New returns an empty key handle.
func New(opts ...Option) *Key {
	k := &Key{
		engine:  rfc8391.New(),
		logger:  logger.NewNoop(),
		auditor: audit.NewNoop(),
		random:  rand.Reader,
		name:    DefaultName,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

var auditEvents = map[string]audit.EventType{
	metrics.OpGenerate:           audit.EventKeyGenerate,
	metrics.OpImport:             audit.EventKeyImport,
	metrics.OpCalculatePublicKey: audit.EventKeyPublicKey,
	metrics.OpReserve:            audit.EventKeyReserve,
	metrics.OpSign:               audit.EventKeySign,
	metrics.OpVerify:             audit.EventKeyVerify,
	metrics.OpSplit:              audit.EventKeySplit,
	metrics.OpMerge:              audit.EventKeyMerge,
	metrics.OpPurge:              audit.EventKeyPurge,
}

// begin starts an operation and returns its logger and a function that
// records the outcome. The returned function must run with k.mu held.
func (k *Key) begin(op, id string) (logger.Logger, func(error)) {
	start := time.Now()
	wasInvalid := k.state == StateInvalidated
	log := k.logger.With(
		logger.String("operation", op),
		logger.String("operation_id", id),
		logger.String("key", k.name),
	)
	return log, func(err error) {
		k.publish()

		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
			metrics.RecordError(op, errorType(err))
			log.Debug("operation failed", logger.Error(err), logger.Duration("elapsed", time.Since(start)))
		}
		metrics.RecordOperation(op, status, time.Since(start).Seconds())

		k.audit(log, auditEvents[op], id, err)
		if !wasInvalid && k.state == StateInvalidated {
			k.audit(log, audit.EventKeyInvalidate, id, err)
		}
	}
}

// publish refreshes the accessor snapshot. It must run with k.mu held.
func (k *Key) publish() {
	v := snapshot{state: k.state, ps: k.ps, ephemeral: k.ephemeral}
	if k.ctx != nil {
		v.remaining = k.ctx.SignaturesRemaining()
	}
	k.viewMu.Lock()
	k.view = v
	k.viewMu.Unlock()
}

func (k *Key) snapshot() snapshot {
	k.viewMu.RLock()
	defer k.viewMu.RUnlock()
	return k.view
}

// audit records an event for the handle. A failing auditor is logged and
// otherwise ignored.
func (k *Key) audit(log logger.Logger, typ audit.EventType, id string, err error) {
	event := &audit.Event{
		Type:        typ,
		Outcome:     audit.OutcomeSuccess,
		Key:         k.name,
		OperationID: id,
		Metadata:    map[string]any{"state": k.state.String()},
	}
	if k.ctx != nil {
		event.Remaining = k.ctx.SignaturesRemaining()
	}
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		event.Error = err.Error()
	}
	if aerr := k.auditor.Record(context.Background(), event); aerr != nil {
		log.Warn("failed to record audit event", logger.Error(aerr))
	}
}

// requirePrivate checks that the handle holds a usable private key.
func (k *Key) requirePrivate(op string) error {
	switch k.state {
	case StateInvalidated:
		return validationError(op, ErrInvalidated)
	case StateUninitialized:
		return validationError(op, ErrNoPrivateKey)
	}
	return nil
}

// release zeroizes the engine context and forgets the bound store.
func (k *Key) release() {
	if k.ctx != nil {
		k.ctx.Close()
		k.ctx = nil
	}
	k.store = nil
	k.committed = nil
	k.identity = state.Identity{}
	k.ps = 0
	k.ephemeral = false
	k.state = StateUninitialized
}

// invalidate closes the engine context after a commit failure. The store
// stays bound so Purge still works.
func (k *Key) invalidate(log logger.Logger, cause error) {
	if k.ctx != nil {
		k.ctx.Close()
		k.ctx = nil
	}
	k.state = StateInvalidated
	metrics.RecordInvalidation(k.name)
	metrics.SetSignaturesRemaining(k.name, 0)
	log.Error("key handle invalidated, re-import required", logger.Error(cause))
}

// install makes ctx the handle's key.
func (k *Key) install(ctx engine.Context, store storage.StateStore, stateless, stateful []byte, ephemeral bool) {
	k.ctx = ctx
	k.store = store
	k.ps = ctx.ParameterSet()
	k.identity = state.IdentityOf(stateless)
	k.committed = stateful
	k.ephemeral = ephemeral
	k.state = StatePrivateKeyLoaded
	if ctx.HasPublicKey() {
		k.state = StatePublicKeyReady
	}
	metrics.SetSignaturesRemaining(k.name, ctx.SignaturesRemaining())
}

// commit replaces the persisted stateful part with next. A failed swap
// invalidates the handle.
func (k *Key) commit(log logger.Logger, next []byte) error {
	if k.ephemeral {
		k.committed = next
		return nil
	}
	if err := k.store.StoreStatefulPart(k.committed, next); err != nil {
		metrics.RecordCommit(k.name, metrics.StatusError)
		perr := persistenceError(opCompareAndSwap, types.PrivateStateful.String(), err)
		k.invalidate(log, perr)
		return perr
	}
	metrics.RecordCommit(k.name, metrics.StatusSuccess)
	k.committed = next
	return nil
}

// checkEmpty fails unless both private slots of store are empty.
func checkEmpty(op string, store storage.StateStore) error {
	for _, part := range []types.KeyPart{types.PrivateStateless, types.PrivateStateful} {
		data, err := store.Load(part)
		switch {
		case err == nil:
			storage.Zeroize(data)
			return validationError(op, fmt.Errorf("%w: %s present", ErrDestinationOccupied, part))
		case !errors.Is(err, storage.ErrNotFound):
			return persistenceError(opLoad, part.String(), err)
		}
	}
	return nil
}

// GeneratePrivateKey creates a new private key. An ephemeral key lives only
// in memory and requires a nil store; any other key is written to store,
// whose private slots must be empty. A key previously held by the handle is
// released first.
func (k *Key) GeneratePrivateKey(store storage.StateStore, ps types.ParameterSet, ephemeral bool) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpGenerate, correlation.NewID())
	defer func() { finish(err) }()

	switch {
	case ephemeral && store != nil:
		return validationError(metrics.OpGenerate, errors.New("an ephemeral key cannot be bound to a store"))
	case !ephemeral && store == nil:
		return validationError(metrics.OpGenerate, errors.New("store is required"))
	case !ps.IsValid():
		return validationError(metrics.OpGenerate, fmt.Errorf("%w: 0x%08x", types.ErrUnknownParameterSet, uint32(ps)))
	}
	if !ephemeral {
		if err := checkEmpty(metrics.OpGenerate, store); err != nil {
			return err
		}
	}

	k.release()

	secureSize, publicSize, err := k.engine.RandomSizes(ps)
	if err != nil {
		return engineError(metrics.OpGenerate, err)
	}
	secure := make([]byte, secureSize)
	defer storage.Zeroize(secure)
	public := make([]byte, publicSize)
	if _, err := io.ReadFull(k.random, secure); err != nil {
		return &ConsistencyError{Op: metrics.OpGenerate, Err: fmt.Errorf("random source: %w", err)}
	}
	if _, err := io.ReadFull(k.random, public); err != nil {
		return &ConsistencyError{Op: metrics.OpGenerate, Err: fmt.Errorf("random source: %w", err)}
	}

	stateless, stateful, err := k.engine.GenerateKeyMaterial(ps, secure, public)
	if err != nil {
		return engineError(metrics.OpGenerate, err)
	}
	defer storage.Zeroize(stateless)

	ctx, err := k.engine.LoadPrivateKey(stateless, stateful)
	if err != nil {
		return engineError(metrics.OpGenerate, err)
	}

	if !ephemeral {
		if err := k.persistNew(log, store, stateless, stateful); err != nil {
			ctx.Close()
			return err
		}
	}

	k.install(ctx, store, stateless, stateful, ephemeral)
	log.Info("generated private key",
		logger.Stringer("parameter_set", ps),
		logger.Bool("ephemeral", ephemeral),
		logger.Uint64("signatures_remaining", ctx.SignaturesRemaining()))
	return nil
}

// persistNew writes a freshly generated key into store. Any failure purges
// store again.
func (k *Key) persistNew(log logger.Logger, store storage.StateStore, stateless, stateful []byte) error {
	write := func() error {
		if err := store.Purge(); err != nil {
			return persistenceError(opPurge, "", err)
		}
		if err := store.Store(types.PrivateStateless, stateless); err != nil {
			return persistenceError(opStore, types.PrivateStateless.String(), err)
		}
		if err := store.Store(types.PrivateStateful, stateful); err != nil {
			return persistenceError(opStore, types.PrivateStateful.String(), err)
		}
		return nil
	}
	if err := write(); err != nil {
		return k.rollback(log, metrics.OpGenerate, store, err)
	}
	return nil
}

// rollback purges store after err. A failing purge escalates to an
// AggregateError.
func (k *Key) rollback(log logger.Logger, op string, store storage.StateStore, err error) error {
	log.Warn("rolling back", logger.Error(err))
	if rbErr := store.Purge(); rbErr != nil {
		metrics.RecordRollback(op, metrics.OutcomeRollbackFailed)
		agg := &AggregateError{Op: op, Err: err, RollbackErr: persistenceError(opPurge, "", rbErr)}
		log.Error("rollback failed, stores must be reconciled manually", logger.Error(agg))
		return agg
	}
	metrics.RecordRollback(op, metrics.OutcomeRolledBack)
	return err
}

// ImportPrivateKey loads the key held by store. The public part is loaded
// too when present; otherwise CalculatePublicKey must run before signing.
func (k *Key) ImportPrivateKey(store storage.StateStore) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpImport, correlation.NewID())
	defer func() { finish(err) }()

	if store == nil {
		return validationError(metrics.OpImport, errors.New("store is required"))
	}
	k.release()

	stateless, err := store.Load(types.PrivateStateless)
	if err != nil {
		return persistenceError(opLoad, types.PrivateStateless.String(), err)
	}
	defer storage.Zeroize(stateless)

	stateful, err := store.Load(types.PrivateStateful)
	if err != nil {
		return persistenceError(opLoad, types.PrivateStateful.String(), err)
	}

	ctx, err := k.engine.LoadPrivateKey(stateless, stateful)
	if err != nil {
		return engineError(metrics.OpImport, err)
	}

	public, err := store.Load(types.Public)
	switch {
	case err == nil:
		if err := ctx.LoadPublicKey(public); err != nil {
			ctx.Close()
			return engineError(metrics.OpImport, err)
		}
	case !errors.Is(err, storage.ErrNotFound):
		ctx.Close()
		return persistenceError(opLoad, types.Public.String(), err)
	}

	k.install(ctx, store, stateless, stateful, false)
	log.Info("imported private key",
		logger.Stringer("parameter_set", k.ps),
		logger.Bool("public_key", ctx.HasPublicKey()),
		logger.Uint64("signatures_remaining", ctx.SignaturesRemaining()))
	return nil
}

// CalculatePublicKey builds the Merkle tree. It is CPU bound and
// proportional to the number of leaves. Cancelling ctx aborts between tree
// partitions with an error wrapping ctx.Err(); the signing state is not
// touched and the call can be retried. onProgress, if set, receives
// strictly increasing percentages ending at 100.
//
// On success the public key is usable even if persisting it fails; that
// failure is returned as a PersistenceError.
func (k *Key) CalculatePublicKey(ctx context.Context, onProgress engine.ProgressFunc) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpCalculatePublicKey, correlation.GetOrGenerate(ctx))
	defer func() { finish(err) }()

	if err := k.requirePrivate(metrics.OpCalculatePublicKey); err != nil {
		return err
	}
	if k.state == StatePublicKeyReady {
		return validationError(metrics.OpCalculatePublicKey, ErrPublicKeyExists)
	}

	log.Info("calculating public key",
		logger.Stringer("parameter_set", k.ps),
		logger.Uint64("leaves", k.ps.LeafCount()),
		logger.Int("partitions", k.partitions))
	blob, err := k.ctx.ComputePublicKey(ctx, k.partitions, onProgress)
	if err != nil {
		return engineError(metrics.OpCalculatePublicKey, err)
	}
	k.state = StatePublicKeyReady

	if k.ephemeral {
		return nil
	}
	if err := k.store.DeletePublicPart(); err != nil {
		return persistenceError(opDeletePublicPart, types.Public.String(), err)
	}
	if err := k.store.Store(types.Public, blob); err != nil {
		return persistenceError(opStore, types.Public.String(), err)
	}
	log.Info("public key stored")
	return nil
}

// RequestFutureSignatures reserves the next n indices with one stateful
// commit. Subsequent Sign calls consume them without writing to the store.
func (k *Key) RequestFutureSignatures(n uint32) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpReserve, correlation.NewID())
	defer func() { finish(err) }()

	if err := k.requirePrivate(metrics.OpReserve); err != nil {
		return err
	}
	if n == 0 {
		return validationError(metrics.OpReserve, errors.New("count must be positive"))
	}
	return k.reserve(log, metrics.OpReserve, n)
}

// reserve allocates n indices and commits them.
func (k *Key) reserve(log logger.Logger, op string, n uint32) error {
	unreserved := k.ctx.SignaturesRemaining() - uint64(k.ctx.ReservedSignatures())
	if uint64(n) > unreserved {
		return &CapacityError{Op: op, Requested: uint64(n), Remaining: unreserved}
	}

	next, err := k.ctx.ReserveFutureSignatures(n)
	if err != nil {
		return engineError(op, err)
	}
	if err := k.commit(log, next); err != nil {
		return err
	}

	metrics.AddReserved(k.name, n)
	log.Debug("reserved signatures",
		logger.Int64("count", int64(n)),
		logger.Int64("reserved", int64(k.ctx.ReservedSignatures())))
	return nil
}

// Sign signs message with the next reserved index, reserving and committing
// one first when none is left. If the engine fails after the commit, the
// index is burned and a ConsistencyError is returned.
func (k *Key) Sign(message []byte) (sig []byte, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpSign, correlation.NewID())
	defer func() { finish(err) }()

	if err := k.requirePrivate(metrics.OpSign); err != nil {
		return nil, err
	}
	if k.state != StatePublicKeyReady {
		return nil, validationError(metrics.OpSign, ErrNoPublicKey)
	}

	if k.limiter != nil && !k.limiter.Allow(k.name) {
		return nil, validationError(metrics.OpSign, ErrRateLimited)
	}

	if k.ctx.ReservedSignatures() == 0 {
		if err := k.reserve(log, metrics.OpSign, 1); err != nil {
			return nil, err
		}
	}

	sig, err = k.ctx.Sign(message)
	remaining := k.ctx.SignaturesRemaining()
	metrics.SetSignaturesRemaining(k.name, remaining)
	if err != nil {
		log.Error("signing failed, index burned", logger.Error(err))
		return nil, &ConsistencyError{Op: metrics.OpSign, Err: err}
	}
	if remaining == 0 {
		log.Warn("signature capacity exhausted")
	}
	return sig, nil
}

// Verify checks signature against the handle's public key.
func (k *Key) Verify(message, signature []byte) (ok bool, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	_, finish := k.begin(metrics.OpVerify, correlation.NewID())
	defer func() { finish(err) }()

	if err := k.requirePrivate(metrics.OpVerify); err != nil {
		return false, err
	}
	if k.state != StatePublicKeyReady {
		return false, validationError(metrics.OpVerify, ErrNoPublicKey)
	}
	ok, err = k.ctx.Verify(message, signature)
	if err != nil {
		return false, engineError(metrics.OpVerify, err)
	}
	return ok, nil
}

// Verify checks signature against an exported public key. A nil engine
// selects the reference engine.
func Verify(eng engine.Engine, publicKey, message, signature []byte) (bool, error) {
	if eng == nil {
		eng = rfc8391.New()
	}
	ok, err := eng.Verify(publicKey, message, signature)
	if err != nil {
		return false, engineError(metrics.OpVerify, err)
	}
	return ok, nil
}

// PublicKey returns the exported public key, OID || root || seed.
func (k *Key) PublicKey() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.requirePrivate("public key"); err != nil {
		return nil, err
	}
	if k.state != StatePublicKeyReady {
		return nil, validationError("public key", ErrNoPublicKey)
	}
	pk, err := k.ctx.ExportPublicKey()
	if err != nil {
		return nil, engineError("public key", err)
	}
	return pk, nil
}

// SignaturesRemaining returns the number of indices the handle can still
// sign with, reserved or not. An invalidated or empty handle reports 0.
func (k *Key) SignaturesRemaining() uint64 {
	return k.snapshot().remaining
}

// HasPrivateKey reports whether the handle holds a usable private key.
func (k *Key) HasPrivateKey() bool {
	state := k.snapshot().state
	return state == StatePrivateKeyLoaded || state == StatePublicKeyReady
}

// HasPublicKey reports whether the public key has been loaded or
// calculated, which Sign and Verify require.
func (k *Key) HasPublicKey() bool {
	return k.snapshot().state == StatePublicKeyReady
}

// ParameterSet returns the parameter set of the loaded key, or 0 when the
// handle is empty.
func (k *Key) ParameterSet() types.ParameterSet {
	return k.snapshot().ps
}

// State returns the lifecycle state of the handle.
func (k *Key) State() State {
	return k.snapshot().state
}

// IsEphemeral reports whether the loaded key lives only in memory.
func (k *Key) IsEphemeral() bool {
	return k.snapshot().ephemeral
}

// Name returns the label used in logs and metrics.
func (k *Key) Name() string {
	return k.name
}

// Purge securely erases every slot of the bound store and releases the
// handle. An ephemeral key is only released. If the store fails the handle
// is kept so the purge can be retried.
func (k *Key) Purge() (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	log, finish := k.begin(metrics.OpPurge, correlation.NewID())
	defer func() { finish(err) }()

	if k.store != nil {
		if err := k.store.Purge(); err != nil {
			return persistenceError(opPurge, "", err)
		}
	}
	k.release()
	metrics.SetSignaturesRemaining(k.name, 0)
	log.Info("key purged")
	return nil
}

// Close zeroizes the in-memory key. The store is left untouched.
func (k *Key) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.release()
	k.publish()
	return nil
}
