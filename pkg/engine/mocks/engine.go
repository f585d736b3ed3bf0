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

// Package mocks provides a fast engine.Engine for tests of the lifecycle
// layer. Key material, signatures and public keys are SHA-256 digests with
// the same cursor and reservation semantics as the reference engine, so a
// key with a million leaves loads and signs instantly.
package mocks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-xmss/pkg/engine"
	"github.com/jeremyhahn/go-xmss/pkg/state"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const (
	seedSize      = 32
	statelessSize = 4 + 4 + 2*seedSize
	publicSize    = 4 + 32 + 2*seedSize
	exportedSize  = 4 + 2*seedSize
	signatureSize = 4 + sha256.Size
)

var (
	statelessMagic = []byte("MSTL")
	publicMagic    = []byte("MPUB")
)

// MockEngine implements engine.Engine.
type MockEngine struct {
	mu sync.Mutex

	// Configurable behavior
	SignFunc      func(idx uint32, message []byte) ([]byte, error)
	PartitionHook func(partition int)

	// Call tracking
	GenerateCalls  int
	LoadCalls      int
	ComputeCalls   int
	SignCalls      int
	ReserveCalls   int
	SignedIndices  []uint32
	ProgressValues []float64
}

var _ engine.Engine = (*MockEngine)(nil)

// NewMockEngine creates a MockEngine with default behavior.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) RandomSizes(ps types.ParameterSet) (int, int, error) {
	if !ps.IsValid() {
		return 0, 0, types.ErrUnknownParameterSet
	}
	return seedSize, seedSize, nil
}

func (m *MockEngine) GenerateKeyMaterial(ps types.ParameterSet, secureRandom, publicRandom []byte) ([]byte, []byte, error) {
	m.mu.Lock()
	m.GenerateCalls++
	m.mu.Unlock()

	if !ps.IsValid() {
		return nil, nil, types.ErrUnknownParameterSet
	}
	if len(secureRandom) != seedSize || len(publicRandom) != seedSize {
		return nil, nil, engine.ErrInvalidRandom
	}

	stateless := make([]byte, 0, statelessSize)
	stateless = append(stateless, statelessMagic...)
	stateless = binary.BigEndian.AppendUint32(stateless, ps.OID())
	stateless = append(stateless, secureRandom...)
	stateless = append(stateless, publicRandom...)

	cursor, err := state.New(state.IdentityOf(stateless), ps.LeafCount())
	if err != nil {
		return nil, nil, err
	}
	stateful, err := cursor.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return stateless, stateful, nil
}

func (m *MockEngine) LoadPrivateKey(stateless, stateful []byte) (engine.Context, error) {
	m.mu.Lock()
	m.LoadCalls++
	m.mu.Unlock()

	if len(stateless) < 8 || !bytes.Equal(stateless[:4], statelessMagic) {
		return nil, engine.ErrInvalidBlob
	}
	ps, err := types.ParameterSetFromOID(binary.BigEndian.Uint32(stateless[4:8]))
	if err != nil {
		return nil, err
	}
	if len(stateless) != statelessSize {
		return nil, engine.ErrInvalidBlob
	}

	identity := state.IdentityOf(stateless)
	ledger, err := engine.NewLedger(stateful, identity, ps.LeafCount())
	if err != nil {
		return nil, err
	}
	return &mockContext{
		engine:   m,
		ps:       ps,
		secret:   bytes.Clone(stateless[8 : 8+seedSize]),
		pubSeed:  bytes.Clone(stateless[8+seedSize:]),
		identity: identity,
		ledger:   ledger,
	}, nil
}

func (m *MockEngine) Verify(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != exportedSize {
		return false, engine.ErrInvalidArgument
	}
	ps, err := types.ParameterSetFromOID(binary.BigEndian.Uint32(publicKey[:4]))
	if err != nil {
		return false, err
	}
	if len(signature) != signatureSize {
		return false, nil
	}
	idx := binary.BigEndian.Uint32(signature[:4])
	if uint64(idx) >= ps.LeafCount() {
		return false, nil
	}
	want := digest(publicKey[4:4+seedSize], idx, message)
	return subtle.ConstantTimeCompare(want, signature[4:]) == 1, nil
}

// Signed returns a copy of the indices signed so far, in order.
func (m *MockEngine) Signed() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.SignedIndices...)
}

func digest(root []byte, idx uint32, message []byte) []byte {
	h := sha256.New()
	h.Write(root)
	_ = binary.Write(h, binary.BigEndian, idx)
	h.Write(message)
	return h.Sum(nil)
}

type mockContext struct {
	engine   *MockEngine
	ps       types.ParameterSet
	secret   []byte
	pubSeed  []byte
	identity state.Identity
	ledger   *engine.Ledger
	root     []byte
	closed   bool
}

func (c *mockContext) ParameterSet() types.ParameterSet {
	return c.ps
}

func (c *mockContext) computeRoot() []byte {
	sum := sha256.Sum256(append(bytes.Clone(c.secret), c.pubSeed...))
	return sum[:]
}

// ComputePublicKey simulates a partitioned tree build. Partitions run in
// order; the context is checked before each one.
func (c *mockContext) ComputePublicKey(ctx context.Context, partitions int, onProgress engine.ProgressFunc) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	if c.root != nil {
		return nil, engine.ErrPublicKeyExists
	}
	c.engine.mu.Lock()
	c.engine.ComputeCalls++
	c.engine.mu.Unlock()

	partitions = max(partitions, 1)
	for i := 0; i < partitions; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("mock engine: public key computation: %w", err)
		}
		if c.engine.PartitionHook != nil {
			c.engine.PartitionHook(i)
		}
		c.progress(onProgress, float64(i+1)*100/float64(partitions+1))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mock engine: public key computation: %w", err)
	}

	c.root = c.computeRoot()
	c.progress(onProgress, 100)
	return c.publicBlob(), nil
}

func (c *mockContext) progress(onProgress engine.ProgressFunc, p float64) {
	c.engine.mu.Lock()
	c.engine.ProgressValues = append(c.engine.ProgressValues, p)
	c.engine.mu.Unlock()
	if onProgress != nil {
		onProgress(p)
	}
}

func (c *mockContext) publicBlob() []byte {
	out := make([]byte, 0, publicSize)
	out = append(out, publicMagic...)
	out = append(out, c.identity[:]...)
	out = append(out, c.root...)
	return append(out, c.pubSeed...)
}

func (c *mockContext) LoadPublicKey(blob []byte) error {
	if c.closed {
		return engine.ErrClosed
	}
	if c.root != nil {
		return engine.ErrPublicKeyExists
	}
	if len(blob) != publicSize || !bytes.Equal(blob[:4], publicMagic) {
		return engine.ErrInvalidBlob
	}
	if !bytes.Equal(blob[4:36], c.identity[:]) {
		return engine.ErrIdentityMismatch
	}
	root := blob[36 : 36+seedSize]
	if !bytes.Equal(root, c.computeRoot()) {
		return engine.ErrInvalidBlob
	}
	c.root = bytes.Clone(root)
	return nil
}

func (c *mockContext) HasPublicKey() bool {
	return !c.closed && c.root != nil
}

func (c *mockContext) ExportPublicKey() ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	if c.root == nil {
		return nil, engine.ErrNoPublicKey
	}
	out := binary.BigEndian.AppendUint32(nil, c.ps.OID())
	out = append(out, c.root...)
	return append(out, c.pubSeed...), nil
}

func (c *mockContext) ReserveFutureSignatures(count uint32) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	c.engine.mu.Lock()
	c.engine.ReserveCalls++
	c.engine.mu.Unlock()
	return c.ledger.Reserve(count)
}

func (c *mockContext) ReservedSignatures() uint32 {
	return c.ledger.Reserved()
}

func (c *mockContext) UpdateStateful(stateful []byte) error {
	if c.closed {
		return engine.ErrClosed
	}
	return c.ledger.Replace(stateful, c.ps.LeafCount())
}

func (c *mockContext) SignaturesRemaining() uint64 {
	return c.ledger.Remaining()
}

func (c *mockContext) Sign(message []byte) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	if c.root == nil {
		return nil, engine.ErrNoPublicKey
	}
	idx, err := c.ledger.Pop()
	if err != nil {
		return nil, err
	}

	c.engine.mu.Lock()
	c.engine.SignCalls++
	c.engine.SignedIndices = append(c.engine.SignedIndices, idx)
	signFunc := c.engine.SignFunc
	c.engine.mu.Unlock()

	if signFunc != nil {
		return signFunc(idx, message)
	}
	sig := binary.BigEndian.AppendUint32(nil, idx)
	return append(sig, digest(c.root, idx, message)...), nil
}

func (c *mockContext) Verify(message, signature []byte) (bool, error) {
	if c.closed {
		return false, engine.ErrClosed
	}
	pk, err := c.ExportPublicKey()
	if err != nil {
		return false, err
	}
	return c.engine.Verify(pk, message, signature)
}

func (c *mockContext) Close() {
	if c.closed {
		return
	}
	c.closed = true
	clear(c.secret)
}
