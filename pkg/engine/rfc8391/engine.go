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

// Package rfc8391 is the reference XMSS engine. It implements single-tree
// XMSS as specified in RFC 8391 with the PRF_keygen key derivation of NIST
// SP 800-208, for the SHA2 and SHAKE256 parameter sets with n = 32.
package rfc8391

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"math/bits"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeremyhahn/go-xmss/pkg/engine"
	"github.com/jeremyhahn/go-xmss/pkg/state"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const (
	secureRandomSize = 2 * n
	publicRandomSize = n

	// maxUnits bounds how finely the tree is split for progress reporting
	// and cancellation.
	maxUnits = 256
)

// Engine is the reference engine. The zero value is ready to use.
type Engine struct{}

var _ engine.Engine = (*Engine)(nil)

// New returns the reference engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) RandomSizes(ps types.ParameterSet) (int, int, error) {
	if _, err := paramsFor(ps); err != nil {
		return 0, 0, err
	}
	return secureRandomSize, publicRandomSize, nil
}

// GenerateKeyMaterial splits secureRandom into SK_SEED and SK_PRF and uses
// publicRandom as PUB_SEED.
func (e *Engine) GenerateKeyMaterial(ps types.ParameterSet, secureRandom, publicRandom []byte) ([]byte, []byte, error) {
	p, err := paramsFor(ps)
	if err != nil {
		return nil, nil, err
	}
	if len(secureRandom) != secureRandomSize || len(publicRandom) != publicRandomSize {
		return nil, nil, fmt.Errorf("%w: got %d and %d bytes, want %d and %d",
			engine.ErrInvalidRandom, len(secureRandom), len(publicRandom), secureRandomSize, publicRandomSize)
	}

	k := &secretKey{
		skSeed:  secureRandom[:n],
		skPRF:   secureRandom[n:],
		pubSeed: publicRandom,
	}
	stateless := marshalStateless(p, k)

	cursor, err := state.New(state.IdentityOf(stateless), p.leafCount())
	if err != nil {
		return nil, nil, err
	}
	stateful, err := cursor.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return stateless, stateful, nil
}

func (e *Engine) LoadPrivateKey(stateless, stateful []byte) (engine.Context, error) {
	p, k, err := unmarshalStateless(stateless)
	if err != nil {
		return nil, err
	}
	identity := state.IdentityOf(stateless)
	ledger, err := engine.NewLedger(stateful, identity, p.leafCount())
	if err != nil {
		k.zeroize()
		return nil, err
	}
	return &keyContext{
		p:        p,
		key:      k,
		identity: identity,
		ledger:   ledger,
		h:        newHasher(p.family),
	}, nil
}

// Verify reports whether signature is valid for message under publicKey.
// A malformed public key is an error; a malformed signature is not valid.
func (e *Engine) Verify(publicKey, message, signature []byte) (bool, error) {
	p, root, seed, err := parseExportedPublic(publicKey)
	if err != nil {
		return false, err
	}
	return verify(newHasher(p.family), p, root, seed, message, signature), nil
}

func verify(h *hasher, p params, root, seed, msg, sig []byte) bool {
	if len(sig) != p.signatureSize() {
		return false
	}
	idx := binary.BigEndian.Uint32(sig[:4])
	if uint64(idx) >= p.leafCount() {
		return false
	}
	r := sig[4 : 4+n]
	wotsSig := sig[4+n : 4+n+wotsLen*n]
	auth := sig[4+n+wotsLen*n:]

	var digest, computed [n]byte
	h.hMsg(digest[:], r, root, idx, msg)
	h.rootFromSig(computed[:], idx, wotsSig, auth, digest[:], seed, p.height)
	return subtle.ConstantTimeCompare(computed[:], root) == 1
}

// keyContext is a loaded private key.
type keyContext struct {
	p        params
	key      *secretKey
	identity state.Identity
	ledger   *engine.Ledger
	pub      *publicKey
	h        *hasher
	closed   bool
}

func (c *keyContext) ParameterSet() types.ParameterSet {
	return c.p.ps
}

// units returns the number of equal subtrees the tree is split into.
func (c *keyContext) units(partitions int) int {
	units := 1
	if partitions > 1 {
		units = 1 << uint(bits.Len(uint(partitions-1)))
	}
	leaves := int(c.p.leafCount())
	units = max(units, min(leaves, maxUnits))
	return min(units, leaves)
}

func (c *keyContext) ComputePublicKey(ctx context.Context, partitions int, onProgress engine.ProgressFunc) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	if c.pub != nil {
		return nil, engine.ErrPublicKeyExists
	}
	if partitions <= 0 {
		partitions = runtime.NumCPU()
	}

	units := c.units(partitions)
	sub := c.p.height - (bits.Len(uint(units)) - 1)
	cache := newNodeCache(c.p.cacheLevel(), c.p.height)
	roots := make([]byte, units*n)

	var (
		mu        sync.Mutex
		completed int
	)
	record := func(height, index uint32, node []byte) {
		cache.put(height, index, node)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(partitions)
	for u := 0; u < units; u++ {
		if gctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h := newHasher(c.p.family)
			h.treeHash(roots[u*n:(u+1)*n], c.key, uint32(u)<<uint(sub), sub, record)

			mu.Lock()
			defer mu.Unlock()
			completed++
			if onProgress != nil {
				onProgress(float64(completed) * 100 / float64(units+1))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rfc8391: public key computation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rfc8391: public key computation: %w", err)
	}

	// Combine the subtree roots up to the tree root.
	current := roots
	for j := sub; j < c.p.height; j++ {
		count := len(current) / n
		next := make([]byte, (count/2)*n)
		for i := 0; i < count/2; i++ {
			node := next[i*n : (i+1)*n]
			c.h.parent(node, current[2*i*n:(2*i+1)*n], current[(2*i+1)*n:(2*i+2)*n], c.key.pubSeed, uint32(j), uint32(i))
			cache.put(uint32(j+1), uint32(i), node)
		}
		current = next
	}

	pub := &publicKey{root: current, cache: cache}
	blob := marshalPublic(c.p, c.identity, c.key.pubSeed, pub)
	c.pub = pub
	if onProgress != nil {
		onProgress(100)
	}
	return blob, nil
}

func (c *keyContext) LoadPublicKey(blob []byte) error {
	if c.closed {
		return engine.ErrClosed
	}
	if c.pub != nil {
		return engine.ErrPublicKeyExists
	}
	pub, err := unmarshalPublic(c.h, c.p, c.identity, c.key.pubSeed, blob)
	if err != nil {
		return err
	}
	c.pub = pub
	return nil
}

func (c *keyContext) HasPublicKey() bool {
	return !c.closed && c.pub != nil
}

func (c *keyContext) ExportPublicKey() ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	if c.pub == nil {
		return nil, engine.ErrNoPublicKey
	}
	return exportPublic(c.p, c.pub.root, c.key.pubSeed), nil
}

func (c *keyContext) ReserveFutureSignatures(count uint32) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	return c.ledger.Reserve(count)
}

func (c *keyContext) ReservedSignatures() uint32 {
	return c.ledger.Reserved()
}

func (c *keyContext) UpdateStateful(stateful []byte) error {
	if c.closed {
		return engine.ErrClosed
	}
	return c.ledger.Replace(stateful, c.p.leafCount())
}

func (c *keyContext) SignaturesRemaining() uint64 {
	return c.ledger.Remaining()
}

func (c *keyContext) Sign(message []byte) ([]byte, error) {
	if c.closed {
		return nil, engine.ErrClosed
	}
	if c.pub == nil {
		return nil, engine.ErrNoPublicKey
	}
	idx, err := c.ledger.Pop()
	if err != nil {
		return nil, err
	}

	sig := make([]byte, c.p.signatureSize())
	binary.BigEndian.PutUint32(sig[:4], idx)

	var index [n]byte
	binary.BigEndian.PutUint32(index[n-4:], idx)
	r := sig[4 : 4+n]
	c.h.prf(r, c.key.skPRF, index[:])

	var digest [n]byte
	c.h.hMsg(digest[:], r, c.pub.root, idx, message)

	var adrs address
	adrs.setType(addrTypeOTS)
	adrs.setOTSAddress(idx)
	c.h.wotsSign(sig[4+n:4+n+wotsLen*n], digest[:], c.key.skSeed, c.key.pubSeed, &adrs)
	c.h.authPath(sig[4+n+wotsLen*n:], c.key, c.pub.cache, idx, c.p.height)

	if !verify(c.h, c.p, c.pub.root, c.key.pubSeed, message, sig) {
		clear(sig)
		return nil, fmt.Errorf("%w: index %d", engine.ErrFaultDetected, idx)
	}
	return sig, nil
}

func (c *keyContext) Verify(message, signature []byte) (bool, error) {
	if c.closed {
		return false, engine.ErrClosed
	}
	if c.pub == nil {
		return false, engine.ErrNoPublicKey
	}
	return verify(c.h, c.p, c.pub.root, c.key.pubSeed, message, signature), nil
}

func (c *keyContext) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.key.zeroize()
}
