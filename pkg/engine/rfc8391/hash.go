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

package rfc8391

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Domain separation prefixes, toByte(k, 32).
const (
	padF         = 0
	padH         = 1
	padHMsg      = 2
	padPRF       = 3
	padPRFKeygen = 4
)

// hasher evaluates the keyed hash functions of RFC 8391 and NIST SP 800-208.
// A hasher is not safe for concurrent use; each goroutine takes its own.
type hasher struct {
	sha   hash.Hash
	shake sha3.ShakeHash
	pad   [n]byte
	buf   [3 * n]byte
}

func newHasher(family types.HashFamily) *hasher {
	h := &hasher{}
	if family == types.HashSHAKE256 {
		h.shake = sha3.NewShake256()
	} else {
		h.sha = sha256.New()
	}
	return h
}

// digest writes HASH(toByte(padding, n) || parts...) into out.
func (h *hasher) digest(out []byte, padding uint32, parts ...[]byte) {
	clear(h.pad[:])
	binary.BigEndian.PutUint32(h.pad[n-4:], padding)

	if h.shake != nil {
		h.shake.Reset()
		_, _ = h.shake.Write(h.pad[:])
		for _, p := range parts {
			_, _ = h.shake.Write(p)
		}
		_, _ = h.shake.Read(out[:n])
		return
	}

	h.sha.Reset()
	h.sha.Write(h.pad[:])
	for _, p := range parts {
		h.sha.Write(p)
	}
	h.sha.Sum(out[:0])
}

// f is the chaining function F(KEY, M).
func (h *hasher) f(out, key, m []byte) {
	h.digest(out, padF, key, m)
}

// thash is the tree hash H(KEY, M) over a 2n byte message.
func (h *hasher) thash(out, key, left, right []byte) {
	h.digest(out, padH, key, left, right)
}

// hMsg is H_msg(r || root || toByte(idx, n), M).
func (h *hasher) hMsg(out, r, root []byte, idx uint32, msg []byte) {
	var index [n]byte
	binary.BigEndian.PutUint32(index[n-4:], idx)
	h.digest(out, padHMsg, r, root, index[:], msg)
}

// prf is PRF(KEY, M) with a 32-byte M.
func (h *hasher) prf(out, key, m []byte) {
	h.digest(out, padPRF, key, m)
}

// prfKeygen is PRF_keygen(SK_SEED, PUB_SEED || ADRS) from SP 800-208.
func (h *hasher) prfKeygen(out, skSeed, pubSeed []byte, adrs *address) {
	h.digest(out, padPRFKeygen, skSeed, pubSeed, adrs[:])
}

// randHash is RAND_HASH(LEFT, RIGHT, SEED, ADRS).
func (h *hasher) randHash(out, left, right, seed []byte, adrs *address) {
	var key, bm0, bm1 [n]byte
	adrs.setKeyAndMask(0)
	h.prf(key[:], seed, adrs[:])
	adrs.setKeyAndMask(1)
	h.prf(bm0[:], seed, adrs[:])
	adrs.setKeyAndMask(2)
	h.prf(bm1[:], seed, adrs[:])

	l := h.buf[:n]
	r := h.buf[n : 2*n]
	for i := 0; i < n; i++ {
		l[i] = left[i] ^ bm0[i]
		r[i] = right[i] ^ bm1[i]
	}
	h.thash(out, key[:], l, r)
}
