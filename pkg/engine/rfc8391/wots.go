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

// chain applies the chaining function steps times to in, starting at
// position start, writing the result to out (RFC 8391 algorithm 2).
func (h *hasher) chain(out, in []byte, start, steps int, seed []byte, adrs *address) {
	var key, bm, tmp [n]byte
	copy(tmp[:], in)
	for j := start; j < start+steps && j < w; j++ {
		adrs.setHashAddress(uint32(j))
		adrs.setKeyAndMask(0)
		h.prf(key[:], seed, adrs[:])
		adrs.setKeyAndMask(1)
		h.prf(bm[:], seed, adrs[:])
		for i := range tmp {
			tmp[i] ^= bm[i]
		}
		h.f(tmp[:], key[:], tmp[:])
	}
	copy(out, tmp[:])
}

// baseW converts msg to len1 base-16 digits followed by the len2 digits of
// the checksum.
func baseW(msg []byte) [wotsLen]int {
	var digits [wotsLen]int
	for i := 0; i < len1; i++ {
		b := msg[i/2]
		if i%2 == 0 {
			digits[i] = int(b >> 4)
		} else {
			digits[i] = int(b & 0x0f)
		}
	}

	csum := 0
	for i := 0; i < len1; i++ {
		csum += w - 1 - digits[i]
	}
	// Left-align the 12-bit checksum in two bytes and take three digits.
	csum <<= 8 - (len2*logW)%8
	digits[len1] = (csum >> 12) & 0x0f
	digits[len1+1] = (csum >> 8) & 0x0f
	digits[len1+2] = (csum >> 4) & 0x0f
	return digits
}

// wotsSecret derives chain i's secret start value for the OTS key in adrs.
func (h *hasher) wotsSecret(out, skSeed, pubSeed []byte, adrs *address, i int) {
	adrs.setChainAddress(uint32(i))
	adrs.setHashAddress(0)
	adrs.setKeyAndMask(0)
	h.prfKeygen(out, skSeed, pubSeed, adrs)
}

// wotsPublicKey computes the len*n byte WOTS+ public key for the OTS
// address in adrs.
func (h *hasher) wotsPublicKey(pk, skSeed, pubSeed []byte, adrs *address) {
	var sk [n]byte
	for i := 0; i < wotsLen; i++ {
		h.wotsSecret(sk[:], skSeed, pubSeed, adrs, i)
		adrs.setChainAddress(uint32(i))
		h.chain(pk[i*n:(i+1)*n], sk[:], 0, w-1, pubSeed, adrs)
	}
	clear(sk[:])
}

// wotsSign signs the n byte digest msg.
func (h *hasher) wotsSign(sig, msg, skSeed, pubSeed []byte, adrs *address) {
	digits := baseW(msg)
	var sk [n]byte
	for i := 0; i < wotsLen; i++ {
		h.wotsSecret(sk[:], skSeed, pubSeed, adrs, i)
		adrs.setChainAddress(uint32(i))
		h.chain(sig[i*n:(i+1)*n], sk[:], 0, digits[i], pubSeed, adrs)
	}
	clear(sk[:])
}

// wotsPublicKeyFromSig completes every chain of a signature to recover the
// public key it was made with.
func (h *hasher) wotsPublicKeyFromSig(pk, sig, msg, pubSeed []byte, adrs *address) {
	digits := baseW(msg)
	for i := 0; i < wotsLen; i++ {
		adrs.setChainAddress(uint32(i))
		h.chain(pk[i*n:(i+1)*n], sig[i*n:(i+1)*n], digits[i], w-1-digits[i], pubSeed, adrs)
	}
}
