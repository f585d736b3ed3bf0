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

import "fmt"

// secretKey is the seed material of a loaded key.
type secretKey struct {
	skSeed  []byte
	skPRF   []byte
	pubSeed []byte
}

func (k *secretKey) zeroize() {
	clear(k.skSeed)
	clear(k.skPRF)
}

// ltree compresses a WOTS+ public key into one n byte node
// (RFC 8391 algorithm 8). pk is overwritten.
func (h *hasher) ltree(out, pk, seed []byte, adrs *address) {
	l := wotsLen
	adrs.setTreeHeight(0)
	for l > 1 {
		for i := 0; i < l/2; i++ {
			adrs.setTreeIndex(uint32(i))
			h.randHash(pk[i*n:(i+1)*n], pk[2*i*n:(2*i+1)*n], pk[(2*i+1)*n:(2*i+2)*n], seed, adrs)
		}
		if l%2 == 1 {
			copy(pk[(l/2)*n:(l/2+1)*n], pk[(l-1)*n:l*n])
		}
		l = (l + 1) / 2
		adrs.setTreeHeight(adrs.treeHeight() + 1)
	}
	copy(out, pk[:n])
}

// leaf computes the tree leaf for OTS key idx.
func (h *hasher) leaf(out []byte, k *secretKey, idx uint32) {
	var pk [wotsLen * n]byte
	var adrs address
	adrs.setType(addrTypeOTS)
	adrs.setOTSAddress(idx)
	h.wotsPublicKey(pk[:], k.skSeed, k.pubSeed, &adrs)

	adrs.setType(addrTypeLTree)
	adrs.setLTreeAddress(idx)
	h.ltree(out, pk[:], k.pubSeed, &adrs)
}

// recordFunc observes every tree node produced by treeHash.
type recordFunc func(height, index uint32, node []byte)

// treeHash computes the root of the subtree of the given height whose
// leftmost leaf is start (RFC 8391 algorithm 9).
func (h *hasher) treeHash(out []byte, k *secretKey, start uint32, height int, record recordFunc) {
	type stackNode struct {
		node   [n]byte
		height uint32
	}
	stack := make([]stackNode, 0, height+1)

	var adrs address
	for i := uint32(0); i < 1<<uint(height); i++ {
		var node [n]byte
		h.leaf(node[:], k, start+i)
		adrs.setType(addrTypeHashTree)
		adrs.setTreeHeight(0)
		adrs.setTreeIndex(start + i)
		if record != nil {
			record(0, start+i, node[:])
		}

		for len(stack) > 0 && stack[len(stack)-1].height == adrs.treeHeight() {
			adrs.setTreeIndex((adrs.treeIndex() - 1) / 2)
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			h.randHash(node[:], top.node[:], node[:], k.pubSeed, &adrs)
			adrs.setTreeHeight(adrs.treeHeight() + 1)
			if record != nil {
				record(adrs.treeHeight(), adrs.treeIndex(), node[:])
			}
		}
		stack = append(stack, stackNode{node: node, height: adrs.treeHeight()})
	}
	copy(out, stack[0].node[:])
}

// parent combines two sibling nodes at height into their parent.
func (h *hasher) parent(out, left, right, seed []byte, height, parentIndex uint32) {
	var adrs address
	adrs.setType(addrTypeHashTree)
	adrs.setTreeHeight(height)
	adrs.setTreeIndex(parentIndex)
	h.randHash(out, left, right, seed, &adrs)
}

// rootFromSig recomputes the tree root from a WOTS+ signature and its
// authentication path (RFC 8391 algorithm 13).
func (h *hasher) rootFromSig(out []byte, idx uint32, wotsSig, auth, digest, seed []byte, height int) {
	var pk [wotsLen * n]byte
	var adrs address
	adrs.setType(addrTypeOTS)
	adrs.setOTSAddress(idx)
	h.wotsPublicKeyFromSig(pk[:], wotsSig, digest, seed, &adrs)

	adrs.setType(addrTypeLTree)
	adrs.setLTreeAddress(idx)
	var node [n]byte
	h.ltree(node[:], pk[:], seed, &adrs)

	adrs.setType(addrTypeHashTree)
	adrs.setTreeIndex(idx)
	for k := 0; k < height; k++ {
		adrs.setTreeHeight(uint32(k))
		sibling := auth[k*n : (k+1)*n]
		if (idx>>uint(k))&1 == 0 {
			adrs.setTreeIndex(adrs.treeIndex() / 2)
			h.randHash(node[:], node[:], sibling, seed, &adrs)
		} else {
			adrs.setTreeIndex((adrs.treeIndex() - 1) / 2)
			h.randHash(node[:], sibling, node[:], seed, &adrs)
		}
	}
	copy(out, node[:])
}

// nodeCache keeps every node at or above level and below the root.
type nodeCache struct {
	level  int
	height int
	levels [][]byte
}

func newNodeCache(level, height int) *nodeCache {
	c := &nodeCache{level: level, height: height}
	for j := level; j < height; j++ {
		c.levels = append(c.levels, make([]byte, (1<<uint(height-j))*n))
	}
	return c
}

// size returns the serialized size of a cache for the given shape.
func cacheSize(level, height int) int {
	total := 0
	for j := level; j < height; j++ {
		total += (1 << uint(height-j)) * n
	}
	return total
}

func (c *nodeCache) put(height, index uint32, node []byte) {
	j := int(height)
	if j < c.level || j >= c.height {
		return
	}
	copy(c.levels[j-c.level][int(index)*n:], node[:n])
}

func (c *nodeCache) get(height, index uint32) ([]byte, bool) {
	j := int(height)
	if j < c.level || j >= c.height {
		return nil, false
	}
	off := int(index) * n
	return c.levels[j-c.level][off : off+n], true
}

func (c *nodeCache) bytes() []byte {
	out := make([]byte, 0, cacheSize(c.level, c.height))
	for _, lvl := range c.levels {
		out = append(out, lvl...)
	}
	return out
}

func cacheFromBytes(level, height int, data []byte) (*nodeCache, error) {
	if len(data) != cacheSize(level, height) {
		return nil, fmt.Errorf("cache size %d, want %d", len(data), cacheSize(level, height))
	}
	c := &nodeCache{level: level, height: height}
	off := 0
	for j := level; j < height; j++ {
		size := (1 << uint(height-j)) * n
		c.levels = append(c.levels, append([]byte(nil), data[off:off+size]...))
		off += size
	}
	return c, nil
}

// root recomputes the root from the cached level.
func (c *nodeCache) root(h *hasher, seed []byte) []byte {
	current := c.levels[0]
	for j := c.level; j < c.height; j++ {
		count := len(current) / n
		next := make([]byte, (count/2)*n)
		for i := 0; i < count/2; i++ {
			h.parent(next[i*n:(i+1)*n], current[2*i*n:(2*i+1)*n], current[(2*i+1)*n:(2*i+2)*n], seed, uint32(j), uint32(i))
		}
		current = next
	}
	return current
}

// authPath writes the h sibling nodes of leaf idx into out.
func (h *hasher) authPath(out []byte, k *secretKey, cache *nodeCache, idx uint32, height int) {
	for j := 0; j < height; j++ {
		sibling := (idx >> uint(j)) ^ 1
		dst := out[j*n : (j+1)*n]
		if node, ok := cache.get(uint32(j), sibling); ok {
			copy(dst, node)
			continue
		}
		h.treeHash(dst, k, sibling<<uint(j), j, nil)
	}
}
