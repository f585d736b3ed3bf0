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

import "encoding/binary"

// Address types
const (
	addrTypeOTS      = 0
	addrTypeLTree    = 1
	addrTypeHashTree = 2
)

// address is the 32-byte hash function address (ADRS) of RFC 8391 section 2.5.
// The single-tree variant leaves the layer and tree words at zero.
type address [32]byte

func (a *address) setWord(i int, v uint32) {
	binary.BigEndian.PutUint32(a[4*i:], v)
}

func (a *address) word(i int) uint32 {
	return binary.BigEndian.Uint32(a[4*i:])
}

// setType sets the address type and zeroes the type-specific words.
func (a *address) setType(t uint32) {
	a.setWord(3, t)
	for i := 4; i < 8; i++ {
		a.setWord(i, 0)
	}
}

func (a *address) setOTSAddress(v uint32)   { a.setWord(4, v) }
func (a *address) setLTreeAddress(v uint32) { a.setWord(4, v) }
func (a *address) setChainAddress(v uint32) { a.setWord(5, v) }
func (a *address) setTreeHeight(v uint32)   { a.setWord(5, v) }
func (a *address) treeHeight() uint32       { return a.word(5) }
func (a *address) setHashAddress(v uint32)  { a.setWord(6, v) }
func (a *address) setTreeIndex(v uint32)    { a.setWord(6, v) }
func (a *address) treeIndex() uint32        { return a.word(6) }
func (a *address) setKeyAndMask(v uint32)   { a.setWord(7, v) }
