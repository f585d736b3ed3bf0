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
	"fmt"

	"github.com/jeremyhahn/go-xmss/pkg/types"
)

// Winternitz parameters for n = 32, w = 16.
const (
	n       = 32
	w       = 16
	logW    = 4
	len1    = 8 * n / logW // 64
	len2    = 3            // floor(log2(len1*(w-1))/logW) + 1
	wotsLen = len1 + len2
)

// params holds the per parameter set constants.
type params struct {
	ps     types.ParameterSet
	height int
	family types.HashFamily
}

func paramsFor(ps types.ParameterSet) (params, error) {
	if !ps.IsValid() {
		return params{}, fmt.Errorf("%w: oid 0x%08x", types.ErrUnknownParameterSet, uint32(ps))
	}
	return params{ps: ps, height: ps.Height(), family: ps.HashFamily()}, nil
}

func (p params) leafCount() uint64 {
	return uint64(1) << uint(p.height)
}

// signatureSize is idx || r || WOTS signature || authentication path.
func (p params) signatureSize() int {
	return 4 + n + wotsLen*n + p.height*n
}

// cacheLevel is the lowest tree level whose nodes are kept with the public
// key. Authentication path nodes below it are recomputed on every signature.
func (p params) cacheLevel() int {
	if p.height <= 14 {
		return 0
	}
	return p.height - 14
}
