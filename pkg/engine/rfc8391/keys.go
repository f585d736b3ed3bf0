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
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/jeremyhahn/go-xmss/pkg/engine"
	"github.com/jeremyhahn/go-xmss/pkg/state"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const blobVersion = 1

var (
	statelessMagic = [4]byte{'X', 'S', 'T', 'L'}
	publicMagic    = [4]byte{'X', 'P', 'U', 'B'}
)

// Stateless blob:
//
//	magic(4) | version(1) | oid(4) | SK_SEED(n) | SK_PRF(n) | PUB_SEED(n) | sha256(32)
const (
	statelessBodySize = 4 + 1 + 4 + 3*n
	statelessSize     = statelessBodySize + sha256.Size
)

// Public blob:
//
//	magic(4) | version(1) | oid(4) | identity(32) | root(n) | PUB_SEED(n) |
//	cacheLevel(1) | cached nodes | sha256(32)
const publicHeaderSize = 4 + 1 + 4 + 32 + 2*n + 1

func marshalStateless(p params, k *secretKey) []byte {
	out := make([]byte, 0, statelessSize)
	out = append(out, statelessMagic[:]...)
	out = append(out, blobVersion)
	out = binary.BigEndian.AppendUint32(out, p.ps.OID())
	out = append(out, k.skSeed...)
	out = append(out, k.skPRF...)
	out = append(out, k.pubSeed...)
	sum := sha256.Sum256(out)
	return append(out, sum[:]...)
}

func unmarshalStateless(blob []byte) (params, *secretKey, error) {
	if len(blob) < 9 || [4]byte(blob[:4]) != statelessMagic {
		return params{}, nil, fmt.Errorf("%w: not a stateless key part", engine.ErrInvalidBlob)
	}
	if blob[4] != blobVersion {
		return params{}, nil, fmt.Errorf("%w: unsupported version %d", engine.ErrInvalidBlob, blob[4])
	}
	ps, err := types.ParameterSetFromOID(binary.BigEndian.Uint32(blob[5:9]))
	if err != nil {
		return params{}, nil, err
	}
	p, err := paramsFor(ps)
	if err != nil {
		return params{}, nil, err
	}
	if len(blob) != statelessSize {
		return params{}, nil, fmt.Errorf("%w: stateless part is %d bytes, want %d", engine.ErrInvalidBlob, len(blob), statelessSize)
	}
	sum := sha256.Sum256(blob[:statelessBodySize])
	if subtle.ConstantTimeCompare(sum[:], blob[statelessBodySize:]) != 1 {
		return params{}, nil, fmt.Errorf("%w: stateless checksum mismatch", engine.ErrInvalidBlob)
	}

	body := blob[9:statelessBodySize]
	k := &secretKey{
		skSeed:  append([]byte(nil), body[:n]...),
		skPRF:   append([]byte(nil), body[n:2*n]...),
		pubSeed: append([]byte(nil), body[2*n:3*n]...),
	}
	return p, k, nil
}

// publicKey is the parsed public part of a loaded key.
type publicKey struct {
	root  []byte
	cache *nodeCache
}

func marshalPublic(p params, identity state.Identity, pubSeed []byte, pk *publicKey) []byte {
	nodes := pk.cache.bytes()
	out := make([]byte, 0, publicHeaderSize+len(nodes)+sha256.Size)
	out = append(out, publicMagic[:]...)
	out = append(out, blobVersion)
	out = binary.BigEndian.AppendUint32(out, p.ps.OID())
	out = append(out, identity[:]...)
	out = append(out, pk.root...)
	out = append(out, pubSeed...)
	out = append(out, byte(pk.cache.level))
	out = append(out, nodes...)
	sum := sha256.Sum256(out)
	return append(out, sum[:]...)
}

// unmarshalPublic parses a public blob and checks that it belongs to the
// key identified by identity and pubSeed. The root is recomputed from the
// cached nodes so a blob with a tampered cache is rejected.
func unmarshalPublic(h *hasher, p params, identity state.Identity, pubSeed, blob []byte) (*publicKey, error) {
	if len(blob) < publicHeaderSize+sha256.Size || [4]byte(blob[:4]) != publicMagic {
		return nil, fmt.Errorf("%w: not a public key part", engine.ErrInvalidBlob)
	}
	if blob[4] != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", engine.ErrInvalidBlob, blob[4])
	}
	body := blob[:len(blob)-sha256.Size]
	sum := sha256.Sum256(body)
	if subtle.ConstantTimeCompare(sum[:], blob[len(body):]) != 1 {
		return nil, fmt.Errorf("%w: public checksum mismatch", engine.ErrInvalidBlob)
	}
	if binary.BigEndian.Uint32(blob[5:9]) != p.ps.OID() {
		return nil, fmt.Errorf("%w: public part has a different parameter set", engine.ErrIdentityMismatch)
	}
	if subtle.ConstantTimeCompare(blob[9:41], identity[:]) != 1 {
		return nil, engine.ErrIdentityMismatch
	}
	root := blob[41 : 41+n]
	if subtle.ConstantTimeCompare(blob[41+n:41+2*n], pubSeed) != 1 {
		return nil, engine.ErrIdentityMismatch
	}
	level := int(blob[41+2*n])
	if level != p.cacheLevel() {
		return nil, fmt.Errorf("%w: cache level %d, want %d", engine.ErrInvalidBlob, level, p.cacheLevel())
	}
	cache, err := cacheFromBytes(level, p.height, body[publicHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidBlob, err)
	}
	if subtle.ConstantTimeCompare(cache.root(h, pubSeed), root) != 1 {
		return nil, fmt.Errorf("%w: cached nodes do not match root", engine.ErrInvalidBlob)
	}
	return &publicKey{root: append([]byte(nil), root...), cache: cache}, nil
}

// exportPublic returns OID || root || PUB_SEED.
func exportPublic(p params, root, pubSeed []byte) []byte {
	out := make([]byte, 0, 4+2*n)
	out = binary.BigEndian.AppendUint32(out, p.ps.OID())
	out = append(out, root...)
	return append(out, pubSeed...)
}

func parseExportedPublic(pk []byte) (params, []byte, []byte, error) {
	if len(pk) != 4+2*n {
		return params{}, nil, nil, fmt.Errorf("%w: public key is %d bytes, want %d", engine.ErrInvalidArgument, len(pk), 4+2*n)
	}
	ps, err := types.ParameterSetFromOID(binary.BigEndian.Uint32(pk[:4]))
	if err != nil {
		return params{}, nil, nil, err
	}
	p, err := paramsFor(ps)
	if err != nil {
		return params{}, nil, nil, err
	}
	return p, pk[4 : 4+n], pk[4+n:], nil
}
