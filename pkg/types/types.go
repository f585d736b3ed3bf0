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

package types

import "fmt"

// KeyPart names one of the three persisted slots of an XMSS key.
type KeyPart int

const (
	// PrivateStateless holds the immutable seed material. It is written once
	// at key creation and destroyed only by a purge.
	PrivateStateless KeyPart = iota

	// PrivateStateful holds the leaf index cursor. It is the only mutable slot
	// and may only be updated by compare-and-swap.
	PrivateStateful

	// Public holds the derived public key and its cached tree nodes.
	Public
)

// KeyParts lists every slot in purge order: private parts first.
var KeyParts = []KeyPart{PrivateStateless, PrivateStateful, Public}

// IsValid reports whether p is one of the defined slots.
func (p KeyPart) IsValid() bool {
	return p >= PrivateStateless && p <= Public
}

// IsPrivate reports whether the slot holds secret material that must be
// zeroized before deletion.
func (p KeyPart) IsPrivate() bool {
	return p == PrivateStateless || p == PrivateStateful
}

// String returns the slot name used for file names and storage keys.
func (p KeyPart) String() string {
	switch p {
	case PrivateStateless:
		return "xmss_private_stateless"
	case PrivateStateful:
		return "xmss_private_stateful"
	case Public:
		return "xmss_public"
	default:
		return fmt.Sprintf("key_part(%d)", int(p))
	}
}
