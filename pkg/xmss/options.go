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

package xmss

import (
	"io"

	"github.com/jeremyhahn/go-xmss/pkg/adapters/audit"
	"github.com/jeremyhahn/go-xmss/pkg/adapters/logger"
	"github.com/jeremyhahn/go-xmss/pkg/engine"
)

// DefaultName labels logs and metrics of keys created without WithName.
const DefaultName = "default"

// Option configures a Key.
type Option func(*Key)

// WithEngine sets the signing engine. The default is the reference engine.
func WithEngine(e engine.Engine) Option {
	return func(k *Key) {
		if e != nil {
			k.engine = e
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(k *Key) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithAuditor sets the audit trail receiving one event per operation. The
// default discards everything.
func WithAuditor(a audit.Auditor) Option {
	return func(k *Key) {
		if a != nil {
			k.auditor = a
		}
	}
}

// SignLimiter throttles signing per key name.
type SignLimiter interface {
	Allow(key string) bool
}

// WithSignLimiter refuses signatures beyond the limiter's rate with
// ErrRateLimited. Refused calls spend no index.
func WithSignLimiter(l SignLimiter) Option {
	return func(k *Key) {
		k.limiter = l
	}
}

// WithRandom sets the source of key generation randomness. The default is
// crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(k *Key) {
		if r != nil {
			k.random = r
		}
	}
}

// WithPartitions sets how many tree partitions CalculatePublicKey computes
// in parallel. Zero uses one per CPU.
func WithPartitions(n int) Option {
	return func(k *Key) {
		if n >= 0 {
			k.partitions = n
		}
	}
}

// WithName sets the key name used in logs and metrics.
func WithName(name string) Option {
	return func(k *Key) {
		if name != "" {
			k.name = name
		}
	}
}
