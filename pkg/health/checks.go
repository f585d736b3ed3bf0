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

package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
	"github.com/jeremyhahn/go-xmss/pkg/xmss"
)

// KeyCheck reports the signing readiness of key. An unusable or exhausted
// key is unhealthy. A key without a public key, or with fewer than lowWater
// signatures remaining, is degraded. The check reads the key's last
// published state and does not wait for a running key operation.
func KeyCheck(key *xmss.Key, lowWater uint64) CheckFunc {
	return func(ctx context.Context) CheckResult {
		result := CheckResult{Name: "key:" + key.Name()}

		remaining := key.SignaturesRemaining()
		switch state := key.State(); {
		case state == xmss.StateInvalidated:
			result.Status = StatusUnhealthy
			result.Message = "key handle invalidated, re-import required"
		case state == xmss.StateUninitialized:
			result.Status = StatusUnhealthy
			result.Message = "no private key loaded"
		case remaining == 0:
			result.Status = StatusUnhealthy
			result.Message = "signature capacity exhausted"
		case state != xmss.StatePublicKeyReady:
			result.Status = StatusDegraded
			result.Message = "public key not calculated"
		case remaining < lowWater:
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("%d signatures remaining (low water %d)", remaining, lowWater)
		default:
			result.Status = StatusHealthy
			result.Message = fmt.Sprintf("%d signatures remaining", remaining)
		}
		return result
	}
}

// StoreCheck reports whether store is reachable and holds a stateful part.
func StoreCheck(name string, store storage.StateStore) CheckFunc {
	return func(ctx context.Context) CheckResult {
		result := CheckResult{Name: "store:" + name, Status: StatusHealthy}

		data, err := store.Load(types.PrivateStateful)
		switch {
		case err == nil:
			storage.Zeroize(data)
			result.Message = "stateful part present"
		case errors.Is(err, storage.ErrNotFound):
			result.Status = StatusUnhealthy
			result.Message = "no stateful part"
		default:
			result.Status = StatusUnhealthy
			result.Message = "store unreachable"
			result.Error = err.Error()
		}
		return result
	}
}
