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

// Package audit provides an adapter interface for recording the lifecycle
// of stateful keys, allowing calling applications to keep their own trail
// of which operations consumed or moved signing capacity.
//
// This follows the same pattern as the logger adapter: a small interface
// applications can implement, plus an in-memory default.
package audit

import (
	"context"
	"time"
)

// EventType categorizes an audit event
type EventType string

const (
	EventKeyGenerate   EventType = "key.generate"
	EventKeyImport     EventType = "key.import"
	EventKeyPublicKey  EventType = "key.calculate_public_key"
	EventKeyReserve    EventType = "key.reserve"
	EventKeySign       EventType = "key.sign"
	EventKeyVerify     EventType = "key.verify"
	EventKeySplit      EventType = "key.split"
	EventKeyMerge      EventType = "key.merge"
	EventKeyPurge      EventType = "key.purge"
	EventKeyInvalidate EventType = "key.invalidate"
)

// EventOutcome indicates the result of an operation
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
)

// Event represents a single audit entry
type Event struct {
	// ID is a unique identifier for this event
	ID string

	// Timestamp when the event occurred
	Timestamp time.Time

	// Type categorizes the event
	Type EventType

	// Outcome indicates whether the operation succeeded
	Outcome EventOutcome

	// Key is the name of the key handle
	Key string

	// OperationID correlates the event with log lines of the same operation
	OperationID string

	// Remaining is the key's signature budget after the operation
	Remaining uint64

	// Error holds the failure message, if any
	Error string

	// Metadata stores additional context
	Metadata map[string]any
}

// Auditor records audit events.
//
// Implementations must be safe for concurrent use. A failing Record never
// fails the audited operation.
type Auditor interface {
	Record(ctx context.Context, event *Event) error
}

// Query filters recorded events. Zero fields match everything.
type Query struct {
	Types     []EventType
	Outcomes  []EventOutcome
	Key       string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// NoopAuditor discards every event.
type NoopAuditor struct{}

// NewNoop returns an Auditor that discards every event.
func NewNoop() Auditor {
	return NoopAuditor{}
}

func (NoopAuditor) Record(context.Context, *Event) error { return nil }
