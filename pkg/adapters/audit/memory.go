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

package audit

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity bounds a MemoryAuditor created with a non-positive capacity.
const DefaultCapacity = 1024

// MemoryAuditor implements Auditor with a bounded in-memory buffer. When
// full, the oldest event is dropped.
//
// Note: All events are lost on process restart.
type MemoryAuditor struct {
	mu       sync.RWMutex
	events   []*Event
	capacity int
	dropped  int
}

var _ Auditor = (*MemoryAuditor)(nil)

// NewMemoryAuditor creates a new in-memory auditor holding at most
// capacity events
func NewMemoryAuditor(capacity int) *MemoryAuditor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryAuditor{
		events:   make([]*Event, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

// Record stores a copy of event, filling in ID and Timestamp when unset.
func (m *MemoryAuditor) Record(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == m.capacity {
		m.events[0] = nil
		m.events = m.events[1:]
		m.dropped++
	}
	m.events = append(m.events, &stored)
	return nil
}

// Events returns matching events, oldest first.
func (m *MemoryAuditor) Events(query *Query) []*Event {
	if query == nil {
		query = &Query{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*Event
	for _, event := range m.events {
		if !matches(event, query) {
			continue
		}
		results = append(results, event)
		if query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results
}

// Len returns the number of buffered events.
func (m *MemoryAuditor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Dropped returns how many events were evicted to respect the capacity.
func (m *MemoryAuditor) Dropped() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropped
}

// Clear removes all buffered events.
func (m *MemoryAuditor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = m.events[:0]
	m.dropped = 0
}

func matches(event *Event, query *Query) bool {
	if len(query.Types) > 0 && !slices.Contains(query.Types, event.Type) {
		return false
	}
	if len(query.Outcomes) > 0 && !slices.Contains(query.Outcomes, event.Outcome) {
		return false
	}
	if query.Key != "" && event.Key != query.Key {
		return false
	}
	if query.StartTime != nil && event.Timestamp.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && event.Timestamp.After(*query.EndTime) {
		return false
	}
	return true
}
