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

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewResourceCollector(t *testing.T) {
	collector := NewResourceCollector(context.Background(), time.Second)
	defer collector.Stop()

	if collector.interval != time.Second {
		t.Errorf("Expected interval %v, got %v", time.Second, collector.interval)
	}
	if collector.started.IsZero() {
		t.Error("Expected started time to be set")
	}
	if collector.budgets == nil {
		t.Error("Expected budget map to be initialized")
	}
}

func TestResourceCollectorCollect(t *testing.T) {
	Enable()
	Goroutines.Set(0)
	SignaturesRemaining.Reset()

	collector := NewResourceCollector(context.Background(), time.Minute)
	defer collector.Stop()

	remaining := uint64(1024)
	collector.Track("partition-a", func() uint64 { return remaining })
	collector.collect()

	if got := testutil.ToFloat64(Goroutines); got <= 0 {
		t.Errorf("Expected goroutine gauge to be set, got %v", got)
	}
	if got := testutil.ToFloat64(SignaturesRemaining.WithLabelValues("partition-a")); got != 1024 {
		t.Errorf("Expected tracked budget 1024, got %v", got)
	}

	remaining = 1000
	collector.collect()
	if got := testutil.ToFloat64(SignaturesRemaining.WithLabelValues("partition-a")); got != 1000 {
		t.Errorf("Expected tracked budget 1000, got %v", got)
	}

	collector.Untrack("partition-a")
	if count := testutil.CollectAndCount(SignaturesRemaining); count != 0 {
		t.Errorf("Expected gauge removed after Untrack, got %d series", count)
	}
}

func TestResourceCollectorStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	collector := NewResourceCollector(ctx, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		collector.Start()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected collector to stop after context cancellation")
	}
}

func TestCollectOnceWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	MemoryAllocBytes.Set(0)
	CollectOnce()
	if got := testutil.ToFloat64(MemoryAllocBytes); got != 0 {
		t.Errorf("Expected no collection while disabled, got %v", got)
	}

	Enable()
	CollectOnce()
	if got := testutil.ToFloat64(MemoryAllocBytes); got == 0 {
		t.Error("Expected memory gauge after CollectOnce")
	}
}

func TestStartResourceCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := StartResourceCollector(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	collector.Stop()

	if got := testutil.ToFloat64(UptimeSeconds); got <= 0 {
		t.Errorf("Expected uptime to be published, got %v", got)
	}
}
