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
	"runtime"
	"sync"
	"time"
)

// BudgetFunc reports the remaining signature budget of a key.
type BudgetFunc func() uint64

// ResourceCollector periodically collects and updates resource metrics
// such as goroutine count, memory usage, and GC statistics, along with the
// signature budget of every tracked key.
type ResourceCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	started  time.Time

	mu      sync.Mutex
	budgets map[string]BudgetFunc
}

// NewResourceCollector creates a new resource collector that updates metrics
// at the specified interval.
//
// Example:
//
//	collector := metrics.NewResourceCollector(ctx, 30*time.Second)
//	go collector.Start()
//	defer collector.Stop()
func NewResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		started:  time.Now(),
		budgets:  make(map[string]BudgetFunc),
	}
}

// Track publishes the budget of key on every collection until Untrack.
func (rc *ResourceCollector) Track(key string, budget BudgetFunc) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.budgets[key] = budget
}

// Untrack stops publishing the budget of key and removes its gauge.
func (rc *ResourceCollector) Untrack(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.budgets, key)
	SignaturesRemaining.DeleteLabelValues(key)
}

// Start begins collecting resource metrics at the configured interval.
// This method blocks and should typically be run in a goroutine.
//
// It will continue collecting metrics until Stop() is called or the parent context is cancelled.
func (rc *ResourceCollector) Start() {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	// Collect initial metrics immediately
	rc.collect()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

// Stop halts the resource collector gracefully.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

// collect gathers and updates all resource metrics.
func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}
	collectRuntime()
	UptimeSeconds.Set(time.Since(rc.started).Seconds())

	rc.mu.Lock()
	defer rc.mu.Unlock()
	for key, budget := range rc.budgets {
		SignaturesRemaining.WithLabelValues(key).Set(float64(budget()))
	}
}

// CollectOnce performs a single collection of runtime metrics outside of
// the periodic loop.
func CollectOnce() {
	if !IsEnabled() {
		return
	}
	collectRuntime()
}

func collectRuntime() {
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	MemoryAllocBytes.Set(float64(memStats.Alloc))
	MemorySysBytes.Set(float64(memStats.Sys))
	GCPauseTotalSeconds.Set(float64(memStats.PauseTotalNs) / 1e9)
}

// StartResourceCollector is a convenience function that creates and starts a resource collector.
// It returns the collector instance for optional lifecycle management.
//
// Example:
//
//	collector := metrics.StartResourceCollector(ctx, 30*time.Second)
//	// Collector runs in background, stops when ctx is cancelled
func StartResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collector := NewResourceCollector(ctx, interval)
	go collector.Start()
	return collector
}
