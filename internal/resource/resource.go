// Package resource implements the heap-ceiling monitor spec.md §5's last
// paragraph describes: a ticker samples heap residency against a
// configured ceiling, and past the critical percentage it fires a
// best-effort cache-flush callback and requests a runtime GC.
package resource

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// Config mirrors the recognized resource.* options in spec.md §6.
type Config struct {
	GCCooldown            time.Duration
	MemoryMonitorInterval time.Duration
	HeapCriticalPct       float64
	// CeilingBytes is the configured heap ceiling. If zero, the monitor
	// derives one from total system memory via gopsutil at Start time.
	CeilingBytes uint64
}

// Monitor samples heap residency on a ticker and triggers a cache-flush
// callback when usage crosses HeapCriticalPct of the ceiling.
type Monitor struct {
	cfg      Config
	onFlush  func()
	lastGC   atomic.Int64 // unix nano of last GC request
	tripped  atomic.Bool  // heap still over ceiling after the last GC attempt
	mu       sync.Mutex
	ceiling  uint64
	stop     chan struct{}
	stopped  sync.Once
}

// New constructs a Monitor. onFlush is called (at most once per
// GCCooldown) when heap usage exceeds the configured ceiling percentage;
// it may be nil.
func New(cfg Config, onFlush func()) *Monitor {
	if cfg.MemoryMonitorInterval <= 0 {
		cfg.MemoryMonitorInterval = 10 * time.Second
	}
	if cfg.GCCooldown <= 0 {
		cfg.GCCooldown = 30 * time.Second
	}
	if cfg.HeapCriticalPct <= 0 {
		cfg.HeapCriticalPct = 0.75
	}
	// A configured ceiling is usable immediately, without waiting for
	// Start (which only needs to run for the sysmem-derived fallback).
	// This lets tests call Sample directly against a fixed ceiling.
	return &Monitor{cfg: cfg, onFlush: onFlush, stop: make(chan struct{}), ceiling: cfg.CeilingBytes}
}

// Start derives the heap ceiling (from config, or total system memory via
// gopsutil) and begins the sampling ticker on its own goroutine. Callers
// stop it via Close.
func (m *Monitor) Start(ctx context.Context) error {
	ceiling := m.cfg.CeilingBytes
	if ceiling == 0 {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			slog.Warn("resource monitor: falling back to a conservative ceiling, total memory read failed", "error", err)
			ceiling = 1 << 30 // 1 GiB conservative fallback
		} else {
			ceiling = vm.Total
		}
	}
	m.mu.Lock()
	m.ceiling = ceiling
	m.mu.Unlock()

	go m.loop(ctx)
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MemoryMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// Sample runs one heap check immediately instead of waiting for the next
// ticker tick. Exposed for callers (and tests) that want an up-to-date
// Exhausted reading without the MemoryMonitorInterval delay.
func (m *Monitor) Sample() { m.sample() }

func (m *Monitor) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	ceiling := m.ceiling
	m.mu.Unlock()
	if ceiling == 0 {
		return
	}

	pct := float64(stats.HeapAlloc) / float64(ceiling)
	if pct <= m.cfg.HeapCriticalPct {
		if m.tripped.CompareAndSwap(true, false) {
			slog.Info("resource monitor: heap back under ceiling", "heap_alloc", stats.HeapAlloc, "ceiling", ceiling, "pct", pct)
		}
		return
	}

	slog.Warn("resource monitor: heap critical", "heap_alloc", stats.HeapAlloc, "ceiling", ceiling, "pct", pct)

	last := m.lastGC.Load()
	now := time.Now().UnixNano()
	if now-last < m.cfg.GCCooldown.Nanoseconds() {
		return
	}
	m.lastGC.Store(now)

	if m.onFlush != nil {
		m.onFlush()
	}
	runtime.GC()

	runtime.ReadMemStats(&stats)
	if float64(stats.HeapAlloc)/float64(ceiling) > m.cfg.HeapCriticalPct {
		if m.tripped.CompareAndSwap(false, true) {
			slog.Error("resource monitor: heap still critical after GC, aborting ingestion", "heap_alloc", stats.HeapAlloc, "ceiling", ceiling)
		}
	} else {
		m.tripped.Store(false)
	}
}

// Exhausted reports whether the last sample found heap usage still over
// the ceiling after a GC attempt. Callers doing bulk allocation (the
// ingestion pipeline) should abort cleanly rather than push further past
// the configured ceiling.
func (m *Monitor) Exhausted() bool { return m.tripped.Load() }

// Utilization returns current heap usage as a fraction of the configured
// ceiling.
func (m *Monitor) Utilization() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.mu.Lock()
	ceiling := m.ceiling
	m.mu.Unlock()
	if ceiling == 0 {
		return 0
	}
	return float64(stats.HeapAlloc) / float64(ceiling)
}

// Close stops the sampling goroutine.
func (m *Monitor) Close() {
	m.stopped.Do(func() { close(m.stop) })
}
