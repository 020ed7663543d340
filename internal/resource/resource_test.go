package resource

import (
	"context"
	"testing"
	"time"
)

func TestSampleTriggersFlushPastCeiling(t *testing.T) {
	flushed := make(chan struct{}, 1)
	m := New(Config{
		MemoryMonitorInterval: time.Millisecond,
		GCCooldown:            time.Millisecond,
		HeapCriticalPct:       0, // New replaces 0 with the 0.75 default
		CeilingBytes:          1, // any real heap alloc exceeds 75% of 1 byte
	}, func() {
		select {
		case flushed <- struct{}{}:
		default:
		}
	})

	m.sample()

	select {
	case <-flushed:
	default:
		t.Fatal("expected onFlush to run when heap usage exceeds the ceiling")
	}
}

func TestSampleDoesNotFlushBelowCeiling(t *testing.T) {
	flushed := false
	m := New(Config{
		HeapCriticalPct: 0.99,
		CeilingBytes:    1 << 40, // 1 TiB, far above any real heap usage
	}, func() { flushed = true })

	m.sample()

	if flushed {
		t.Fatal("did not expect onFlush below the critical percentage")
	}
}

func TestGCCooldownSuppressesRepeatedFlush(t *testing.T) {
	count := 0
	m := New(Config{
		HeapCriticalPct: 0,
		CeilingBytes:    1,
		GCCooldown:      time.Hour,
	}, func() { count++ })

	m.sample()
	m.sample()

	if count != 1 {
		t.Fatalf("expected exactly one flush within the cooldown window, got %d", count)
	}
}

func TestStartDerivesCeilingFromSystemMemory(t *testing.T) {
	m := New(Config{MemoryMonitorInterval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Close()

	m.mu.Lock()
	ceiling := m.ceiling
	m.mu.Unlock()

	if ceiling == 0 {
		t.Fatal("expected Start to derive a non-zero ceiling")
	}
}

func TestUtilizationReflectsCeiling(t *testing.T) {
	m := New(Config{CeilingBytes: 1 << 40}, nil)
	u := m.Utilization()
	if u < 0 || u > 1 {
		t.Fatalf("utilization out of expected range: %f", u)
	}
}

func TestExhaustedTripsWhenCeilingStaysOverAfterGC(t *testing.T) {
	m := New(Config{
		HeapCriticalPct: 0,
		CeilingBytes:    1, // no amount of GC brings real heap usage under 1 byte
		GCCooldown:      time.Millisecond,
	}, nil)

	if m.Exhausted() {
		t.Fatal("did not expect Exhausted before any sample")
	}

	m.sample()

	if !m.Exhausted() {
		t.Fatal("expected Exhausted after a sample whose ceiling GC cannot satisfy")
	}
}

func TestExhaustedClearsOnceUnderCeiling(t *testing.T) {
	m := New(Config{
		HeapCriticalPct: 0,
		CeilingBytes:    1,
		GCCooldown:      time.Millisecond,
	}, nil)
	m.sample()
	if !m.Exhausted() {
		t.Fatal("expected Exhausted to be set by the first sample")
	}

	m.mu.Lock()
	m.ceiling = 1 << 40
	m.mu.Unlock()
	m.sample()

	if m.Exhausted() {
		t.Fatal("expected Exhausted to clear once usage falls back under the ceiling")
	}
}
