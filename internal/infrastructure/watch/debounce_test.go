package watch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() {
		count.Add(1)
	})
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}

	// Wait for debounce window to expire
	time.Sleep(100 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 callback invocation, got %d", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() {
		count.Add(1)
	})

	d.Trigger()
	d.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 callback invocations after stop, got %d", got)
	}
}

func TestKeyedDebouncer_CoalescesPerKey(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	record := func(key string) func() {
		return func() {
			mu.Lock()
			calls[key]++
			mu.Unlock()
		}
	}

	k := NewKeyedDebouncer(50 * time.Millisecond)
	defer k.Stop()

	for i := 0; i < 5; i++ {
		k.Schedule("p-100", record("p-100"))
		time.Sleep(10 * time.Millisecond)
	}
	k.Schedule("p-200", record("p-200"))

	if got := k.Pending(); got != 2 {
		t.Errorf("expected 2 pending keys, got %d", got)
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls["p-100"] != 1 || calls["p-200"] != 1 {
		t.Errorf("expected one call per key, got %v", calls)
	}
	if got := k.Pending(); got != 0 {
		t.Errorf("expected nothing pending, got %d", got)
	}
}

func TestKeyedDebouncer_LatestCallbackWins(t *testing.T) {
	var got atomic.Int32
	k := NewKeyedDebouncer(30 * time.Millisecond)
	defer k.Stop()

	k.Schedule("p-100", func() { got.Store(1) })
	k.Schedule("p-100", func() { got.Store(2) })

	time.Sleep(100 * time.Millisecond)
	if got.Load() != 2 {
		t.Errorf("expected the latest callback to run, got %d", got.Load())
	}
}

func TestKeyedDebouncer_Stop(t *testing.T) {
	var count atomic.Int32
	k := NewKeyedDebouncer(30 * time.Millisecond)

	k.Schedule("p-100", func() { count.Add(1) })
	k.Stop()
	k.Schedule("p-200", func() { count.Add(1) })

	time.Sleep(80 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Errorf("expected no callbacks after stop, got %d", got)
	}
}
