// Package watch provides filesystem watching and per-key debouncing.
package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events into a single callback invocation.
type Debouncer struct {
	window   time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
}

// NewDebouncer creates a debouncer with the given window duration.
func NewDebouncer(window time.Duration, callback func()) *Debouncer {
	return &Debouncer{
		window:   window,
		callback: callback,
	}
}

// Trigger resets the debounce timer. The callback fires after the window
// elapses with no further triggers.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.callback)
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
}

// KeyedDebouncer runs one debounced callback per key. Scheduling a key again
// within the window restarts that key's timer and replaces its callback;
// other keys are unaffected.
type KeyedDebouncer struct {
	window  time.Duration
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewKeyedDebouncer(window time.Duration) *KeyedDebouncer {
	return &KeyedDebouncer{
		window: window,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms the timer for key. fn runs on its own goroutine once the
// window has passed without another Schedule for the same key.
func (k *KeyedDebouncer) Schedule(key string, fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.stopped {
		return
	}
	if t, ok := k.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(k.window, func() {
		k.mu.Lock()
		current := k.timers[key] == t
		if current {
			delete(k.timers, key)
		}
		k.mu.Unlock()
		if current {
			fn()
		}
	})
	k.timers[key] = t
}

// Pending returns the number of keys waiting for their window to pass.
func (k *KeyedDebouncer) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.timers)
}

// Stop cancels every pending callback. Later Schedule calls are ignored.
func (k *KeyedDebouncer) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.stopped = true
	for key, t := range k.timers {
		t.Stop()
		delete(k.timers, key)
	}
}
