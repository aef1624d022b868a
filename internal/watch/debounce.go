package watch

import (
	"sync"
	"time"
)

// debouncer coalesces repeated events for the same path: fire runs once per
// path after delay has passed without a new event for it.
type debouncer struct {
	delay time.Duration
	fire  func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration, fire func(string)) *debouncer {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &debouncer{delay: delay, fire: fire, pending: make(map[string]*time.Timer)}
}

func (d *debouncer) add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(path)
}

func (d *debouncer) addLocked(path string) {
	if d.stopped {
		return
	}
	// A timer that already fired may be waiting on mu; replacing it makes
	// that callback see a different timer and bail out.
	if t, ok := d.pending[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.pending[path] != t {
			d.mu.Unlock()
			return
		}
		delete(d.pending, path)
		d.mu.Unlock()
		d.fire(path)
	})
	d.pending[path] = t
}

// stop cancels every pending event. Events already firing are not waited for.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, t := range d.pending {
		t.Stop()
		delete(d.pending, path)
	}
}

func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
