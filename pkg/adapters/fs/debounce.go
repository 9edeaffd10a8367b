package fs

import (
	"sync"
	"time"

	"github.com/aretw0/marl/pkg/core"
)

type pendingEvent struct {
	event core.Event
	fn    func(core.Event)
}

// debouncer coalesces event bursts per path. Editors fire several
// fsnotify events per save; only the last one within the quiet window is
// delivered.
type debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]pendingEvent
	wg      sync.WaitGroup
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]pendingEvent),
	}
}

// add schedules fn for the event's path after the quiet window. A newer
// event for the same path replaces the pending one and restarts the
// window.
func (d *debouncer) add(e core.Event, fn func(core.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	key := e.Path
	d.pending[key] = pendingEvent{event: e, fn: fn}

	if t, ok := d.timers[key]; ok {
		if t.Stop() {
			t.Reset(d.window)
		}
		// If Stop reports false the timer already fired and the in-flight
		// delivery picks up the event we just stored.
		return
	}

	d.wg.Add(1)
	d.timers[key] = time.AfterFunc(d.window, func() { d.fire(key) })
}

func (d *debouncer) fire(key string) {
	d.mu.Lock()
	p, ok := d.pending[key]
	delete(d.pending, key)
	delete(d.timers, key)
	stopped := d.stopped
	d.mu.Unlock()

	defer d.wg.Done()
	if !ok || stopped {
		return
	}
	p.fn(p.event)
}

// stopAndWait rejects further events, cancels unfired timers, and waits
// up to timeout for in-flight deliveries to finish.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			delete(d.timers, key)
			delete(d.pending, key)
			d.wg.Done()
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
}
