package scheduler

import (
	"sync"
	"time"
)

// Debouncer runs a keyed function once its key has been quiet for Delay.
// Scheduling a key again restarts its delay and replaces the function.
type Debouncer struct {
	mu      sync.Mutex
	sched   Scheduler
	delay   time.Duration
	pending map[string]*pendingCall
}

type pendingCall struct {
	handle Handle
	fn     func()
}

func NewDebouncer(sched Scheduler, delay time.Duration) *Debouncer {
	return &Debouncer{
		sched:   sched,
		delay:   delay,
		pending: make(map[string]*pendingCall),
	}
}

func (d *Debouncer) Delay(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[key]; ok {
		p.handle.Cancel()
	}
	p := &pendingCall{fn: fn}
	p.handle = d.sched.After(d.delay, func() {
		d.mu.Lock()
		current, ok := d.pending[key]
		if !ok || current != p {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = p
}

// Flush runs the pending function for key now, if any.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	p.handle.Cancel()
	p.fn()
	return true
}

// Cancel drops the pending function for key without running it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.handle.Cancel()
		delete(d.pending, key)
	}
}
