package scheduler

import (
	"sync"
	"time"
)

// Fake is a manually advanced Scheduler. Tasks run on the goroutine calling
// Advance.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks map[int]*fakeTask
}

type fakeTask struct {
	id    int
	at    time.Time
	every time.Duration
	fn    func()
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start, tasks: make(map[int]*fakeTask)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(d time.Duration, fn func()) Handle {
	return f.add(d, d, fn)
}

func (f *Fake) After(d time.Duration, fn func()) Handle {
	return f.add(d, 0, fn)
}

func (f *Fake) add(d, every time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTask{id: f.seq, at: f.now.Add(d), every: every, fn: fn}
	f.tasks[t.id] = t
	return fakeHandle{f: f, id: t.id}
}

// Pending is the number of scheduled tasks that have not been cancelled or
// fired.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// Advance moves the clock forward by d, firing due tasks in time order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var next *fakeTask
		for _, t := range f.tasks {
			if t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
				next = t
			}
		}
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.at
		if next.every > 0 {
			next.at = next.at.Add(next.every)
		} else {
			delete(f.tasks, next.id)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

type fakeHandle struct {
	f  *Fake
	id int
}

func (h fakeHandle) Cancel() {
	h.f.mu.Lock()
	delete(h.f.tasks, h.id)
	h.f.mu.Unlock()
}
