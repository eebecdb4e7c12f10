// Package scheduler hides timers behind an interface so periodic work can be
// driven by a fake clock in tests.
package scheduler

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task. Cancel is idempotent.
type Handle interface {
	Cancel()
}

type Scheduler interface {
	// Every runs fn every d until cancelled. Runs never overlap.
	Every(d time.Duration, fn func()) Handle
	// After runs fn once after d unless cancelled first.
	After(d time.Duration, fn func()) Handle
	Now() time.Time
}

type realScheduler struct{}

func New() Scheduler { return realScheduler{} }

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) Every(d time.Duration, fn func()) Handle {
	h := &tickerHandle{stop: make(chan struct{}), done: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer close(h.done)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				// A tick and a stop can be ready together.
				select {
				case <-h.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

func (realScheduler) After(d time.Duration, fn func()) Handle {
	return timerHandle{time.AfterFunc(d, fn)}
}

type tickerHandle struct {
	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// Cancel waits for a run in progress to finish, so it must not be called from
// inside the task itself.
func (h *tickerHandle) Cancel() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() { h.t.Stop() }
