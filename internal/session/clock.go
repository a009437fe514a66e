package session

import "time"

// Clock abstracts wall-clock timers so lifecycle tests can advance virtual
// time instead of sleeping.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once after d elapses.
	AfterFunc(d time.Duration, f func()) Timer
	// TickFunc runs f repeatedly every d until the returned Ticker is stopped.
	TickFunc(d time.Duration, f func()) Ticker
	Sleep(d time.Duration)
}

type Timer interface {
	Stop() bool
}

type Ticker interface {
	Stop()
}

// realClock is the production Clock backed by the time package.
type realClock struct{}

// NewClock returns the wall-clock implementation.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
}

func (realClock) TickFunc(d time.Duration, f func()) Ticker {
	t := &realTicker{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				f()
			}
		}
	}()
	return t
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
	close(t.done)
}
