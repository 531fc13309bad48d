// Package clock abstracts the time operations the relay schedules on, so
// timeouts and hourly reports can be driven deterministically in tests.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine after d (real clock) or
	// synchronously inside Advance (fake clock).
	AfterFunc(d time.Duration, f func()) *Timer

	NewTicker(d time.Duration) *Ticker

	After(d time.Duration) <-chan time.Time
}

// Timer cancels a pending AfterFunc call
type Timer struct {
	stopFunc func() bool
}

// Stop reports whether the call was prevented from firing
func (t *Timer) Stop() bool { return t.stopFunc() }

type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stopFunc: t.Stop}
}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
