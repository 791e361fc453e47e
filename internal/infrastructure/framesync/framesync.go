// Package framesync provides the per-frame scheduling primitive that paces
// the scan loop.
package framesync

import (
	"time"
)

const DefaultFPS = 30

// Source delivers one tick per rendered frame. The returned function stops the
// subscription.
type Source interface {
	Subscribe() (<-chan time.Time, func())
}

// Ticker paces subscribers at a fixed display refresh rate.
type Ticker struct {
	interval time.Duration
}

func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Ticker{interval: time.Second / time.Duration(fps)}
}

func (t *Ticker) Interval() time.Duration {
	return t.interval
}

func (t *Ticker) Subscribe() (<-chan time.Time, func()) {
	tk := time.NewTicker(t.interval)
	return tk.C, tk.Stop
}

const manualTickTimeout = time.Second

// Manual is driven by the host: every Tick hands one frame to the subscriber.
// Ticks are unbuffered, so a Tick returning means the previous cycle finished.
type Manual struct {
	ch chan time.Time
}

func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time)}
}

func (m *Manual) Subscribe() (<-chan time.Time, func()) {
	return m.ch, func() {}
}

// Tick reports whether a subscriber took the frame within a second.
func (m *Manual) Tick() bool {
	timer := time.NewTimer(manualTickTimeout)
	defer timer.Stop()
	select {
	case m.ch <- time.Now():
		return true
	case <-timer.C:
		return false
	}
}

// TickN delivers n frames and returns how many were taken.
func (m *Manual) TickN(n int) int {
	taken := 0
	for range n {
		if !m.Tick() {
			break
		}
		taken++
	}
	return taken
}
