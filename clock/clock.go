/*
	Copyright (c) 2015-2016 Christopher Young
	Distributable under the terms of The "BSD New"" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	clock.go: Monotonic clock built on time.Ticker - necessary because of
	real time clock changes on RPi, which has no battery-backed RTC.
*/

// Package clock provides time sources for the measurement pipeline.
package clock

import (
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Monotonic is a clock that only moves forward, driven by a ticker
// instead of the wall clock. On boards without an RTC the system time
// jumps when NTP first syncs; duplicate detection and recovery
// deadlines must not see that jump.
type Monotonic struct {
	Milliseconds uint64
	Time         time.Time
	ticker       *time.Ticker
}

// NewMonotonic starts the clock at the zero time.
func NewMonotonic() *Monotonic {
	m := &Monotonic{Milliseconds: 0, Time: time.Time{}, ticker: time.NewTicker(10 * time.Millisecond)}
	go m.watcher()
	return m
}

func (m *Monotonic) watcher() {
	for {
		<-m.ticker.C
		m.Milliseconds += 10
		m.Time = m.Time.Add(10 * time.Millisecond)
	}
}

// Now returns the current monotonic time.
func (m *Monotonic) Now() time.Time {
	return m.Time
}

// Since reports the time elapsed since t on the monotonic timeline.
func (m *Monotonic) Since(t time.Time) time.Duration {
	return m.Time.Sub(t)
}

// HumanizeTime renders t relative to now, e.g. "3 minutes ago".
func (m *Monotonic) HumanizeTime(t time.Time) string {
	return humanize.RelTime(t, m.Time, "ago", "from now")
}

// Unix returns whole seconds since clock start.
func (m *Monotonic) Unix() int64 {
	return int64(m.Since(time.Time{}).Seconds())
}

// System is a Clock backed by the operating system time.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}
