// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package sched provides the single-threaded cooperative event loop the
// daemon is built around (spec.md §5: "a single event loop drives all
// timers, bus I/O, udev events, and sound-playback completions"). Go has no
// built-in single-threaded runtime, so every asynchronous source (timers,
// udev, D-Bus, sound callbacks) posts a closure onto one channel that a
// single goroutine drains serially - the effect is the same ordering and
// data-race-freedom the original's GLib main context gave for free.
package sched

import "time"

// Loop serializes work from arbitrarily many goroutines onto one consumer.
// Every mutation of manager/event/feedback state happens inside a function
// run by Loop, so none of those packages need locks.
type Loop struct {
	work chan func()
}

// New creates a Loop. The work channel is buffered generously so that
// posting from a timer or udev callback never blocks its own goroutine
// waiting for the loop to catch up.
func New() *Loop {
	return &Loop{work: make(chan func(), 256)}
}

// Post queues f to run on the loop goroutine. Safe to call from any
// goroutine, including timer callbacks and bus handlers.
func (l *Loop) Post(f func()) {
	l.work <- f
}

// Run drains posted work until stop is closed. Intended to be the only
// goroutine that ever touches daemon state directly.
func (l *Loop) Run(stop <-chan struct{}) {
	for {
		select {
		case f := <-l.work:
			f()
		case <-stop:
			return
		}
	}
}

// Timer wraps a time.Timer whose fire is marshaled back onto the Loop.
type Timer struct {
	t *time.Timer
}

// Stop cancels the timer; see time.Timer.Stop for the race caveat (a
// concurrent fire may already be queued on the loop - callers must still
// tolerate a stray callback after Stop, exactly as with time.Timer).
func (t *Timer) Stop() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}

// After schedules f to run on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, f func()) *Timer {
	return &Timer{t: time.AfterFunc(d, func() { l.Post(f) })}
}
