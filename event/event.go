// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package event implements the C10 event lifecycle: a single trigger's
// identifying fields, its set of feedback runners, and the aggregation
// logic that decides when the whole event has ended and whether a
// not-yet-expired loop/bounded event should re-run its feedbacks.
package event

import (
	"time"

	"github.com/droidian/feedbackd/feedback"
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
)

// Event is one (app_id, event_name) trigger's live state: the runners it
// drives and the bookkeeping needed to decide when it has fully ended.
type Event struct {
	ID        types.EventID
	AppID     string
	EventName string
	Sender    string
	Timeout   int32 // -1 oneshot, 0 loop, >0 bounded seconds

	loop    *sched.Loop
	log     *flog.Logger
	onEnded func(reason types.EndReason)

	runners []*feedback.Runner
	ended   map[*feedback.Runner]bool

	expired  bool
	reason   types.EndReason
	finished bool
	timer    *sched.Timer
}

// New constructs an Event. timeout is normalized per invariant I5 before
// storage. onEnded is invoked exactly once, from the event loop, once every
// feedback has ended and no further re-run will happen.
func New(id types.EventID, appID, eventName, sender string, timeout int32, loop *sched.Loop, log *flog.Logger, onEnded func(reason types.EndReason)) *Event {
	return &Event{
		ID:        id,
		AppID:     appID,
		EventName: eventName,
		Sender:    sender,
		Timeout:   types.NormalizeTimeout(timeout),
		loop:      loop,
		log:       log,
		onEnded:   onEnded,
		ended:     map[*feedback.Runner]bool{},
		reason:    types.ReasonNatural,
	}
}

// AddFeedback builds a Runner for fb against devices and appends it to this
// event's feedback list, wiring its completion back into the event's
// aggregation logic. Must be called before RunFeedbacks; feedbacks start in
// the order they were added (spec.md §5 ordering guarantee).
func (e *Event) AddFeedback(fb feedback.Feedback, devices *feedback.Devices) *feedback.Runner {
	var r *feedback.Runner
	r = feedback.NewRunner(fb, devices, e.loop, e.log, func() { e.feedbackEnded(r) })
	e.runners = append(e.runners, r)
	return r
}

// Feedbacks returns the runners this event owns, in the order they were
// added.
func (e *Event) Feedbacks() []*feedback.Runner {
	return e.runners
}

// RunFeedbacks arms the event's timeout (if positive) and starts every
// feedback in order. Must be called on the event loop goroutine.
func (e *Event) RunFeedbacks() {
	if e.Timeout > 0 {
		e.timer = e.loop.After(time.Duration(e.Timeout)*time.Second, e.onExpire)
	}
	for _, r := range e.runners {
		r.Run()
	}
}

func (e *Event) onExpire() {
	e.expired = true
	e.reason = types.ReasonExpired
}

// feedbackEnded implements the re-run/finish decision spec.md §4.C10
// describes for each of the three timeout regimes: oneshot (-1), loop (0),
// and bounded (>0). It takes the "later, more consistent" variant: a timer
// arms expired, and a feedback is re-run iff !expired && reason==Natural.
func (e *Event) feedbackEnded(r *feedback.Runner) {
	if e.finished {
		return
	}

	switch {
	case e.Timeout == -1:
		e.markEnded(r)
	default: // Timeout == 0 (loop) or Timeout > 0 (bounded)
		if e.expired || e.reason != types.ReasonNatural {
			e.markEnded(r)
			return
		}
		r.Run()
	}
}

func (e *Event) markEnded(r *feedback.Runner) {
	e.ended[r] = true
	if len(e.ended) >= len(e.runners) {
		e.finish()
	}
}

// EndFeedbacks implements the explicit-end path: mark the reason as
// Explicit and stop every feedback. Each Stop triggers its runner's own
// completion callback, which this event counts toward the all-ended check.
func (e *Event) EndFeedbacks() {
	e.reason = types.ReasonExplicit
	if e.timer != nil {
		e.timer.Stop()
	}
	for _, r := range e.runners {
		r.End()
	}
}

func (e *Event) finish() {
	if e.finished {
		return
	}
	e.finished = true
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.onEnded != nil {
		e.onEnded(e.reason)
	}
}
