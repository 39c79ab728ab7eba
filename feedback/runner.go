// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

package feedback

import (
	"time"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
	"github.com/google/uuid"
)

// defaultRumbleMs is the DEFAULT rumble length spec.md §4.C7 falls back to
// when the requested duration/count/pause combination degenerates to a
// non-positive per-rumble length.
const defaultRumbleMs = 1000

// Runner drives one live instance of a Feedback against the Devices it was
// constructed with. It is the "transient running state with a
// backend-specific handle" spec.md §3 describes; Feedback itself stays
// immutable.
type Runner struct {
	fb      Feedback
	devices *Devices
	loop    *sched.Loop
	log     *flog.Logger
	onEnded func()

	ended       bool
	stopTimer   *sched.Timer
	playbackID  string

	// VibraRumble bookkeeping.
	vibraRemaining uint32
	vibraPeriodMs  uint32
	vibraRumbleMs  uint32
}

// NewRunner builds a Runner for fb. onEnded is invoked exactly once per Run,
// from the event loop, when the feedback completes or is stopped.
func NewRunner(fb Feedback, devices *Devices, loop *sched.Loop, log *flog.Logger, onEnded func()) *Runner {
	return &Runner{
		fb:         fb,
		devices:    devices,
		loop:       loop,
		log:        log,
		onEnded:    onEnded,
		playbackID: uuid.NewString(),
	}
}

// Feedback returns the declarative description this Runner was built from.
func (r *Runner) Feedback() Feedback {
	return r.fb
}

// IsAvailable reports whether the backend this feedback's kind needs is
// present. The manager consults this before ever constructing a Runner
// (invariant I4); Runner re-checks so a Runner can never silently no-op.
func (r *Runner) IsAvailable() bool {
	switch r.fb.Kind {
	case types.KindDummy:
		return true
	case types.KindVibraRumble, types.KindVibraPeriodic:
		return r.devices.Vibra != nil
	case types.KindSound:
		return r.devices.Sound != nil
	case types.KindLed:
		return r.devices.Leds != nil
	default:
		return false
	}
}

// Run starts the feedback. Must be called on the event loop goroutine.
func (r *Runner) Run() {
	r.ended = false
	switch r.fb.Kind {
	case types.KindDummy:
		r.runDummy()
	case types.KindVibraRumble:
		r.runVibraRumble()
	case types.KindVibraPeriodic:
		r.runVibraPeriodic()
	case types.KindSound:
		r.runSound()
	case types.KindLed:
		r.runLed()
	}
}

// End stops the feedback immediately (explicit end or event timeout/loop
// re-run boundary). Must be called on the event loop goroutine.
func (r *Runner) End() {
	r.stopTimer.Stop()
	switch r.fb.Kind {
	case types.KindDummy:
		r.emitEnded()
	case types.KindVibraRumble, types.KindVibraPeriodic:
		if r.devices.Vibra != nil {
			if err := r.devices.Vibra.Stop(); err != nil {
				r.log.Errorf("vibra stop for %s: %v", r.fb.EventName, err)
			}
		}
		r.emitEnded()
	case types.KindSound:
		if r.devices.Sound != nil {
			// on-done still fires per spec.md §4.C5; do not emitEnded here.
			r.devices.Sound.Stop(r.playbackID)
		} else {
			r.emitEnded()
		}
	case types.KindLed:
		if r.devices.Leds != nil {
			if err := r.devices.Leds.Stop(r.fb.Color); err != nil {
				r.log.Errorf("led stop for %s: %v", r.fb.EventName, err)
			}
		}
		r.emitEnded()
	}
}

func (r *Runner) emitEnded() {
	if r.ended {
		return
	}
	r.ended = true
	if r.onEnded != nil {
		r.onEnded()
	}
}

func (r *Runner) runDummy() {
	if r.fb.DurationMs == 0 {
		// Posted rather than called inline: a loop-mode event re-runs its
		// feedback synchronously from within emitEnded's callback chain, so
		// calling emitEnded directly here would recurse Run->runDummy->
		// emitEnded->Run forever without ever returning through the loop.
		r.loop.Post(r.emitEnded)
		return
	}
	r.stopTimer = r.loop.After(time.Duration(r.fb.DurationMs)*time.Millisecond, r.emitEnded)
}

// runVibraRumble implements spec.md §4.C7's VibraRumble run algorithm:
// rumble_ms = duration/count - pause; degenerate inputs fall back to the
// (1000, 0, 1) default. The first rumble uploads a fresh effect; the
// remaining count-1 replay the same effect id on a period timer.
func (r *Runner) runVibraRumble() {
	fb := r.fb
	count := fb.Count
	if count == 0 {
		count = 1
	}
	rumbleMs := int64(fb.DurationMs/count) - int64(fb.PauseMs)
	pauseMs := fb.PauseMs
	if rumbleMs <= 0 {
		rumbleMs = defaultRumbleMs
		pauseMs = 0
		count = 1
	}
	r.vibraRumbleMs = uint32(rumbleMs)
	r.vibraPeriodMs = uint32(rumbleMs) + pauseMs
	r.vibraRemaining = count - 1

	if r.devices.Vibra != nil {
		if err := r.devices.Vibra.Rumble(r.vibraRumbleMs, true); err != nil {
			r.log.Errorf("vibra rumble for %s: %v", fb.EventName, err)
		}
	}
	r.scheduleNextRumble()
}

func (r *Runner) scheduleNextRumble() {
	if r.vibraRemaining == 0 {
		r.stopTimer = r.loop.After(time.Duration(r.vibraRumbleMs)*time.Millisecond, r.emitEnded)
		return
	}
	r.stopTimer = r.loop.After(time.Duration(r.vibraPeriodMs)*time.Millisecond, func() {
		r.vibraRemaining--
		if r.devices.Vibra != nil {
			if err := r.devices.Vibra.Rumble(r.vibraRumbleMs, false); err != nil {
				r.log.Errorf("vibra rumble repeat for %s: %v", r.fb.EventName, err)
			}
		}
		r.scheduleNextRumble()
	})
}

func (r *Runner) runVibraPeriodic() {
	fb := r.fb
	if r.devices.Vibra != nil {
		if err := r.devices.Vibra.Periodic(fb.DurationMs, fb.Magnitude, fb.FadeInLevel, fb.FadeInTimeMs); err != nil {
			r.log.Errorf("vibra periodic for %s: %v", fb.EventName, err)
		}
	}
	r.stopTimer = r.loop.After(time.Duration(fb.DurationMs)*time.Millisecond, func() {
		if r.devices.Vibra != nil {
			if err := r.devices.Vibra.Stop(); err != nil {
				r.log.Errorf("vibra stop for %s: %v", fb.EventName, err)
			}
		}
		r.emitEnded()
	})
}

func (r *Runner) runSound() {
	if r.devices.Sound == nil {
		r.loop.Post(r.emitEnded)
		return
	}
	if err := r.devices.Sound.Play(r.playbackID, r.fb.Effect, r.emitEnded); err != nil {
		r.log.Errorf("sound play for %s: %v", r.fb.EventName, err)
		r.loop.Post(r.emitEnded)
	}
}

func (r *Runner) runLed() {
	if r.devices.Leds == nil {
		r.loop.Post(r.emitEnded)
		return
	}
	if err := r.devices.Leds.StartPeriodic(r.fb.Color, r.fb.MaxBrightnessPct, r.fb.FrequencyMilliHz); err != nil {
		r.log.Errorf("led start for %s: %v", r.fb.EventName, err)
		r.loop.Post(r.emitEnded)
	}
	// No natural end: LED feedbacks run until End() is called.
}
