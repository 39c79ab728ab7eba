// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

package feedback

import "github.com/droidian/feedbackd/types"

// VibraDevice is the narrow interface Runner needs from the force-feedback
// backend (spec.md §4.C2). Concrete implementations: devvibra (evdev) and
// devhal (Android HAL), chosen once at manager init.
type VibraDevice interface {
	// Rumble uploads (if upload) and starts an FF_RUMBLE effect of the given
	// duration. When upload is false the previously uploaded effect id is
	// replayed instead of allocating a new one (single-slot device).
	Rumble(durationMs uint32, upload bool) error
	// Periodic uploads and starts an FF_PERIODIC sine effect.
	Periodic(durationMs uint32, magnitude, fadeInLevel uint16, fadeInTimeMs uint32) error
	// Stop halts and erases the currently held effect, if any.
	Stop() error
}

// LedDevice is the narrow interface Runner needs from the LED backend
// (spec.md §4.C3/§4.C4). Concrete implementations: devled (sysfs LED set)
// and devhal (Android HAL lights service).
type LedDevice interface {
	StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error
	Stop(color types.Color) error
	HasColor(color types.Color) bool
}

// SoundDevice is the narrow interface Runner needs from the sound backend
// (spec.md §4.C5). onDone must be invoked exactly once, even when playback
// is canceled via Stop, and implementations are responsible for marshaling
// that call back onto the daemon's single event loop (sched.Loop.Post).
type SoundDevice interface {
	Play(playbackID string, effect string, onDone func()) error
	Stop(playbackID string)
}

// Devices bundles the (possibly absent) backends a Runner can drive.
// A nil field means that feedback kind is unavailable on this host
// (spec.md invariant I4): the manager must not hand a feedback whose
// backend is nil to a Runner in the first place, but Runner.IsAvailable
// re-checks defensively.
type Devices struct {
	Vibra VibraDevice
	Leds  LedDevice
	Sound SoundDevice
}
