// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package feedback implements the C7 feedback taxonomy: a closed, tagged
// set of feedback variants (spec.md §3, §4.C7) plus the Runner that drives
// each variant's start/stop contract against the device backends.
//
// The original C implementation models this as a GObject class hierarchy
// with four subclasses overriding virtual run/end methods. Per spec.md §9
// this is re-architected as a single flat, JSON-tagged struct carrying only
// the fields its Kind uses, dispatched by a type switch in Runner.Run
// rather than by virtual dispatch.
package feedback

import (
	"encoding/json"
	"fmt"

	"github.com/droidian/feedbackd/types"
	"github.com/go-playground/validator/v10"
)

// structValidator enforces the struct-tag constraints below; one instance
// is reused across every decode the way validator.New() is meant to be
// used (it caches reflection data per type).
var structValidator = validator.New()

// Feedback is the immutable, theme-parsed description of one feedback
// variant. It is cloned (by value - every field here is a value type) into
// an Event when a trigger resolves to it; the live/running state lives in
// Runner, never in Feedback itself.
type Feedback struct {
	Kind      types.FeedbackKind `json:"type"`
	EventName string             `json:"event_name"`

	// Dummy, VibraRumble, VibraPeriodic.
	DurationMs uint32 `json:"duration_ms,omitempty"`

	// VibraRumble.
	Count   uint32 `json:"count,omitempty"`
	PauseMs uint32 `json:"pause_ms,omitempty"`

	// VibraPeriodic.
	Magnitude    uint16 `json:"magnitude,omitempty"`
	FadeInLevel  uint16 `json:"fade_in_level,omitempty"`
	FadeInTimeMs uint32 `json:"fade_in_time_ms,omitempty"`

	// Sound.
	Effect string `json:"effect,omitempty"`

	// Led.
	FrequencyMilliHz uint32      `json:"frequency_mhz,omitempty"`
	Color            types.Color `json:"color,omitempty"`
	MaxBrightnessPct uint8       `json:"max_brightness_pct,omitempty" validate:"omitempty,min=1,max=100"`
	Priority         uint8       `json:"priority,omitempty"`
}

// UnmarshalJSON decodes one theme feedback entry, applies the parse-time
// defaults spec.md §3 lists per variant, and validates the closed registry
// plus the boundary conditions spec.md §8 calls out for parsing
// specifically (frequency=0 rejected, max_brightness_pct range).
func (f *Feedback) UnmarshalJSON(data []byte) error {
	type alias Feedback
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Feedback(raw)
	if err := out.applyDefaults(); err != nil {
		return err
	}
	if err := out.validate(); err != nil {
		return err
	}
	*f = out
	return nil
}

func (f *Feedback) applyDefaults() error {
	switch f.Kind {
	case types.KindVibraRumble:
		if f.DurationMs == 0 {
			f.DurationMs = 1000
		}
		if f.Count == 0 {
			f.Count = 1
		}
	case types.KindVibraPeriodic:
		if f.Magnitude == 0 {
			f.Magnitude = 0x7FFF
		}
	case types.KindLed:
		if f.MaxBrightnessPct == 0 {
			f.MaxBrightnessPct = 100
		}
	}
	return nil
}

func (f *Feedback) validate() error {
	if !f.Kind.IsValid() {
		return &types.ThemeParse{Reason: fmt.Sprintf("unknown feedback type %q", f.Kind)}
	}
	if f.EventName == "" {
		return &types.ThemeParse{Reason: "feedback is missing event_name"}
	}
	switch f.Kind {
	case types.KindLed:
		if f.FrequencyMilliHz == 0 {
			return &types.ThemeParse{Reason: "Led feedback requires a non-zero frequency_mhz"}
		}
		if f.Color != "" && !f.Color.IsValid() {
			return &types.ThemeParse{Reason: fmt.Sprintf("unknown Led color %q", f.Color)}
		}
	}
	if err := structValidator.Struct(f); err != nil {
		return &types.ThemeParse{Reason: fmt.Sprintf("Led max_brightness_pct must be in [1,100]: %v", err)}
	}
	return nil
}

// Clone returns a value copy suitable for embedding into a new Event; since
// Feedback holds only value types this is a plain struct copy, but the
// named method documents the lifecycle point spec.md §3 calls out
// ("cloned into an Event when triggered").
func (f Feedback) Clone() Feedback {
	return f
}
