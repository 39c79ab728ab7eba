// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

package devled

import "github.com/droidian/feedbackd/types"

// LedLike is the narrow interface Set needs from a single LED, satisfied
// by *Led; separated out so tests can substitute fakes.
type LedLike interface {
	HasColor(color types.Color) bool
	StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error
	Stop(color types.Color) error
}

// Set enumerates LED devices in insertion order and resolves a requested
// color to the best matching device (spec.md §4.C4).
type Set struct {
	leds []LedLike
}

// NewSet wraps leds, preserving the order they were enumerated in.
func NewSet(leds ...LedLike) *Set {
	return &Set{leds: leds}
}

// Add appends a newly discovered LED device, e.g. from a udev hot-plug
// event.
func (s *Set) Add(led LedLike) {
	s.leds = append(s.leds, led)
}

// Find returns the first LED for which HasColor(color) is true; if none
// matches, it returns the first LED (spec.md §4.C4). The second return
// value is false only when the set is empty.
func (s *Set) Find(color types.Color) (LedLike, bool) {
	if len(s.leds) == 0 {
		return nil, false
	}
	for _, led := range s.leds {
		if led.HasColor(color) {
			return led, true
		}
	}
	return s.leds[0], true
}

// StartPeriodic delegates to the LED Find selects for color.
func (s *Set) StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error {
	led, ok := s.Find(color)
	if !ok {
		return &types.DeviceUnavailable{Backend: "led", Reason: "no led device enumerated"}
	}
	return led.StartPeriodic(color, maxBrightnessPct, freqMilliHz)
}

// Stop delegates to the LED Find selects for color.
func (s *Set) Stop(color types.Color) error {
	led, ok := s.Find(color)
	if !ok {
		return &types.DeviceUnavailable{Backend: "led", Reason: "no led device enumerated"}
	}
	return led.Stop(color)
}

// HasColor reports whether any device in the set can drive color.
func (s *Set) HasColor(color types.Color) bool {
	for _, led := range s.leds {
		if led.HasColor(color) {
			return true
		}
	}
	return false
}
