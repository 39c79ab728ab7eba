// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package devled implements the C3/C4 sysfs LED backend: single-color and
// multi-color LED devices, and a Set that picks among several.
package devled

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/droidian/feedbackd/types"
)

// sysfsWriteString and sysfsWriteInt are the C1 primitive this package
// builds on: open-truncate-write-close a single sysfs attribute file.
func sysfsWriteString(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &types.DeviceIO{Backend: "led", Op: "open " + path, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return &types.DeviceIO{Backend: "led", Op: "write " + path, Err: err}
	}
	return nil
}

func sysfsWriteInt(path string, value int) error {
	return sysfsWriteString(path, strconv.Itoa(value))
}

func sysfsReadInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &types.DeviceIO{Backend: "led", Op: "read " + path, Err: err}
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, &types.DeviceIO{Backend: "led", Op: "parse " + path, Err: err}
	}
	return v, nil
}

// Led drives one sysfs LED device. Color is either a fixed single color
// (inferred from the device name) or types.ColorRgb for a multi-color
// device; for multi-color, slots maps each primary color to its
// multi_index position.
type Led struct {
	sysfsPath     string
	color         types.Color
	maxBrightness int
	slots         map[types.Color]int // nil for single-color devices
}

// Open probes the device at sysfsPath, reading max_brightness and, if
// multi_index is present, the slot ordering it declares (spec.md §4.C3).
func Open(sysfsPath, deviceName string) (*Led, error) {
	maxBrightness, err := sysfsReadInt(filepath.Join(sysfsPath, "max_brightness"))
	if err != nil {
		return nil, err
	}

	led := &Led{sysfsPath: sysfsPath, maxBrightness: maxBrightness}

	multiIndexPath := filepath.Join(sysfsPath, "multi_index")
	if data, err := os.ReadFile(multiIndexPath); err == nil {
		led.slots = parseMultiIndex(string(data))
		led.color = types.ColorRgb
	} else {
		led.color = inferColorFromName(deviceName)
	}
	return led, nil
}

func parseMultiIndex(raw string) map[types.Color]int {
	slots := map[types.Color]int{}
	for i, tok := range strings.Fields(raw) {
		switch strings.ToLower(tok) {
		case "red":
			slots[types.ColorRed] = i
		case "green":
			slots[types.ColorGreen] = i
		case "blue":
			slots[types.ColorBlue] = i
		}
	}
	return slots
}

func inferColorFromName(name string) types.Color {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "red"):
		return types.ColorRed
	case strings.Contains(lower, "green"):
		return types.ColorGreen
	case strings.Contains(lower, "blue"):
		return types.ColorBlue
	case strings.Contains(lower, "white"):
		return types.ColorWhite
	default:
		return types.ColorWhite
	}
}

// HasColor reports whether this device can drive color (spec.md §4.C3):
// multi-color devices answer true only for Rgb; single-color devices
// answer true only for their own detected color.
func (l *Led) HasColor(color types.Color) bool {
	if l.slots != nil {
		return color == types.ColorRgb
	}
	return l.color == color
}

func (l *Led) multiIntensities(color types.Color, maxLevel int) [3]int {
	var out [3]int
	set := func(c types.Color, idx int) {
		if slot, ok := l.slots[c]; ok && slot < 3 {
			out[slot] = idx
		}
	}
	switch color {
	case types.ColorWhite, types.ColorRgb:
		set(types.ColorRed, maxLevel)
		set(types.ColorGreen, maxLevel)
		set(types.ColorBlue, maxLevel)
	case types.ColorRed:
		set(types.ColorRed, maxLevel)
	case types.ColorGreen:
		set(types.ColorGreen, maxLevel)
	case types.ColorBlue:
		set(types.ColorBlue, maxLevel)
	}
	return out
}

// StartPeriodic implements spec.md §4.C3: compute max brightness and
// half-period, write multi_intensity (multi-color only), then the pattern
// string, then brightness.
func (l *Led) StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error {
	if freqMilliHz == 0 {
		return &types.DeviceIO{Backend: "led", Op: "start_periodic", Err: fmt.Errorf("frequency_mhz must be non-zero")}
	}
	maxLevel := l.maxBrightness * int(maxBrightnessPct) / 100
	halfPeriodMs := 1_000_000 / int(freqMilliHz) / 2

	if l.slots != nil {
		intensities := l.multiIntensities(color, maxLevel)
		value := fmt.Sprintf("%d %d %d", intensities[0], intensities[1], intensities[2])
		if err := sysfsWriteString(filepath.Join(l.sysfsPath, "multi_intensity"), value); err != nil {
			return err
		}
	}

	pattern := fmt.Sprintf("0 %d %d %d\n", halfPeriodMs, maxLevel, halfPeriodMs)
	if err := sysfsWriteString(filepath.Join(l.sysfsPath, "pattern"), pattern); err != nil {
		return err
	}
	return sysfsWriteInt(filepath.Join(l.sysfsPath, "brightness"), maxLevel)
}

// Stop writes brightness=0 (spec.md §4.C3).
func (l *Led) Stop(color types.Color) error {
	return sysfsWriteInt(filepath.Join(l.sysfsPath, "brightness"), 0)
}
