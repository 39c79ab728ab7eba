// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package devhal implements the C6 HAL backends: interchangeable vibra/LED
// drivers chosen at init by probing, in order, a vendor sysfs marker, an
// AIDL binder service, then a HIDL binder service.
package devhal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/droidian/feedbackd/feedback"
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/types"
)

const (
	vendorSysfsMarker = "/sys/class/leds/vendor_feedback/brightness"
	aidlBinderNode    = "/dev/binder"
	hidlBinderNode    = "/dev/hwbinder"
)

// Vibra is the C6 vibra HAL contract: on/off rather than the native
// rumble/periodic split, since every known HAL backend collapses to a
// single timed actuation.
type Vibra interface {
	On(durationMs uint32) error
	Off() error
}

// Led is the C6 LED HAL contract.
type Led interface {
	IsSupported(kind string) bool
	StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error
	Stop(color types.Color) error
}

// ProbeVibra returns the first available HAL vibra backend, in the order
// spec.md §4.C6 names: vendor-sysfs, then AIDL, then HIDL. It returns
// ok=false if none can be constructed.
func ProbeVibra(log *flog.Logger) (Vibra, bool) {
	if marker, ok := vendorSysfsPath(); ok {
		return &vendorSysfsVibra{path: marker}, true
	}
	if v, err := newAIDLVibra(); err == nil {
		return v, true
	}
	if v, err := newHIDLVibra(); err == nil {
		return v, true
	}
	log.Noticef("no HAL vibra backend available (no vendor sysfs marker, AIDL, or HIDL binder)")
	return nil, false
}

// ProbeLed returns the first available HAL LED backend, in the same
// probing order as ProbeVibra.
func ProbeLed(log *flog.Logger) (Led, bool) {
	if marker, ok := vendorSysfsPath(); ok {
		return &vendorSysfsLed{path: marker, log: log}, true
	}
	if l, err := newAIDLLed(); err == nil {
		return l, true
	}
	if l, err := newHIDLLed(); err == nil {
		return l, true
	}
	log.Noticef("no HAL led backend available (no vendor sysfs marker, AIDL, or HIDL binder)")
	return nil, false
}

// vibraAdapter presents a HAL Vibra backend (on/off) as a
// feedback.VibraDevice (rumble/periodic/stop), collapsing both waveform
// kinds to a plain timed actuation since no known HAL backend exposes a
// richer waveform contract.
type vibraAdapter struct {
	backend Vibra
}

func (a vibraAdapter) Rumble(durationMs uint32, upload bool) error {
	return a.backend.On(durationMs)
}

func (a vibraAdapter) Periodic(durationMs uint32, magnitude, fadeInLevel uint16, fadeInTimeMs uint32) error {
	return a.backend.On(durationMs)
}

func (a vibraAdapter) Stop() error {
	return a.backend.Off()
}

// ledAdapter presents a HAL Led backend as a feedback.LedDevice. HasColor
// always reports true: the HAL contract has no per-color enumeration, only
// a single light service that accepts whatever color it is asked to set.
type ledAdapter struct {
	backend Led
}

func (a ledAdapter) HasColor(types.Color) bool { return true }

func (a ledAdapter) StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error {
	return a.backend.StartPeriodic(color, maxBrightnessPct, freqMilliHz)
}

func (a ledAdapter) Stop(color types.Color) error {
	return a.backend.Stop(color)
}

// NewVibra probes for a HAL vibra backend and, if found, adapts it to
// feedback.VibraDevice for direct use in feedback.Devices.
func NewVibra(log *flog.Logger) (feedback.VibraDevice, bool) {
	v, ok := ProbeVibra(log)
	if !ok {
		return nil, false
	}
	return vibraAdapter{backend: v}, true
}

// NewLed probes for a HAL LED backend and, if found, adapts it to
// feedback.LedDevice for direct use in feedback.Devices.
func NewLed(log *flog.Logger) (feedback.LedDevice, bool) {
	l, ok := ProbeLed(log)
	if !ok {
		return nil, false
	}
	return ledAdapter{backend: l}, true
}

func vendorSysfsPath() (string, bool) {
	if _, err := os.Stat(vendorSysfsMarker); err == nil {
		return vendorSysfsMarker, true
	}
	return "", false
}

// vendorSysfsVibra drives the simplest HAL fallback: a single sysfs
// brightness-style node that stands in for a vendor vibrator driver
// without a dedicated evdev force-feedback node.
type vendorSysfsVibra struct {
	path string
}

func (v *vendorSysfsVibra) On(durationMs uint32) error {
	f, err := os.OpenFile(v.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &types.DeviceIO{Backend: "hal-vibra", Op: "open", Err: err}
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d", durationMs); err != nil {
		return &types.DeviceIO{Backend: "hal-vibra", Op: "write", Err: err}
	}
	return nil
}

func (v *vendorSysfsVibra) Off() error {
	f, err := os.OpenFile(v.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &types.DeviceIO{Backend: "hal-vibra", Op: "open", Err: err}
	}
	defer f.Close()
	_, err = f.WriteString("0")
	return err
}

// vendorSysfsLed treats the vendor marker as a plain on/off brightness
// node; it cannot multiplex colors, so every requested color is collapsed
// to a single brightness level (see argbBrightness).
type vendorSysfsLed struct {
	path string
	log  *flog.Logger
}

func (l *vendorSysfsLed) IsSupported(kind string) bool {
	return kind == "Notifications"
}

// colorToARGB maps a requested color to the 32-bit ARGB value spec.md
// §4.C6 describes for the AIDL/HIDL light HAL contract; the vendor sysfs
// fallback reuses it, via argbBrightness, to derive the level it writes to
// its single brightness channel.
func colorToARGB(color types.Color, maxBrightnessPct uint8) uint32 {
	max := uint32(maxBrightnessPct) * 0xFF / 100
	const alpha = 0xFF << 24
	switch color {
	case types.ColorWhite, types.ColorRgb:
		return alpha | max<<16 | max<<8 | max
	case types.ColorRed:
		return alpha | max<<16
	case types.ColorGreen:
		return alpha | max<<8
	case types.ColorBlue:
		return alpha | max
	default:
		return alpha
	}
}

// flashTimingMs implements spec.md §4.C6's
// flash_on_ms = flash_off_ms = 1_000_000 / freq_mHz / 2.
func flashTimingMs(freqMilliHz uint32) uint32 {
	if freqMilliHz == 0 {
		return 0
	}
	return 1_000_000 / freqMilliHz / 2
}

// argbBrightness collapses colorToARGB's per-channel value down to the
// single brightness level the vendor node's plain brightness file can
// express, since it has no color channels of its own.
func argbBrightness(argb uint32) uint32 {
	level := (argb >> 16) & 0xFF
	if g := (argb >> 8) & 0xFF; g > level {
		level = g
	}
	if b := argb & 0xFF; b > level {
		level = b
	}
	return level
}

func (l *vendorSysfsLed) StartPeriodic(color types.Color, maxBrightnessPct uint8, freqMilliHz uint32) error {
	level := argbBrightness(colorToARGB(color, maxBrightnessPct))
	halfPeriodMs := flashTimingMs(freqMilliHz)

	dir := filepath.Dir(l.path)
	if err := writeSysfsUint(filepath.Join(dir, "delay_on"), halfPeriodMs); err != nil {
		l.log.Warnf("vendor led %s: delay_on unsupported, blinking via timer trigger unavailable: %v", l.path, err)
	} else if err := writeSysfsUint(filepath.Join(dir, "delay_off"), halfPeriodMs); err != nil {
		l.log.Warnf("vendor led %s: delay_off unsupported: %v", l.path, err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &types.DeviceIO{Backend: "hal-led", Op: "open", Err: err}
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d", level)
	return err
}

// writeSysfsUint is used for the delay_on/delay_off timer-trigger
// attributes, which the vendor marker's directory is not guaranteed to
// carry; callers treat a failure here as best-effort, not fatal.
func writeSysfsUint(path string, v uint32) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d", v)
	return err
}

func (l *vendorSysfsLed) Stop(color types.Color) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &types.DeviceIO{Backend: "hal-led", Op: "open", Err: err}
	}
	defer f.Close()
	_, err = f.WriteString("0")
	return err
}
