// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package devvibra implements the C2 vibra backend: an evdev force-feedback
// device driven through EVIOCGBIT/EVIOCSFF/EVIOCRMFF ioctls.
package devvibra

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/droidian/feedbackd/types"
	"golang.org/x/sys/unix"
)

// Linux input-event-codes.h / input.h constants not exposed by
// golang.org/x/sys/unix; values are stable kernel ABI.
const (
	evFF      = 0x15
	ffRumble  = 0x50
	ffPeriodic = 0x51
	ffGain    = 0x60
	waveSine  = 0x5a

	evIOCSFF  = 0x402c4580
	evIOCRMFF = 0x40044581
)

// ffEnvelope mirrors struct ff_envelope.
type ffEnvelope struct {
	AttackLength uint16
	AttackLevel  uint16
	FadeLength   uint16
	FadeLevel    uint16
}

// ffReplay mirrors struct ff_replay.
type ffReplay struct {
	Length uint16
	Delay  uint16
}

// ffRumbleEffect mirrors struct ff_rumble_effect.
type ffRumbleEffect struct {
	StrongMagnitude uint16
	WeakMagnitude   uint16
}

// ffPeriodicEffect mirrors struct ff_periodic_effect (the fields this
// backend sets; the kernel struct has a few more trailing fields this
// program never populates, left zeroed by the surrounding ffEffect pad).
type ffPeriodicEffect struct {
	Waveform   uint16
	Period     uint16
	Magnitude  int16
	Offset     int16
	Phase      uint16
	Envelope   ffEnvelope
	CustomLen  uint32
	CustomData uintptr
}

// ffEffect mirrors struct ff_effect's common header plus a union large
// enough to hold either a rumble or periodic payload.
type ffEffect struct {
	Type      uint16
	ID        int16
	Direction uint16
	Trigger   struct {
		Button   uint16
		Interval uint16
	}
	Replay  ffReplay
	union   [40]byte // holds ffRumbleEffect or ffPeriodicEffect, whichever is larger
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const defaultRumbleMagnitude = 0x8000
const defaultPeriodicMagnitude = 0x7FFF
const defaultPeriodicLevel = 0x7FFF
const masterGain = 0xC000

// Device drives one evdev force-feedback node. Only one effect id is
// tracked at a time (spec.md §4.C2: single-slot).
type Device struct {
	path     string
	file     *os.File
	fd       uintptr
	hasGain  bool
	effectID int16
}

// Open opens path non-blocking, verifies FF_RUMBLE and FF_PERIODIC support
// via EVIOCGBIT, and sets the master gain to ~75% if FF_GAIN is present.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, &types.DeviceIO{Backend: "vibra", Op: "open", Err: err}
	}
	d := &Device{path: path, file: f, fd: f.Fd(), effectID: -1}

	bits, err := d.evBits()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !bitSet(bits, ffRumble) || !bitSet(bits, ffPeriodic) {
		f.Close()
		return nil, &types.DeviceUnavailable{Backend: "vibra", Reason: fmt.Sprintf("%s lacks FF_RUMBLE/FF_PERIODIC", path)}
	}
	d.hasGain = bitSet(bits, ffGain)

	if d.hasGain {
		ev := inputEvent{Type: evFF, Code: ffGain, Value: masterGain}
		if _, err := unix.Write(int(d.fd), (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&ev))[:]); err != nil {
			// gain write failure is ignored; it is not fatal to Open.
		}
	}
	return d, nil
}

func (d *Device) evBits() ([]byte, error) {
	const nLongs = (0x7f + 1 + 8*8 - 1) / (8 * 8) // FF_MAX+1 bits, rounded to uint64 words
	buf := make([]uint64, nLongs)
	req := ioctlEVIOCGBIT(evFF, len(buf)*8)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.fd, req, uintptr(unsafe.Pointer(&buf[0]))); errno != 0 {
		return nil, &types.DeviceIO{Backend: "vibra", Op: "EVIOCGBIT", Err: errno}
	}
	out := make([]byte, len(buf)*8)
	for i, w := range buf {
		for b := 0; b < 8; b++ {
			out[i*8+b] = byte(w >> (8 * b))
		}
	}
	return out, nil
}

func ioctlEVIOCGBIT(evType, size int) uintptr {
	const iocRead = 2
	const iocNRBits, iocTypeBits, iocSizeBits = 8, 8, 14
	const iocNRShift = 0
	const iocTypeShift = iocNRShift + iocNRBits
	const iocSizeShift = iocTypeShift + iocTypeBits
	const iocDirShift = iocSizeShift + iocSizeBits
	nr := 0x20 + evType
	return uintptr(iocRead<<iocDirShift | int('E')<<iocTypeShift | nr<<iocNRShift | (size&((1<<iocSizeBits)-1))<<iocSizeShift)
}

func bitSet(bits []byte, n int) bool {
	if n/8 >= len(bits) {
		return false
	}
	return bits[n/8]&(1<<uint(n%8)) != 0
}

func (d *Device) upload(effect *ffEffect) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.fd, evIOCSFF, uintptr(unsafe.Pointer(effect))); errno != 0 {
		return &types.DeviceIO{Backend: "vibra", Op: "EVIOCSFF", Err: errno}
	}
	d.effectID = effect.ID
	return nil
}

func (d *Device) write(code uint16, value int32) error {
	ev := inputEvent{Type: evFF, Code: code, Value: value}
	_, err := unix.Write(int(d.fd), (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&ev))[:])
	if err != nil {
		return &types.DeviceIO{Backend: "vibra", Op: "write ff start", Err: err}
	}
	return nil
}

// Rumble uploads (if upload) and starts an FF_RUMBLE effect, per spec.md
// §4.C2.
func (d *Device) Rumble(durationMs uint32, upload bool) error {
	if upload {
		effect := &ffEffect{
			Type:    ffRumble,
			ID:      -1,
			Replay:  ffReplay{Length: uint16(durationMs)},
		}
		rumble := ffRumbleEffect{StrongMagnitude: defaultRumbleMagnitude, WeakMagnitude: 0}
		*(*ffRumbleEffect)(unsafe.Pointer(&effect.union[0])) = rumble
		if err := d.upload(effect); err != nil {
			return err
		}
	}
	if d.effectID < 0 {
		return &types.DeviceIO{Backend: "vibra", Op: "rumble", Err: fmt.Errorf("no effect uploaded")}
	}
	return d.write(uint16(d.effectID), 1)
}

// Periodic uploads and starts an FF_PERIODIC sine effect, per spec.md
// §4.C2. Zero magnitude/fadeInLevel default to 0x7FFF; zero fadeInTimeMs
// defaults to the effect's own duration.
func (d *Device) Periodic(durationMs uint32, magnitude, fadeInLevel uint16, fadeInTimeMs uint32) error {
	magnitude, fadeInLevel, fadeInTimeMs = periodicDefaults(durationMs, magnitude, fadeInLevel, fadeInTimeMs)

	effect := &ffEffect{
		Type:      ffPeriodic,
		ID:        -1,
		Direction: 0x4000,
		Replay:    ffReplay{Length: uint16(durationMs), Delay: 200},
	}
	periodic := ffPeriodicEffect{
		Waveform:  waveSine,
		Period:    10,
		Magnitude: int16(magnitude),
		Envelope: ffEnvelope{
			AttackLength: uint16(fadeInTimeMs),
			AttackLevel:  fadeInLevel,
		},
	}
	*(*ffPeriodicEffect)(unsafe.Pointer(&effect.union[0])) = periodic
	if err := d.upload(effect); err != nil {
		return err
	}
	return d.write(uint16(d.effectID), 1)
}

// periodicDefaults applies spec.md §4.C2's zero-value defaults for the
// periodic effect parameters: magnitude and fade-in level default to
// 0x7FFF, fade-in time defaults to the effect's own duration.
func periodicDefaults(durationMs uint32, magnitude, fadeInLevel uint16, fadeInTimeMs uint32) (uint16, uint16, uint32) {
	if magnitude == 0 {
		magnitude = defaultPeriodicMagnitude
	}
	if fadeInLevel == 0 {
		fadeInLevel = defaultPeriodicLevel
	}
	if fadeInTimeMs == 0 {
		fadeInTimeMs = durationMs
	}
	return magnitude, fadeInLevel, fadeInTimeMs
}

// Stop halts and erases the currently held effect, if any (spec.md §4.C2).
func (d *Device) Stop() error {
	if d.effectID < 0 {
		return nil
	}
	if err := d.write(uint16(d.effectID), 0); err != nil {
		return err
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.fd, evIOCRMFF, uintptr(d.effectID)); errno != 0 {
		return &types.DeviceIO{Backend: "vibra", Op: "EVIOCRMFF", Err: errno}
	}
	d.effectID = -1
	return nil
}

// Close releases the underlying device file.
func (d *Device) Close() error {
	return d.file.Close()
}
