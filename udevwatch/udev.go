// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package udevwatch implements the C1 udev/sysfs adapter: sysfs attribute
// I/O, device enumeration, and add/remove notification for a subsystem,
// built on github.com/eshard/uevent's netlink kobject-uevent reader.
package udevwatch

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/types"
	"github.com/eshard/uevent"
)

const (
	sysClassPath = "/sys/class"
	udevDBPath   = "/run/udev/data"
)

// Device describes one enumerated or hot-plugged device: its sysfs path
// and the subset of udev attributes callers asked for.
type Device struct {
	SysfsPath string
	Name      string
	Attrs     map[string]string
}

// Attr returns one udev property from Attrs (the udev database entry for
// enumerated devices, the uevent environment for hot-plugged ones).
func (d Device) Attr(name string) (string, bool) {
	v, ok := d.Attrs[name]
	return v, ok
}

// WriteString writes value verbatim to <sysfsPath>/<attr>: open-truncate-
// write-close (spec.md §4.C1).
func WriteString(sysfsPath, attr, value string) error {
	f, err := os.OpenFile(filepath.Join(sysfsPath, attr), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &types.DeviceIO{Backend: "udev", Op: "open " + attr, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return &types.DeviceIO{Backend: "udev", Op: "write " + attr, Err: err}
	}
	return nil
}

// WriteInt writes value's decimal representation to <sysfsPath>/<attr>.
func WriteInt(sysfsPath, attr string, value int) error {
	return WriteString(sysfsPath, attr, strconv.Itoa(value))
}

// ReadString reads and trims <sysfsPath>/<attr>.
func ReadString(sysfsPath, attr string) (string, error) {
	data, err := os.ReadFile(filepath.Join(sysfsPath, attr))
	if err != nil {
		return "", &types.DeviceIO{Backend: "udev", Op: "read " + attr, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadInt reads and parses <sysfsPath>/<attr> as a decimal integer.
func ReadInt(sysfsPath, attr string) (int, error) {
	s, err := ReadString(sysfsPath, attr)
	if err != nil {
		return 0, err
	}
	v, perr := strconv.Atoi(s)
	if perr != nil {
		return 0, &types.DeviceIO{Backend: "udev", Op: "parse " + attr, Err: perr}
	}
	return v, nil
}

// ReadStrings reads <sysfsPath>/<attr> and splits it on whitespace, used
// for attributes like multi_index that hold a string vector.
func ReadStrings(sysfsPath, attr string) ([]string, error) {
	s, err := ReadString(sysfsPath, attr)
	if err != nil {
		return nil, err
	}
	return strings.Fields(s), nil
}

// Enumerate lists every device currently present under the given subsystem
// (e.g. "input", "leds") by walking /sys/class/<subsystem>.
func Enumerate(subsystem string) ([]Device, error) {
	root := filepath.Join(sysClassPath, subsystem)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &types.DeviceIO{Backend: "udev", Op: "enumerate " + subsystem, Err: err}
	}
	devices := make([]Device, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		devices = append(devices, Device{
			SysfsPath: path,
			Name:      entry.Name(),
			Attrs:     udevDBProperties(path, subsystem, entry.Name()),
		})
	}
	return devices, nil
}

// udevDBProperties loads the udev property set systemd-udevd persists for
// a device at enumeration time - including rule-assigned ENV{} properties
// like FEEDBACKD_TYPE, which never appear in the kernel's own sysfs
// "uevent" file. Devices with a "dev" sysfs attribute are keyed by major:
// minor; class devices without one (most LEDs) are keyed by
// subsystem:sysname, matching udev's own database naming.
func udevDBProperties(sysfsPath, subsystem, name string) map[string]string {
	keys := []string{}
	if maj, min, ok := devNumbers(sysfsPath); ok {
		keys = append(keys, "c"+strconv.Itoa(maj)+":"+strconv.Itoa(min))
		keys = append(keys, "b"+strconv.Itoa(maj)+":"+strconv.Itoa(min))
	}
	keys = append(keys, "+"+subsystem+":"+name)

	for _, key := range keys {
		data, err := os.ReadFile(filepath.Join(udevDBPath, key))
		if err != nil {
			continue
		}
		return parseUdevDB(data)
	}
	return map[string]string{}
}

func devNumbers(sysfsPath string) (int, int, bool) {
	data, err := os.ReadFile(filepath.Join(sysfsPath, "dev"))
	if err != nil {
		return 0, 0, false
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(parts[0])
	min, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}

// parseUdevDB parses systemd-udevd's database line format: properties are
// lines prefixed "E:KEY=VALUE".
func parseUdevDB(data []byte) map[string]string {
	props := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "E:") {
			continue
		}
		kv := strings.SplitN(line[2:], "=", 2)
		if len(kv) != 2 {
			continue
		}
		props[kv[0]] = kv[1]
	}
	return props
}

// Watcher delivers add/remove notifications for one subsystem, built atop
// a netlink kobject-uevent socket.
type Watcher struct {
	subsystem string
	reader    *uevent.Reader
	log       *flog.Logger
}

// NewWatcher opens a netlink uevent socket and filters it to subsystem.
func NewWatcher(subsystem string, log *flog.Logger) (*Watcher, error) {
	r, err := uevent.NewReader()
	if err != nil {
		return nil, &types.DeviceIO{Backend: "udev", Op: "open netlink uevent socket", Err: err}
	}
	return &Watcher{subsystem: subsystem, reader: r, log: log}, nil
}

// Event is one filtered add/remove notification delivered to the manager.
type Event struct {
	Action string // "add" or "remove"
	Device Device
}

// Run blocks reading uevents until stop is closed, posting each event
// matching the watcher's subsystem to onEvent. Must be run on its own
// goroutine; onEvent is expected to marshal itself back onto the event
// loop (e.g. via sched.Loop.Post).
func (w *Watcher) Run(stop <-chan struct{}, onEvent func(Event)) {
	events := make(chan *uevent.UEvent)
	errs := make(chan error, 1)
	go func() {
		for {
			ev, err := w.reader.ReadEvent()
			if err != nil {
				errs <- err
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case <-stop:
			w.reader.Close()
			return
		case err := <-errs:
			w.log.Errorf("udev watcher for %s: %v", w.subsystem, err)
			return
		case ev := <-events:
			if ev.Env["SUBSYSTEM"] != w.subsystem {
				continue
			}
			devpath := ev.Env["DEVPATH"]
			onEvent(Event{
				Action: ev.Action,
				Device: Device{
					SysfsPath: filepath.Join("/sys", devpath),
					Name:      filepath.Base(devpath),
					Attrs:     ev.Env,
				},
			})
		}
	}
}
