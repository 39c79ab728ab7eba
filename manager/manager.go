// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package manager implements the C11 manager: the bus-facing entry point
// that owns the active theme, the device backends, and every in-flight
// Event.
package manager

import (
	"sync"

	"github.com/droidian/feedbackd/event"
	"github.com/droidian/feedbackd/feedback"
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/internal/settings"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/theme"
	"github.com/droidian/feedbackd/themeexpand"
	"github.com/droidian/feedbackd/types"
	"github.com/godbus/dbus/v5"
)

// Signaler is the narrow surface Manager needs from bus.Service, kept as
// an interface so manager/ does not import bus/ (bus/ already imports
// manager's Backend contract structurally via duck typing, not an import,
// but keeping this split avoids any chance of a cycle as both packages
// grow).
type Signaler interface {
	EmitFeedbackEnded(id types.EventID, reason types.EndReason) error
	NotifyProfileChanged(level types.ProfileLevel) error
	WatchPeer(sender string, onVanish func()) error
}

// Manager is the C11 manager. Exactly one is constructed per daemon
// process; every field is only ever touched from the event loop goroutine
// except where noted.
type Manager struct {
	loop     *sched.Loop
	log      *flog.Logger
	expander *themeexpand.Expander
	settings *settings.Store
	signaler Signaler

	devices *feedback.Devices

	mu           sync.Mutex // guards theme and profileLevel for bus-property reads off-loop
	activeTheme  theme.Theme
	profileLevel types.ProfileLevel

	events  map[types.EventID]*event.Event
	nextID  uint32
	peers   map[string]int // sender -> count of live events from that sender
}

// New constructs a Manager with the given devices and initial theme.
// Devices left nil are simply unavailable (spec.md invariant I4); loading
// a non-nil theme at startup failure is the caller's responsibility to
// treat as fatal (spec.md §4.C11 failure semantics).
func New(loop *sched.Loop, log *flog.Logger, devices *feedback.Devices, initialTheme theme.Theme, expander *themeexpand.Expander, store *settings.Store, signaler Signaler) *Manager {
	return &Manager{
		loop:         loop,
		log:          log,
		expander:     expander,
		settings:     store,
		signaler:     signaler,
		devices:      devices,
		activeTheme:  initialTheme,
		profileLevel: types.ProfileFull,
		events:       map[types.EventID]*event.Event{},
		peers:        map[string]int{},
	}
}

// SetSignaler wires the bus signaler after construction, since bus.Export
// needs a Backend (this Manager) before it can hand back the Service that
// implements Signaler.
func (m *Manager) SetSignaler(s Signaler) {
	m.signaler = s
}

// ProfileLevel returns the daemon-wide profile level.
func (m *Manager) ProfileLevel() types.ProfileLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileLevel
}

// SetProfileLevel updates the daemon-wide profile level and notifies bus
// clients of the change (spec.md §4.C11 "mirrored ... into an observable
// bus property").
func (m *Manager) SetProfileLevel(level types.ProfileLevel) error {
	if level == types.ProfileUnknown {
		return &types.InvalidArgs{Reason: "profile level must be silent, quiet, or full"}
	}
	m.mu.Lock()
	m.profileLevel = level
	m.mu.Unlock()
	if m.signaler != nil {
		return m.signaler.NotifyProfileChanged(level)
	}
	return nil
}

// HandleTrigger implements spec.md §4.C11 handle_trigger. Must be called
// on the event loop goroutine (bus method dispatch already runs there).
func (m *Manager) HandleTrigger(sender, appID, eventName string, hints map[string]dbus.Variant, timeout int32) (uint32, error) {
	if appID == "" || eventName == "" {
		return 0, &types.InvalidArgs{Reason: "app_id and event_name must be non-empty"}
	}

	hintLevel := types.ProfileUnknown
	if v, ok := hints["profile"]; ok {
		name, ok := v.Value().(string)
		if !ok {
			return 0, &types.InvalidArgs{Reason: "hints.profile must be a string"}
		}
		parsed, ok := types.ParseProfileLevel(name)
		if !ok {
			return 0, &types.InvalidArgs{Reason: "hints.profile is not a recognized level"}
		}
		hintLevel = parsed
	}

	perAppLevel := types.ProfileUnknown
	if m.settings != nil {
		perAppLevel = m.settings.Level(settings.MungeAppID(appID))
	}

	effective := types.EffectiveLevel(m.ProfileLevel(), perAppLevel, hintLevel)

	m.nextID++
	id := types.EventID(m.nextID)

	m.mu.Lock()
	th := m.activeTheme
	m.mu.Unlock()

	fb, ok := th.Lookup(effective, eventName)
	if ok && !backendAvailable(fb.Kind, m.devices) {
		ok = false
	}
	if !ok {
		if m.signaler != nil {
			if err := m.signaler.EmitFeedbackEnded(id, types.ReasonNotFound); err != nil {
				m.log.Warnf("emit FeedbackEnded(%s, NotFound): %v", id, err)
			}
		}
		return uint32(id), nil
	}

	ev := event.New(id, appID, eventName, sender, timeout, m.loop, m.log, func(reason types.EndReason) {
		m.onEventEnded(id, sender, reason)
	})
	ev.AddFeedback(fb, m.devices)

	m.events[id] = ev
	m.watchSender(sender)
	ev.RunFeedbacks()

	return uint32(id), nil
}

// HandleEnd implements spec.md §4.C11 handle_end.
func (m *Manager) HandleEnd(id uint32) error {
	ev, ok := m.events[types.EventID(id)]
	if !ok {
		m.log.Warnf("EndFeedback(%d): no such event", id)
		return nil
	}
	ev.EndFeedbacks()
	return nil
}

func (m *Manager) onEventEnded(id types.EventID, sender string, reason types.EndReason) {
	delete(m.events, id)
	m.unwatchSender(sender)
	if m.signaler != nil {
		if err := m.signaler.EmitFeedbackEnded(id, reason); err != nil {
			m.log.Warnf("emit FeedbackEnded(%s, %s): %v", id, reason, err)
		}
	}
}

func (m *Manager) watchSender(sender string) {
	m.peers[sender]++
	if m.peers[sender] > 1 {
		return // already watching this peer
	}
	if m.signaler == nil {
		return
	}
	if err := m.signaler.WatchPeer(sender, func() {
		m.loop.Post(func() { m.onPeerVanished(sender) })
	}); err != nil {
		m.log.Warnf("watch peer %s: %v", sender, err)
	}
}

func (m *Manager) unwatchSender(sender string) {
	if m.peers[sender] <= 1 {
		delete(m.peers, sender)
		return
	}
	m.peers[sender]--
}

// onPeerVanished implements spec.md §4.C11 peer-vanish: end every event
// whose sender matches, as if EndFeedback had been called on each.
func (m *Manager) onPeerVanished(sender string) {
	for _, ev := range m.events {
		if ev.Sender == sender {
			ev.EndFeedbacks()
		}
	}
}

// ReloadTheme re-resolves name via the Expander and swaps it in atomically
// (spec.md §5: "the new theme replaces the old by reference"). A load
// failure leaves the previous theme in place and is logged, not fatal
// (spec.md §4.C11 failure semantics).
func (m *Manager) ReloadTheme(name string) {
	th, err := m.expander.Load(name)
	if err != nil {
		m.log.Errorf("theme reload %q failed, keeping previous theme: %v", name, err)
		return
	}
	m.mu.Lock()
	m.activeTheme = th
	m.mu.Unlock()
	m.log.Noticef("reloaded theme %q", name)
}

// AdoptVibra installs a vibra backend discovered after startup (udev
// add), but only if none is currently held (spec.md §4.C1: "adopt it if
// none present"); a second add for an already-adopted device is a no-op so
// callers are responsible for releasing dev themselves in that case. Must
// be called on the event loop goroutine.
func (m *Manager) AdoptVibra(dev feedback.VibraDevice) bool {
	if m.devices.Vibra != nil {
		m.log.Noticef("ignoring vibra add: a device is already adopted")
		return false
	}
	m.devices.Vibra = dev
	m.log.Noticef("adopted vibra device")
	return true
}

// ReleaseVibra drops the vibra backend (udev remove). Must be called on
// the event loop goroutine.
func (m *Manager) ReleaseVibra() {
	m.devices.Vibra = nil
	m.log.Noticef("vibra device removed")
}

// backendAvailable mirrors feedback.Runner.IsAvailable without constructing
// a throwaway Runner, so a lookup miss (invariant I4) never touches a
// device.
func backendAvailable(kind types.FeedbackKind, devices *feedback.Devices) bool {
	switch kind {
	case types.KindDummy:
		return true
	case types.KindVibraRumble, types.KindVibraPeriodic:
		return devices != nil && devices.Vibra != nil
	case types.KindSound:
		return devices != nil && devices.Sound != nil
	case types.KindLed:
		return devices != nil && devices.Leds != nil
	default:
		return false
	}
}

// Shutdown ends every in-flight event and releases devices (spec.md
// §4.C11 Shutdown). Must be called on the event loop goroutine.
func (m *Manager) Shutdown() {
	for _, ev := range m.events {
		ev.EndFeedbacks()
	}
	if m.devices == nil {
		return
	}
	if closer, ok := m.devices.Vibra.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			m.log.Warnf("closing vibra device: %v", err)
		}
	}
}
