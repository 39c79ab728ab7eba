// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package bus exports the org.sigxcpu.Feedback session-bus object: the
// unchanged wire contract spec.md §6 names, backed by a Manager.
package bus

import (
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const (
	// InterfaceName is the org.sigxcpu.Feedback interface name.
	InterfaceName = "org.sigxcpu.Feedback"
	// ObjectPath is the single object path feedbackd exports.
	ObjectPath = dbus.ObjectPath("/org/sigxcpu/Feedback")
)

// Backend is the narrow surface bus.Service needs from the manager: enough
// to serve TriggerFeedback/EndFeedback/Profile without bus/ importing
// manager/; manager.Manager satisfies it structurally, and manager/ in turn
// reaches this Service only through its own Signaler interface.
type Backend interface {
	HandleTrigger(sender, appID, eventName string, hints map[string]dbus.Variant, timeout int32) (uint32, error)
	HandleEnd(id uint32) error
	ProfileLevel() types.ProfileLevel
	SetProfileLevel(types.ProfileLevel) error
}

// Service owns the exported object and the peer-vanish watch bookkeeping
// the manager's HandleTrigger needs per spec.md §4.C11 step 7.
type Service struct {
	conn    *dbus.Conn
	backend Backend
	loop    *sched.Loop
	log     *flog.Logger
	props   *prop.Properties
}

// Export connects to the session bus, requests the well-known name, and
// exports the Feedback object with its Profile property. Method calls
// godbus dispatches on its own goroutines are marshaled onto loop before
// touching backend, preserving the single-event-loop invariant spec.md §5
// describes.
func Export(backend Backend, loop *sched.Loop, log *flog.Logger) (*Service, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, &types.DeviceIO{Backend: "bus", Op: "connect session bus", Err: err}
	}

	svc := &Service{conn: conn, backend: backend, loop: loop, log: log}

	if err := conn.Export(svc, ObjectPath, InterfaceName); err != nil {
		conn.Close()
		return nil, &types.DeviceIO{Backend: "bus", Op: "export object", Err: err}
	}

	propsSpec := map[string]map[string]*prop.Prop{
		InterfaceName: {
			"Profile": {
				Value:    backend.ProfileLevel().String(),
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: svc.onProfileWrite,
			},
		},
	}
	props, err := prop.Export(conn, ObjectPath, propsSpec)
	if err != nil {
		conn.Close()
		return nil, &types.DeviceIO{Backend: "bus", Op: "export properties", Err: err}
	}
	svc.props = props

	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name: InterfaceName,
				Methods: []introspect.Method{
					{Name: "TriggerFeedback", Args: []introspect.Arg{
						{Name: "app_id", Type: "s", Direction: "in"},
						{Name: "event", Type: "s", Direction: "in"},
						{Name: "hints", Type: "a{sv}", Direction: "in"},
						{Name: "timeout", Type: "i", Direction: "in"},
						{Name: "id", Type: "u", Direction: "out"},
					}},
					{Name: "EndFeedback", Args: []introspect.Arg{
						{Name: "id", Type: "u", Direction: "in"},
					}},
				},
				Signals: []introspect.Signal{
					{Name: "FeedbackEnded", Args: []introspect.Arg{
						{Name: "id", Type: "u"},
						{Name: "reason", Type: "u"},
					}},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return nil, &types.DeviceIO{Backend: "bus", Op: "export introspection", Err: err}
	}

	reply, err := conn.RequestName(InterfaceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, &types.DeviceIO{Backend: "bus", Op: "request name", Err: err}
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, &types.DeviceIO{Backend: "bus", Op: "request name", Err: errAlreadyOwned{}}
	}

	return svc, nil
}

type errAlreadyOwned struct{}

func (errAlreadyOwned) Error() string { return "org.sigxcpu.Feedback name already owned" }

func (s *Service) onProfileWrite(c *prop.Change) *dbus.Error {
	level, ok := types.ParseProfileLevel(c.Value.(string))
	if !ok {
		return dbus.NewError("org.sigxcpu.Feedback.Error.InvalidArgs", []interface{}{"unknown profile level"})
	}
	done := make(chan error, 1)
	s.loop.Post(func() { done <- s.backend.SetProfileLevel(level) })
	if err := <-done; err != nil {
		return dbus.NewError("org.sigxcpu.Feedback.Error.InvalidArgs", []interface{}{err.Error()})
	}
	return nil
}

// TriggerFeedback implements the exported D-Bus method of the same name.
func (s *Service) TriggerFeedback(appID, event string, hints map[string]dbus.Variant, timeout int32, sender dbus.Sender) (uint32, *dbus.Error) {
	type result struct {
		id  uint32
		err error
	}
	done := make(chan result, 1)
	s.loop.Post(func() {
		id, err := s.backend.HandleTrigger(string(sender), appID, event, hints, timeout)
		done <- result{id, err}
	})
	r := <-done

	if r.err != nil {
		if _, ok := r.err.(*types.InvalidArgs); ok {
			return 0, dbus.NewError("org.sigxcpu.Feedback.Error.InvalidArgs", []interface{}{r.err.Error()})
		}
		return 0, dbus.NewError("org.sigxcpu.Feedback.Error.Failed", []interface{}{r.err.Error()})
	}
	return r.id, nil
}

// EndFeedback implements the exported D-Bus method of the same name.
func (s *Service) EndFeedback(id uint32) *dbus.Error {
	done := make(chan error, 1)
	s.loop.Post(func() { done <- s.backend.HandleEnd(id) })
	if err := <-done; err != nil {
		s.log.Warnf("EndFeedback(%d): %v", id, err)
	}
	return nil
}

// EmitFeedbackEnded emits the FeedbackEnded(id, reason) signal.
func (s *Service) EmitFeedbackEnded(id types.EventID, reason types.EndReason) error {
	return s.conn.Emit(ObjectPath, InterfaceName+".FeedbackEnded", uint32(id), uint32(int32(reason)))
}

// NotifyProfileChanged updates the Profile property value and emits the
// standard PropertiesChanged signal.
func (s *Service) NotifyProfileChanged(level types.ProfileLevel) error {
	return s.props.Set(InterfaceName, "Profile", dbus.MakeVariant(level.String()))
}

// WatchPeer arms a NameOwnerChanged match for sender and invokes onVanish
// once, when sender disconnects from the bus (spec.md §4.C11 peer-vanish).
func (s *Service) WatchPeer(sender string, onVanish func()) error {
	rule := "type='signal',sender='org.freedesktop.DBus',interface='org.freedesktop.DBus',member='NameOwnerChanged',arg0='" + sender + "'"
	if err := s.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return &types.DeviceIO{Backend: "bus", Op: "AddMatch", Err: err}
	}

	ch := make(chan *dbus.Signal, 1)
	s.conn.Signal(ch)
	go func() {
		for sig := range ch {
			if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" {
				continue
			}
			if len(sig.Body) < 3 {
				continue
			}
			name, _ := sig.Body[0].(string)
			newOwner, _ := sig.Body[2].(string)
			if name == sender && newOwner == "" {
				onVanish()
				return
			}
		}
	}()
	return nil
}

// Close releases the bus connection.
func (s *Service) Close() error {
	return s.conn.Close()
}
