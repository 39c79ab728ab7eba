// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package lfb is the client-side library for the org.sigxcpu.Feedback bus
// contract (spec.md §6). It owns the process-wide state the original
// client library kept as a singleton: a connection to the daemon, the
// calling app's id, and the set of event ids still outstanding so Uninit
// can cancel whatever the process forgot to end itself.
package lfb

import (
	"sync"

	"github.com/droidian/feedbackd/bus"
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/types"
	"github.com/godbus/dbus/v5"
)

// Context is one process's handle onto the feedback daemon. Callers
// normally construct a single Context at startup and Uninit it at exit;
// nothing here prevents more than one, but the outstanding-id bookkeeping
// is scoped per Context, not per process, unlike the original library's
// true singleton.
type Context struct {
	appID string
	log   *flog.Logger

	conn *dbus.Conn
	obj  dbus.BusObject

	mu       sync.Mutex
	pending  map[uint32]func(types.EndReason)
	closed   bool
	sigCh    chan *dbus.Signal
	doneChan chan struct{}
}

// Init connects to the session bus and subscribes to FeedbackEnded.
// appID is sent as-is on every Trigger call; the daemon munges it for
// per-app settings lookups on its own.
func Init(appID string, log *flog.Logger) (*Context, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, &types.DeviceIO{Backend: "lfb", Op: "connect session bus", Err: err}
	}

	c := &Context{
		appID:    appID,
		log:      log,
		conn:     conn,
		obj:      conn.Object(bus.InterfaceName, bus.ObjectPath),
		pending:  map[uint32]func(types.EndReason){},
		sigCh:    make(chan *dbus.Signal, 16),
		doneChan: make(chan struct{}),
	}

	rule := "type='signal',interface='" + bus.InterfaceName + "',member='FeedbackEnded',path='" + string(bus.ObjectPath) + "'"
	if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		conn.Close()
		return nil, &types.DeviceIO{Backend: "lfb", Op: "AddMatch", Err: err}
	}
	conn.Signal(c.sigCh)
	go c.dispatch()

	return c, nil
}

func (c *Context) dispatch() {
	for {
		select {
		case sig, ok := <-c.sigCh:
			if !ok {
				return
			}
			if sig.Name != bus.InterfaceName+".FeedbackEnded" || len(sig.Body) < 2 {
				continue
			}
			id, ok1 := sig.Body[0].(uint32)
			rawReason, ok2 := sig.Body[1].(uint32)
			if !ok1 || !ok2 {
				continue
			}
			c.complete(id, types.EndReason(int32(rawReason)))
		case <-c.doneChan:
			return
		}
	}
}

func (c *Context) complete(id uint32, reason types.EndReason) {
	c.mu.Lock()
	cb, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok && cb != nil {
		cb(reason)
	}
}

// Trigger starts feedback for eventName with the given hints and timeout
// (spec.md §6 TriggerFeedback; -1 oneshot, 0 loop, >0 bounded
// seconds). onEnded, if non-nil, is invoked once when the daemon
// reports completion; it is never invoked from this goroutine.
func (c *Context) Trigger(eventName string, hints map[string]dbus.Variant, timeout int32, onEnded func(types.EndReason)) (uint32, error) {
	var id uint32
	call := c.obj.Call(bus.InterfaceName+".TriggerFeedback", 0, c.appID, eventName, hints, timeout)
	if call.Err != nil {
		return 0, &types.DeviceIO{Backend: "lfb", Op: "TriggerFeedback", Err: call.Err}
	}
	if err := call.Store(&id); err != nil {
		return 0, &types.DeviceIO{Backend: "lfb", Op: "TriggerFeedback reply", Err: err}
	}

	c.mu.Lock()
	if !c.closed {
		c.pending[id] = onEnded
	}
	c.mu.Unlock()
	return id, nil
}

// End asks the daemon to end a still-outstanding event (spec.md §6
// EndFeedback). Ending an id the daemon no longer knows about is a no-op
// on the daemon side, not an error here.
func (c *Context) End(id uint32) error {
	call := c.obj.Call(bus.InterfaceName+".EndFeedback", 0, id)
	if call.Err != nil {
		return &types.DeviceIO{Backend: "lfb", Op: "EndFeedback", Err: call.Err}
	}
	return nil
}

// SetProfile writes the Profile property (spec.md §6).
func (c *Context) SetProfile(level types.ProfileLevel) error {
	call := c.obj.Call("org.freedesktop.DBus.Properties.Set", 0, bus.InterfaceName, "Profile", dbus.MakeVariant(level.String()))
	if call.Err != nil {
		return &types.DeviceIO{Backend: "lfb", Op: "set Profile", Err: call.Err}
	}
	return nil
}

// Profile reads the current Profile property.
func (c *Context) Profile() (types.ProfileLevel, error) {
	v, err := c.obj.GetProperty(bus.InterfaceName + ".Profile")
	if err != nil {
		return types.ProfileUnknown, &types.DeviceIO{Backend: "lfb", Op: "get Profile", Err: err}
	}
	name, ok := v.Value().(string)
	if !ok {
		return types.ProfileUnknown, &types.InvalidArgs{Reason: "Profile property is not a string"}
	}
	level, ok := types.ParseProfileLevel(name)
	if !ok {
		return types.ProfileUnknown, &types.InvalidArgs{Reason: "Profile property has an unrecognized value"}
	}
	return level, nil
}

// Uninit ends every event still outstanding on this Context, then closes
// the bus connection. This preserves the original client library's
// shutdown behavior of not leaving feedbacks running after the calling
// process has gone away.
func (c *Context) Uninit() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ids := make([]uint32, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.pending = map[uint32]func(types.EndReason){}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.End(id); err != nil {
			c.log.Warnf("uninit: ending outstanding feedback %d: %v", id, err)
		}
	}

	close(c.doneChan)
	return c.conn.Close()
}
