package bus

import (
	"testing"

	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoop(t *testing.T) *sched.Loop {
	l := sched.New()
	stop := make(chan struct{})
	go l.Run(stop)
	t.Cleanup(func() { close(stop) })
	return l
}

type fakeBackend struct {
	level     types.ProfileLevel
	setErr    error
	triggerID uint32
	triggered bool
}

func (f *fakeBackend) HandleTrigger(sender, appID, eventName string, hints map[string]dbus.Variant, timeout int32) (uint32, error) {
	f.triggered = true
	return f.triggerID, nil
}
func (f *fakeBackend) HandleEnd(id uint32) error               { return nil }
func (f *fakeBackend) ProfileLevel() types.ProfileLevel        { return f.level }
func (f *fakeBackend) SetProfileLevel(l types.ProfileLevel) error {
	f.level = l
	return f.setErr
}

func TestOnProfileWriteAcceptsKnownLevel(t *testing.T) {
	backend := &fakeBackend{}
	svc := &Service{backend: backend, loop: testLoop(t)}
	derr := svc.onProfileWrite(&prop.Change{Value: "quiet"})
	require.Nil(t, derr)
	assert.Equal(t, types.ProfileQuiet, backend.level)
}

func TestOnProfileWriteRejectsUnknownLevel(t *testing.T) {
	backend := &fakeBackend{}
	svc := &Service{backend: backend, loop: testLoop(t)}
	derr := svc.onProfileWrite(&prop.Change{Value: "loud"})
	require.NotNil(t, derr)
	assert.Equal(t, "org.sigxcpu.Feedback.Error.InvalidArgs", derr.Name)
}

func TestErrAlreadyOwnedMessage(t *testing.T) {
	assert.Contains(t, errAlreadyOwned{}.Error(), "already owned")
}
