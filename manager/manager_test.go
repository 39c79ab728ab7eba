package manager

import (
	"testing"
	"time"

	"github.com/droidian/feedbackd/feedback"
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/theme"
	"github.com/droidian/feedbackd/types"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoop(t *testing.T) (*sched.Loop, func()) {
	l := sched.New()
	stop := make(chan struct{})
	go l.Run(stop)
	t.Cleanup(func() { close(stop) })
	return l, func() {}
}

type fakeSignaler struct {
	ended   []types.EndReason
	watched []string
	vanish  map[string]func()
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{vanish: map[string]func(){}}
}

func (f *fakeSignaler) EmitFeedbackEnded(id types.EventID, reason types.EndReason) error {
	f.ended = append(f.ended, reason)
	return nil
}
func (f *fakeSignaler) NotifyProfileChanged(types.ProfileLevel) error { return nil }
func (f *fakeSignaler) WatchPeer(sender string, onVanish func()) error {
	f.watched = append(f.watched, sender)
	f.vanish[sender] = onVanish
	return nil
}

func themeWithDummy(eventName string) theme.Theme {
	raw := `{"name":"t","profiles":[{"name":"full","feedbacks":[{"type":"Dummy","event_name":"` + eventName + `","duration_ms":0}]}]}`
	var th theme.Theme
	if err := th.UnmarshalJSON([]byte(raw)); err != nil {
		panic(err)
	}
	return th
}

func TestHandleTriggerUnknownEventEmitsNotFound(t *testing.T) {
	loop, _ := testLoop(t)
	sig := newFakeSignaler()
	m := New(loop, flog.New("test"), &feedback.Devices{}, themeWithDummy("known"), nil, nil, sig)

	id, err := m.HandleTrigger(":1.1", "app", "unknown-event", nil, -1)
	require.NoError(t, err)
	assert.NotZero(t, id)
	require.Eventually(t, func() bool { return len(sig.ended) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.ReasonNotFound, sig.ended[0])
}

func TestHandleTriggerRejectsEmptyAppID(t *testing.T) {
	loop, _ := testLoop(t)
	m := New(loop, flog.New("test"), &feedback.Devices{}, themeWithDummy("e"), nil, nil, newFakeSignaler())
	_, err := m.HandleTrigger(":1.1", "", "e", nil, -1)
	require.Error(t, err)
	_, ok := err.(*types.InvalidArgs)
	assert.True(t, ok)
}

func TestHandleTriggerDummyRunsToCompletionAndEmitsNatural(t *testing.T) {
	loop, _ := testLoop(t)
	sig := newFakeSignaler()
	m := New(loop, flog.New("test"), &feedback.Devices{}, themeWithDummy("ring"), nil, nil, sig)

	_, err := m.HandleTrigger(":1.1", "app", "ring", nil, -1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sig.ended) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.ReasonNatural, sig.ended[0])
	assert.Empty(t, m.events)
}

func TestHandleTriggerRejectsUnknownHintProfile(t *testing.T) {
	loop, _ := testLoop(t)
	m := New(loop, flog.New("test"), &feedback.Devices{}, themeWithDummy("e"), nil, nil, newFakeSignaler())
	hints := map[string]dbus.Variant{"profile": dbus.MakeVariant("deafening")}
	_, err := m.HandleTrigger(":1.1", "app", "e", hints, -1)
	require.Error(t, err)
}

func TestOnPeerVanishedEndsThatSendersEvents(t *testing.T) {
	loop, _ := testLoop(t)
	sig := newFakeSignaler()
	m := New(loop, flog.New("test"), &feedback.Devices{Leds: fakeLeds{}}, mustLedFeedback("glow"), nil, nil, sig)

	_, err := m.HandleTrigger(":1.1", "app", "glow", nil, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(m.events) == 1 }, time.Second, 5*time.Millisecond)

	onVanish, ok := sig.vanish[":1.1"]
	require.True(t, ok)
	onVanish()

	require.Eventually(t, func() bool { return len(m.events) == 0 }, time.Second, 5*time.Millisecond)
}

type fakeLeds struct{}

func (fakeLeds) HasColor(types.Color) bool { return true }
func (fakeLeds) StartPeriodic(types.Color, uint8, uint32) error { return nil }
func (fakeLeds) Stop(types.Color) error { return nil }

type fakeVibra struct{ id int }

func (fakeVibra) Rumble(uint32, bool) error                     { return nil }
func (fakeVibra) Periodic(uint32, uint16, uint16, uint32) error { return nil }
func (fakeVibra) Stop() error                                   { return nil }

func TestAdoptVibraIsNoOpWhenDeviceAlreadyPresent(t *testing.T) {
	loop, _ := testLoop(t)
	devices := &feedback.Devices{}
	m := New(loop, flog.New("test"), devices, themeWithDummy("e"), nil, nil, newFakeSignaler())

	first := fakeVibra{id: 1}
	assert.True(t, m.AdoptVibra(first))
	assert.Equal(t, feedback.VibraDevice(first), devices.Vibra)

	second := fakeVibra{id: 2}
	assert.False(t, m.AdoptVibra(second))
	assert.Equal(t, feedback.VibraDevice(first), devices.Vibra, "a second adopt must not replace the live device")

	m.ReleaseVibra()
	assert.Nil(t, devices.Vibra)
	assert.True(t, m.AdoptVibra(second), "adopt succeeds again once released")
	assert.Equal(t, feedback.VibraDevice(second), devices.Vibra)
}

func mustLedFeedback(eventName string) theme.Theme {
	raw := `{"name":"t","profiles":[{"name":"full","feedbacks":[{"type":"Led","event_name":"` + eventName + `","color":"White","max_brightness_pct":50,"frequency_mhz":1000}]}]}`
	var th theme.Theme
	if err := th.UnmarshalJSON([]byte(raw)); err != nil {
		panic(err)
	}
	return th
}
