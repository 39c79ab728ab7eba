package feedback

import (
	"testing"
	"time"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVibra struct {
	rumbles   []bool // upload flag per call
	periodics int
	stops     int
}

func (f *fakeVibra) Rumble(durationMs uint32, upload bool) error {
	f.rumbles = append(f.rumbles, upload)
	return nil
}
func (f *fakeVibra) Periodic(durationMs uint32, magnitude, fadeInLevel uint16, fadeInTimeMs uint32) error {
	f.periodics++
	return nil
}
func (f *fakeVibra) Stop() error {
	f.stops++
	return nil
}

type fakeLeds struct {
	started bool
	stopped bool
	color   types.Color
}

func (f *fakeLeds) StartPeriodic(color types.Color, pct uint8, freq uint32) error {
	f.started = true
	f.color = color
	return nil
}
func (f *fakeLeds) Stop(color types.Color) error {
	f.stopped = true
	return nil
}
func (f *fakeLeds) HasColor(color types.Color) bool { return true }

type fakeSound struct {
	playing map[string]func()
}

func newFakeSound() *fakeSound { return &fakeSound{playing: map[string]func(){}} }

func (f *fakeSound) Play(id, effect string, onDone func()) error {
	f.playing[id] = onDone
	return nil
}
func (f *fakeSound) Stop(id string) {
	if done, ok := f.playing[id]; ok {
		delete(f.playing, id)
		done()
	}
}

func testLoop(t *testing.T) (*sched.Loop, func()) {
	l := sched.New()
	stop := make(chan struct{})
	go l.Run(stop)
	return l, func() { close(stop) }
}

func TestRunnerDummyImmediate(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	ended := make(chan struct{})
	r := NewRunner(Feedback{Kind: types.KindDummy}, &Devices{}, loop, flog.New("test"), func() { close(ended) })
	loop.Post(r.Run)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("dummy feedback with duration 0 never ended")
	}
}

func TestRunnerDummyDuration(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	ended := make(chan struct{})
	r := NewRunner(Feedback{Kind: types.KindDummy, DurationMs: 20}, &Devices{}, loop, flog.New("test"), func() { close(ended) })
	start := time.Now()
	loop.Post(r.Run)
	select {
	case <-ended:
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("dummy feedback never ended")
	}
}

func TestRunnerVibraRumbleRepeatsAndEnds(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	vibra := &fakeVibra{}
	ended := make(chan struct{})
	fb := Feedback{Kind: types.KindVibraRumble, DurationMs: 60, Count: 3, PauseMs: 0}
	r := NewRunner(fb, &Devices{Vibra: vibra}, loop, flog.New("test"), func() { close(ended) })
	loop.Post(r.Run)
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("vibra rumble never ended")
	}
	assert.Len(t, vibra.rumbles, 3)
	assert.True(t, vibra.rumbles[0])
	assert.False(t, vibra.rumbles[1])
	assert.False(t, vibra.rumbles[2])
}

func TestRunnerVibraRumbleDegenerateFallsBack(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	vibra := &fakeVibra{}
	ended := make(chan struct{})
	// count*pause >= duration degenerates to (1000, 0, 1).
	fb := Feedback{Kind: types.KindVibraRumble, DurationMs: 10, Count: 5, PauseMs: 100}
	r := NewRunner(fb, &Devices{Vibra: vibra}, loop, flog.New("test"), func() { close(ended) })
	assert.Equal(t, uint32(10), fb.DurationMs) // sanity: caller's struct unaffected by Run()
	loop.Post(r.Run)
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("vibra rumble never ended")
	}
	assert.Len(t, vibra.rumbles, 1)
	assert.Equal(t, uint32(1000), r.vibraRumbleMs)
}

func TestRunnerLedEndedByExplicitEnd(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	leds := &fakeLeds{}
	ended := make(chan struct{})
	fb := Feedback{Kind: types.KindLed, Color: types.ColorRed, FrequencyMilliHz: 2000, MaxBrightnessPct: 100}
	r := NewRunner(fb, &Devices{Leds: leds}, loop, flog.New("test"), func() { close(ended) })
	done := make(chan struct{})
	loop.Post(func() { r.Run(); close(done) })
	<-done
	select {
	case <-ended:
		t.Fatal("led feedback ended without End()")
	case <-time.After(50 * time.Millisecond):
	}
	loop.Post(r.End)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("led feedback never ended after End()")
	}
	assert.True(t, leds.started)
	assert.True(t, leds.stopped)
}

func TestRunnerSoundEndedByOnDone(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	sound := newFakeSound()
	ended := make(chan struct{})
	fb := Feedback{Kind: types.KindSound, Effect: "phone-incoming-call"}
	r := NewRunner(fb, &Devices{Sound: sound}, loop, flog.New("test"), func() { close(ended) })
	loop.Post(r.Run)
	require.Eventually(t, func() bool {
		_, ok := sound.playing[r.playbackID]
		return ok
	}, time.Second, time.Millisecond)
	loop.Post(r.End)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("sound feedback never ended after End()")
	}
}

func TestRunnerIsAvailable(t *testing.T) {
	loop, cancel := testLoop(t)
	defer cancel()
	log := flog.New("test")
	r := NewRunner(Feedback{Kind: types.KindVibraRumble}, &Devices{}, loop, log, func() {})
	assert.False(t, r.IsAvailable())
	r2 := NewRunner(Feedback{Kind: types.KindDummy}, &Devices{}, loop, log, func() {})
	assert.True(t, r2.IsAvailable())
}
