package devhal

import (
	"testing"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/types"
	"github.com/stretchr/testify/assert"
)

func testLogger(t *testing.T) *flog.Logger {
	t.Helper()
	return flog.New("test")
}

func TestColorToARGB(t *testing.T) {
	testMatrix := map[string]struct {
		color types.Color
		pct   uint8
		want  uint32
	}{
		"white at full brightness is opaque white": {
			color: types.ColorWhite, pct: 100, want: 0xFFFFFFFF,
		},
		"red at half brightness only sets the red channel": {
			color: types.ColorRed, pct: 50, want: 0xFF000000 | (0xFF*50/100)<<16,
		},
		"rgb behaves like white": {
			color: types.ColorRgb, pct: 100, want: 0xFFFFFFFF,
		},
	}
	for name, test := range testMatrix {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, colorToARGB(test.color, test.pct))
		})
	}
}

func TestFlashTimingMs(t *testing.T) {
	assert.Equal(t, uint32(250), flashTimingMs(2000))
	assert.Equal(t, uint32(0), flashTimingMs(0))
}

func TestArgbBrightnessTakesTheBrightestChannel(t *testing.T) {
	assert.Equal(t, uint32(0xFF), argbBrightness(colorToARGB(types.ColorGreen, 100)))
	assert.Equal(t, uint32(0x7F), argbBrightness(colorToARGB(types.ColorBlue, 50)))
}

func TestProbeVibraFallsBackWhenNoBackendAvailable(t *testing.T) {
	// On a CI/dev host there is no vendor sysfs marker and no binder node,
	// so probing must report unavailable rather than panicking.
	_, ok := ProbeVibra(testLogger(t))
	assert.False(t, ok)
}

func TestProbeLedFallsBackWhenNoBackendAvailable(t *testing.T) {
	_, ok := ProbeLed(testLogger(t))
	assert.False(t, ok)
}
