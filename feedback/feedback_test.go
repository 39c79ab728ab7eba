package feedback

import (
	"encoding/json"
	"testing"

	"github.com/droidian/feedbackd/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJSONDefaultsAndValidation(t *testing.T) {
	testMatrix := map[string]struct {
		input     string
		wantErr   bool
		checkFunc func(t *testing.T, fb Feedback)
	}{
		"dummy zero duration completes immediately": {
			input: `{"type":"Dummy","event_name":"e1"}`,
			checkFunc: func(t *testing.T, fb Feedback) {
				assert.Equal(t, uint32(0), fb.DurationMs)
			},
		},
		"vibra rumble defaults applied": {
			input: `{"type":"VibraRumble","event_name":"e1"}`,
			checkFunc: func(t *testing.T, fb Feedback) {
				assert.Equal(t, uint32(1000), fb.DurationMs)
				assert.Equal(t, uint32(1), fb.Count)
				assert.Equal(t, uint32(0), fb.PauseMs)
			},
		},
		"vibra periodic magnitude default": {
			input: `{"type":"VibraPeriodic","event_name":"e1","duration_ms":200}`,
			checkFunc: func(t *testing.T, fb Feedback) {
				assert.Equal(t, uint16(0x7FFF), fb.Magnitude)
			},
		},
		"led max brightness default": {
			input: `{"type":"Led","event_name":"e1","frequency_mhz":2000,"color":"Red"}`,
			checkFunc: func(t *testing.T, fb Feedback) {
				assert.Equal(t, uint8(100), fb.MaxBrightnessPct)
			},
		},
		"led zero frequency rejected": {
			input:   `{"type":"Led","event_name":"e1","color":"Red"}`,
			wantErr: true,
		},
		"led out-of-range brightness rejected": {
			input:   `{"type":"Led","event_name":"e1","frequency_mhz":1000,"max_brightness_pct":150}`,
			wantErr: true,
		},
		"led invalid color rejected": {
			input:   `{"type":"Led","event_name":"e1","frequency_mhz":1000,"color":"Purple"}`,
			wantErr: true,
		},
		"unknown kind rejected": {
			input:   `{"type":"Flashlight","event_name":"e1"}`,
			wantErr: true,
		},
		"missing event_name rejected": {
			input:   `{"type":"Dummy"}`,
			wantErr: true,
		},
	}

	for name, test := range testMatrix {
		t.Run(name, func(t *testing.T) {
			var fb Feedback
			err := json.Unmarshal([]byte(test.input), &fb)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if test.checkFunc != nil {
				test.checkFunc(t, fb)
			}
		})
	}
}

func TestFeedbackKindIsValid(t *testing.T) {
	assert.True(t, types.KindDummy.IsValid())
	assert.True(t, types.KindLed.IsValid())
	assert.False(t, types.FeedbackKind("Bogus").IsValid())
}
