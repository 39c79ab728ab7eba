package types

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestEffectiveLevel(t *testing.T) {

	testMatrix := map[string]struct {
		global        ProfileLevel
		perApp        ProfileLevel
		hint          ProfileLevel
		expectedValue ProfileLevel
	}{
		"no overrides, full passes through": {
			global:        ProfileFull,
			perApp:        ProfileUnknown,
			hint:          ProfileUnknown,
			expectedValue: ProfileFull,
		},
		"per-app lowers full to quiet": {
			global:        ProfileFull,
			perApp:        ProfileQuiet,
			hint:          ProfileUnknown,
			expectedValue: ProfileQuiet,
		},
		"hint lowers full to silent": {
			global:        ProfileFull,
			perApp:        ProfileFull,
			hint:          ProfileSilent,
			expectedValue: ProfileSilent,
		},
		"per-app above global has no effect": {
			global:        ProfileQuiet,
			perApp:        ProfileFull,
			hint:          ProfileUnknown,
			expectedValue: ProfileQuiet,
		},
		"hint above the already-lowered level has no effect": {
			global:        ProfileQuiet,
			perApp:        ProfileSilent,
			hint:          ProfileFull,
			expectedValue: ProfileSilent,
		},
	}

	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		output := EffectiveLevel(test.global, test.perApp, test.hint)
		assert.Equal(t, test.expectedValue, output)
	}
}

func TestParseProfileLevel(t *testing.T) {
	testMatrix := map[string]struct {
		name    string
		wantLvl ProfileLevel
		wantOK  bool
	}{
		"silent":  {name: "silent", wantLvl: ProfileSilent, wantOK: true},
		"quiet":   {name: "quiet", wantLvl: ProfileQuiet, wantOK: true},
		"full":    {name: "full", wantLvl: ProfileFull, wantOK: true},
		"unknown": {name: "deafening", wantLvl: ProfileUnknown, wantOK: false},
		"empty":   {name: "", wantLvl: ProfileUnknown, wantOK: false},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		lvl, ok := ParseProfileLevel(test.name)
		assert.Equal(t, test.wantOK, ok)
		if ok {
			assert.Equal(t, test.wantLvl, lvl)
		}
	}
}

func TestNormalizeTimeout(t *testing.T) {
	testMatrix := map[string]struct {
		in, want int32
	}{
		"oneshot stays -1":        {in: -1, want: -1},
		"loop stays 0":            {in: 0, want: 0},
		"positive stays":          {in: 30, want: 30},
		"below -1 normalized":     {in: -2, want: -1},
		"very negative normalized": {in: -1000, want: -1},
	}
	for testname, test := range testMatrix {
		t.Logf("Running test case %s", testname)
		assert.Equal(t, test.want, NormalizeTimeout(test.in))
	}
}
