// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package theme implements the C8 theme model: a JSON document mapping
// profile levels to a set of named feedbacks, plus the overlay-merge and
// cascading-lookup operations the manager needs to resolve a trigger.
package theme

import (
	"encoding/json"
	"fmt"

	"github.com/droidian/feedbackd/feedback"
	"github.com/droidian/feedbackd/types"
)

// Profile holds the feedbacks declared for one noise level. Events is
// keyed by event_name; last-writer-wins is enforced during decode (spec.md
// §3: "event names are unique within a profile").
type Profile struct {
	Level  types.ProfileLevel
	Events map[string]feedback.Feedback
}

// Theme is the in-memory form of one theme file: a name, an optional link
// to a parent theme to inherit from, and the per-level profiles this theme
// itself declares (before any parent-chain merge).
type Theme struct {
	Name       string
	ParentName string // empty means no parent
	Profiles   map[types.ProfileLevel]*Profile
}

// wireTheme and wireProfile mirror the on-disk JSON shape exactly (field
// names are fixed by the object-bus/theme-file interop contract, spec.md
// §4.C8); Theme itself uses ProfileLevel keys internally for O(1) lookup.
type wireTheme struct {
	Name       string          `json:"name"`
	ParentName string          `json:"parent-name,omitempty"`
	Profiles   []wireProfile   `json:"profiles"`
}

type wireProfile struct {
	Name      string               `json:"name"`
	Feedbacks []feedback.Feedback  `json:"feedbacks"`
}

// UnmarshalJSON decodes one theme file, rejecting an empty name and any
// profile whose name is not one of silent/quiet/full.
func (t *Theme) UnmarshalJSON(data []byte) error {
	var w wireTheme
	if err := json.Unmarshal(data, &w); err != nil {
		return &types.ThemeParse{Reason: err.Error()}
	}
	if w.Name == "" {
		return &types.ThemeParse{Reason: "theme is missing a name"}
	}
	out := Theme{
		Name:       w.Name,
		ParentName: w.ParentName,
		Profiles:   map[types.ProfileLevel]*Profile{},
	}
	for _, wp := range w.Profiles {
		level, ok := types.ParseProfileLevel(wp.Name)
		if !ok {
			return &types.ThemeParse{Reason: fmt.Sprintf("unknown profile name %q", wp.Name)}
		}
		profile, ok := out.Profiles[level]
		if !ok {
			profile = &Profile{Level: level, Events: map[string]feedback.Feedback{}}
			out.Profiles[level] = profile
		}
		for _, fb := range wp.Feedbacks {
			profile.Events[fb.EventName] = fb
		}
	}
	*t = out
	return nil
}

// MarshalJSON re-encodes a Theme to the same wire shape it was parsed
// from, used by the theme round-trip tests.
func (t Theme) MarshalJSON() ([]byte, error) {
	w := wireTheme{Name: t.Name, ParentName: t.ParentName}
	for _, level := range []types.ProfileLevel{types.ProfileSilent, types.ProfileQuiet, types.ProfileFull} {
		profile, ok := t.Profiles[level]
		if !ok {
			continue
		}
		wp := wireProfile{Name: profile.Level.String()}
		for _, fb := range profile.Events {
			wp.Feedbacks = append(wp.Feedbacks, fb)
		}
		w.Profiles = append(w.Profiles, wp)
	}
	return json.Marshal(w)
}

// Update implements the C8 overlay merge: every event overlay declares is
// inserted-or-replaced into the matching base profile; profiles overlay
// declares that base lacks are added whole. The overlay's name wins.
func Update(base, overlay Theme) Theme {
	out := Theme{
		Name:       overlay.Name,
		ParentName: base.ParentName,
		Profiles:   map[types.ProfileLevel]*Profile{},
	}
	for level, p := range base.Profiles {
		out.Profiles[level] = &Profile{Level: level, Events: cloneEvents(p.Events)}
	}
	for level, op := range overlay.Profiles {
		bp, ok := out.Profiles[level]
		if !ok {
			out.Profiles[level] = &Profile{Level: level, Events: cloneEvents(op.Events)}
			continue
		}
		for name, fb := range op.Events {
			bp.Events[name] = fb
		}
	}
	return out
}

func cloneEvents(in map[string]feedback.Feedback) map[string]feedback.Feedback {
	out := make(map[string]feedback.Feedback, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Lookup implements the C8 cascading lookup: walk profile levels from
// level down to Silent, returning the first profile that defines event.
// At most one feedback is ever returned.
func (t Theme) Lookup(level types.ProfileLevel, event string) (feedback.Feedback, bool) {
	for _, l := range level.CascadeFrom() {
		profile, ok := t.Profiles[l]
		if !ok {
			continue
		}
		if fb, ok := profile.Events[event]; ok {
			return fb, true
		}
	}
	return feedback.Feedback{}, false
}
