// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package devsound implements the C5 sound backend: playback of a named
// XDG sound-theme event with per-playback cancellation, against a
// canberra-style sound-playback context.
package devsound

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
)

// player is the narrow process-launching seam Context uses; tests
// substitute a fake to avoid depending on a real canberra-gtk-play binary.
type player interface {
	// Play starts playing effect under theme and blocks until it completes,
	// is canceled (ctx done), or errors.
	Play(ctx context.Context, theme, effect string) error
}

// execPlayer shells out to canberra-gtk-play, the standard CLI front-end
// to libcanberra's XDG sound-theme playback (no Go binding for
// PulseAudio/libcanberra exists among this project's dependencies).
type execPlayer struct{}

func (execPlayer) Play(ctx context.Context, theme, effect string) error {
	args := []string{"-i", effect, "-d", "Feedbackd sound feedback"}
	if theme != "" {
		args = append(args, "--theme-name", theme)
	}
	cmd := exec.CommandContext(ctx, "canberra-gtk-play", args...)
	return cmd.Run()
}

// playback tracks one in-flight Play call's cancellation handle.
type playback struct {
	cancel context.CancelFunc
}

// Context is the C5 sound-playback context: it tracks one cancellation
// handle per in-flight playback id and the currently selected XDG
// sound-theme name.
type Context struct {
	player player
	loop   *sched.Loop
	log    *flog.Logger

	mu        sync.Mutex
	themeName string
	playbacks map[string]*playback
}

// New builds a Context. It does not subscribe to sound-theme-name changes,
// on GNOME or elsewhere; the theme name stays empty until SetThemeName is
// called.
func New(loop *sched.Loop, log *flog.Logger) *Context {
	return &Context{
		player:    execPlayer{},
		loop:      loop,
		log:       log,
		playbacks: map[string]*playback{},
	}
}

// IsGnomeDesktop reports whether XDG_CURRENT_DESKTOP names GNOME, the
// condition spec.md §4.C5 gates the sound-theme-name subscription on.
func IsGnomeDesktop() bool {
	return os.Getenv("XDG_CURRENT_DESKTOP") == "GNOME"
}

// SetThemeName updates the XDG sound theme new playbacks use. Nothing in
// the daemon calls it; playbacks use canberra-gtk-play's default theme
// unless a caller sets one.
func (c *Context) SetThemeName(name string) {
	c.mu.Lock()
	c.themeName = name
	c.mu.Unlock()
}

// Play implements spec.md §4.C5: create a cancellation handle for
// playbackID, submit the play request, and invoke onDone exactly once
// (success, not-found, or canceled) posted back onto the event loop.
func (c *Context) Play(playbackID, effect string, onDone func()) error {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.playbacks[playbackID] = &playback{cancel: cancel}
	theme := c.themeName
	c.mu.Unlock()

	go func() {
		err := c.player.Play(ctx, theme, effect)
		if err != nil {
			c.log.Warnf("sound playback %s for effect %q: %v", playbackID, effect, err)
		}
		c.mu.Lock()
		delete(c.playbacks, playbackID)
		c.mu.Unlock()
		c.loop.Post(onDone)
	}()
	return nil
}

// Stop cancels the playback identified by playbackID, if still running.
// onDone still fires, posted onto the event loop by the goroutine Play
// started (spec.md §4.C5: "on-done still fires").
func (c *Context) Stop(playbackID string) {
	c.mu.Lock()
	pb, ok := c.playbacks[playbackID]
	c.mu.Unlock()
	if !ok {
		return
	}
	pb.cancel()
}
