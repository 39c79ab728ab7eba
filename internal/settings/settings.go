// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package settings implements the per-app profile-level override store
// spec.md §4.C11 step 3 describes: a JSON file keyed by a munged app-id,
// watched with fsnotify so an external editor's changes apply live.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/types"
	"github.com/fsnotify/fsnotify"
)

var nonAppIDChar = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// MungeAppID normalizes app_id into a settings key: ASCII alphanumerics and
// '-' are preserved, everything else becomes '-', and the result is
// lowercased (spec.md §4.C11 step 3).
func MungeAppID(appID string) string {
	return strings.ToLower(nonAppIDChar.ReplaceAllString(appID, "-"))
}

// Store is a JSON-file-backed map of munged app-id to profile level,
// reloaded on write via fsnotify.
type Store struct {
	path string
	loop *sched.Loop
	log  *flog.Logger

	mu     sync.RWMutex
	levels map[string]types.ProfileLevel

	watcher *fsnotify.Watcher
}

// Open loads path (treating a missing file as empty) and starts watching
// it for external changes. Close stops the watch.
func Open(path string, loop *sched.Loop, log *flog.Logger) (*Store, error) {
	s := &Store{path: path, loop: loop, log: log, levels: map[string]types.ProfileLevel{}}
	if err := s.reload(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &types.DeviceIO{Backend: "settings", Op: "mkdir", Err: err}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &types.DeviceIO{Backend: "settings", Op: "fsnotify.NewWatcher", Err: err}
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, &types.DeviceIO{Backend: "settings", Op: "fsnotify.Add", Err: err}
	}
	s.watcher = w
	go s.watch()
	return s, nil
}

func (s *Store) watch() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.loop.Post(func() {
				if err := s.reload(); err != nil {
					s.log.Warnf("settings reload: %v", err)
				}
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("settings watcher: %v", err)
		}
	}
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &types.DeviceIO{Backend: "settings", Op: "read", Err: err}
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &types.DeviceIO{Backend: "settings", Op: "unmarshal", Err: err}
	}
	levels := make(map[string]types.ProfileLevel, len(raw))
	for appID, name := range raw {
		level, ok := types.ParseProfileLevel(name)
		if !ok {
			s.log.Warnf("settings: ignoring unknown profile level %q for %q", name, appID)
			continue
		}
		levels[appID] = level
	}
	s.mu.Lock()
	s.levels = levels
	s.mu.Unlock()
	return nil
}

// Level returns the stored override for appID (already munged by the
// caller via MungeAppID), or ProfileUnknown if none is set.
func (s *Store) Level(mungedAppID string) types.ProfileLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.levels[mungedAppID]
}

// SetLevel persists an override for mungedAppID and rewrites the backing
// file; the fsnotify watch will pick the write back up and reload.
func (s *Store) SetLevel(mungedAppID string, level types.ProfileLevel) error {
	s.mu.Lock()
	s.levels[mungedAppID] = level
	raw := make(map[string]string, len(s.levels))
	for appID, l := range s.levels {
		raw[appID] = l.String()
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return &types.DeviceIO{Backend: "settings", Op: "marshal", Err: err}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return &types.DeviceIO{Backend: "settings", Op: "write", Err: err}
	}
	return nil
}

// Close stops the fsnotify watch.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
