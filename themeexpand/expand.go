// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package themeexpand implements the C9 theme expander: resolving a theme
// name to a file on disk, then following its parent-name chain and
// applying theme.Update until a single merged Theme remains.
package themeexpand

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/theme"
	"github.com/droidian/feedbackd/types"
	"github.com/droidian/feedbackd/utils"
)

// DefaultThemeName is the name that triggers the compatible-ordered search
// instead of a plain name lookup (spec.md §4.C9 step 2).
const DefaultThemeName = "default"

// maxDepth bounds the parent-name chain; a theme nesting deeper than this
// is rejected rather than followed forever.
const maxDepth = 10

// Expander resolves theme names to files and loads their parent chains.
// UserConfigDir, DataDirs and DataDir are resolved once at construction so
// tests can point them at scratch directories.
type Expander struct {
	UserConfigDir string   // e.g. $XDG_CONFIG_HOME/feedbackd/themes
	DataDirs      []string // e.g. $XDG_DATA_HOME/feedbackd/themes, then $XDG_DATA_DIRS entries
	DataDir       string   // compiled-in fallback, e.g. /usr/share/feedbackd/themes
	Compatibles   []string // device-compatible strings, most specific first

	log *flog.Logger
}

// New builds an Expander from the process environment, following the same
// $XDG_CONFIG_HOME/$XDG_DATA_HOME/$XDG_DATA_DIRS precedence as the rest of
// the desktop stack.
func New(compatibles []string, log *flog.Logger) *Expander {
	home := os.Getenv("HOME")
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	dirs := []string{filepath.Join(dataHome, "feedbackd", "themes")}
	for _, d := range strings.Split(dataDirs, ":") {
		if d == "" {
			continue
		}
		dirs = append(dirs, filepath.Join(d, "feedbackd", "themes"))
	}

	return &Expander{
		UserConfigDir: filepath.Join(configHome, "feedbackd", "themes"),
		DataDirs:      dirs,
		DataDir:       "/usr/share/feedbackd/themes",
		Compatibles:   compatibles,
		log:           log,
	}
}

// resolve finds the file backing theme name, per spec.md §4.C9 steps 1-4.
func (e *Expander) resolve(name string) (string, bool) {
	userPath := filepath.Join(e.UserConfigDir, name+".json")
	if fileExists(userPath) {
		return userPath, true
	}
	if name == DefaultThemeName {
		for _, compat := range e.Compatibles {
			for _, dir := range e.DataDirs {
				p := filepath.Join(dir, compat+".json")
				if fileExists(p) {
					return p, true
				}
			}
		}
	}
	for _, dir := range e.DataDirs {
		p := filepath.Join(dir, name+".json")
		if fileExists(p) {
			return p, true
		}
	}
	p := filepath.Join(e.DataDir, name+".json")
	if fileExists(p) {
		return p, true
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadFile(path string) (theme.Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return theme.Theme{}, &types.ThemeExpand{Theme: path, Reason: err.Error()}
	}
	var th theme.Theme
	if err := json.Unmarshal(data, &th); err != nil {
		return theme.Theme{}, &types.ThemeExpand{Theme: path, Reason: err.Error()}
	}
	return th, nil
}

// Load resolves name and its full parent-name chain, applying theme.Update
// from the oldest ancestor down to name itself so that name's own entries
// win the overlay merge.
func (e *Expander) Load(name string) (theme.Theme, error) {
	var chain []theme.Theme
	var visited []string
	current := name

	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return theme.Theme{}, &types.ThemeExpand{Theme: name, Reason: "parent-name chain exceeds depth 10"}
		}
		if current == "" {
			return theme.Theme{}, &types.ThemeExpand{Theme: name, Reason: "theme has an empty name"}
		}
		if utils.Contains(visited, current) {
			return theme.Theme{}, &types.ThemeExpand{Theme: current, Reason: "parent-name chain cycles back to " + current}
		}
		visited = append(visited, current)

		path, ok := e.resolve(current)
		if !ok {
			if current == DefaultThemeName {
				return theme.Theme{}, &types.ThemeExpand{Theme: current, Reason: "default theme could not be resolved"}
			}
			e.log.Warnf("theme %q not found, falling back to %q", current, DefaultThemeName)
			current = DefaultThemeName
			continue
		}

		th, err := loadFile(path)
		if err != nil {
			return theme.Theme{}, err
		}
		if th.Name == "" {
			return theme.Theme{}, &types.ThemeExpand{Theme: path, Reason: "theme has an empty name"}
		}
		if current == DefaultThemeName {
			if th.ParentName != "" {
				return theme.Theme{}, &types.ThemeExpand{Theme: th.Name, Reason: "default theme must not declare parent-name"}
			}
		}
		chain = append(chain, th)
		if th.ParentName == "" {
			break
		}
		current = th.ParentName
	}

	merged := chain[len(chain)-1]
	for i := len(chain) - 2; i >= 0; i-- {
		merged = theme.Update(merged, chain[i])
	}
	return merged, nil
}

// String implements fmt.Stringer for log messages summarizing an Expander's
// configured search path.
func (e *Expander) String() string {
	return fmt.Sprintf("user=%s data=%v compiled=%s", e.UserConfigDir, e.DataDirs, e.DataDir)
}
