// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// feedbackd is the daemon entry point: it wires the device backends, the
// active theme, the settings store, and the org.sigxcpu.Feedback bus
// object around a single event loop (spec.md §4.C11, §5).
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/droidian/feedbackd/bus"
	"github.com/droidian/feedbackd/devhal"
	"github.com/droidian/feedbackd/devled"
	"github.com/droidian/feedbackd/devsound"
	"github.com/droidian/feedbackd/devvibra"
	"github.com/droidian/feedbackd/feedback"
	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/internal/settings"
	"github.com/droidian/feedbackd/manager"
	"github.com/droidian/feedbackd/sched"
	"github.com/droidian/feedbackd/themeexpand"
	"github.com/droidian/feedbackd/udevwatch"
	"github.com/spf13/cobra"
)

const agentName = "feedbackd"

// config holds the flags createRootCommand binds; all three are read once
// at startup.
type config struct {
	theme       string
	compatibles []string
	debug       bool
}

func main() {
	cfg := &config{}
	root := createRootCommand(cfg)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func createRootCommand(cfg *config) *cobra.Command {
	root := &cobra.Command{
		Use:   agentName,
		Short: "Haptic/audio/LED feedback daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	root.Flags().StringVar(&cfg.theme, "theme", "", "theme name to load (overrides FEEDBACK_THEME)")
	root.Flags().StringSliceVar(&cfg.compatibles, "compatible", nil, "device-tree compatible strings, most specific first")
	root.Flags().BoolVarP(&cfg.debug, "debug", "d", false, "enable trace-level logging")
	return root
}

func run(cfg *config) error {
	log := flog.New(agentName)
	log.SetDebug(cfg.debug)

	themeName := cfg.theme
	if themeName == "" {
		themeName = os.Getenv("FEEDBACK_THEME")
	}
	if themeName == "" {
		themeName = "default"
	}

	loop := sched.New()
	loopStop := make(chan struct{})
	go loop.Run(loopStop)
	defer close(loopStop)

	devices := buildDevices(loop, log)

	expander := themeexpand.New(cfg.compatibles, log)
	initialTheme, err := expander.Load(themeName)
	if err != nil {
		log.Errorf("loading theme %q: %v", themeName, err)
		return err
	}
	log.Noticef("loaded theme %q", themeName)

	settingsPath := settingsPathFor()
	store, err := settings.Open(settingsPath, loop, log)
	if err != nil {
		log.Errorf("opening settings store %q: %v", settingsPath, err)
		return err
	}
	defer store.Close()

	mgr := manager.New(loop, log, devices, initialTheme, expander, store, nil)

	watchStop := make(chan struct{})
	defer close(watchStop)
	if watcher, err := udevwatch.NewWatcher("input", log); err != nil {
		log.Warnf("udev hot-plug watch for input devices unavailable: %v", err)
	} else {
		go watcher.Run(watchStop, func(ev udevwatch.Event) {
			kind, ok := ev.Device.Attr("FEEDBACKD_TYPE")
			if !ok || kind != "vibra" {
				return
			}
			loop.Post(func() { onVibraHotplug(mgr, ev, log) })
		})
	}

	svc, err := bus.Export(mgr, loop, log)
	if err != nil {
		log.Errorf("exporting bus object: %v", err)
		return err
	}
	defer svc.Close()
	mgr.SetSignaler(svc)

	log.Noticef("feedbackd ready on %s", bus.InterfaceName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			loop.Post(func() { mgr.ReloadTheme(themeName) })
		default:
			done := make(chan struct{})
			loop.Post(func() {
				mgr.Shutdown()
				close(done)
			})
			<-done
			return nil
		}
	}
	return nil
}

// buildDevices probes every backend in spec.md §4.C2-§4.C6's preference
// order: evdev/sysfs first, Android HAL as the fallback when no udev
// device carries the FEEDBACKD_TYPE marker.
func buildDevices(loop *sched.Loop, log *flog.Logger) *feedback.Devices {
	devices := &feedback.Devices{}

	if vibraPath, ok := findMarkedDevice("input", "vibra"); ok {
		dev, err := devvibra.Open(vibraPath)
		if err != nil {
			log.Warnf("opening vibra device %s: %v", vibraPath, err)
		} else {
			devices.Vibra = dev
			log.Noticef("vibra device %s ready", vibraPath)
		}
	}
	if devices.Vibra == nil {
		if v, ok := devhal.NewVibra(log); ok {
			devices.Vibra = v
		}
	}

	if leds := buildLedSet(log); leds != nil {
		devices.Leds = leds
	} else if l, ok := devhal.NewLed(log); ok {
		devices.Leds = l
	}

	devices.Sound = devsound.New(loop, log)

	return devices
}

func buildLedSet(log *flog.Logger) *devled.Set {
	entries, err := udevwatch.Enumerate("leds")
	if err != nil {
		log.Warnf("enumerating leds class: %v", err)
		return nil
	}
	set := devled.NewSet()
	found := false
	for _, entry := range entries {
		led, err := devled.Open(entry.SysfsPath, entry.Name)
		if err != nil {
			log.Warnf("opening led %s: %v", entry.Name, err)
			continue
		}
		set.Add(led)
		found = true
		log.Noticef("led device %s ready", entry.Name)
	}
	if !found {
		return nil
	}
	return set
}

// findMarkedDevice enumerates subsystem looking for the FEEDBACKD_TYPE
// udev marker attribute (spec.md §6) equal to want, returning the evdev
// character device path it names.
func findMarkedDevice(subsystem, want string) (string, bool) {
	entries, err := udevwatch.Enumerate(subsystem)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		kind, ok := entry.Attr("FEEDBACKD_TYPE")
		if !ok || kind != want {
			continue
		}
		return filepath.Join("/dev", subsystem, entry.Name), true
	}
	return "", false
}

// onVibraHotplug implements the add/remove half of spec.md §4.C1's udev
// adoption: a newly marked vibra node is opened and installed, a removed
// one is released. Must run on the event loop goroutine.
func onVibraHotplug(mgr *manager.Manager, ev udevwatch.Event, log *flog.Logger) {
	switch ev.Action {
	case "add":
		path := filepath.Join("/dev/input", ev.Device.Name)
		dev, err := devvibra.Open(path)
		if err != nil {
			log.Warnf("opening hot-plugged vibra device %s: %v", path, err)
			return
		}
		if !mgr.AdoptVibra(dev) {
			if err := dev.Close(); err != nil {
				log.Warnf("closing unadopted vibra device %s: %v", path, err)
			}
		}
	case "remove":
		mgr.ReleaseVibra()
	}
}

func settingsPathFor() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, agentName, "overrides.json")
}

