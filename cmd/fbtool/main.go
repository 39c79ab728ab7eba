// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// fbtool is a small CLI around the lfb client library: trigger a named
// event, optionally set the daemon-wide profile, and watch for the bus
// reply. It mirrors the original cli/fbcli.c smoke-test tool.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/droidian/feedbackd/internal/flog"
	"github.com/droidian/feedbackd/lfb"
	"github.com/droidian/feedbackd/types"
	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
)

const defaultEvent = "phone-incoming-call"

type config struct {
	event   string
	profile string
	timeout int32
	watch   int
}

func main() {
	cfg := &config{event: defaultEvent, timeout: -1, watch: 30}
	root := &cobra.Command{
		Use:   "fbtool",
		Short: "A cli for feedbackd",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	root.Flags().StringVarP(&cfg.event, "event", "E", defaultEvent, "event name")
	root.Flags().Int32VarP(&cfg.timeout, "timeout", "t", -1, "run feedback for timeout seconds")
	root.Flags().StringVarP(&cfg.profile, "profile", "P", "", "profile name to set")
	root.Flags().IntVarP(&cfg.watch, "watch", "w", 30, "how long to watch for feedback, in seconds, at longest")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	log := flog.New("fbtool")
	ctx, err := lfb.Init("org.sigxcpu.fbtool", log)
	if err != nil {
		return fmt.Errorf("init libfeedback: %w", err)
	}
	defer ctx.Uninit()

	if cfg.profile != "" {
		return setProfile(ctx, cfg.profile)
	}
	return triggerEvent(ctx, cfg)
}

func setProfile(ctx *lfb.Context, name string) error {
	level, ok := types.ParseProfileLevel(name)
	if !ok {
		return fmt.Errorf("unrecognized profile %q", name)
	}
	current, err := ctx.Profile()
	if err == nil && current == level {
		fmt.Printf("Profile is already set to %s\n", level)
		return nil
	}
	if err := ctx.SetProfile(level); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	fmt.Printf("Set feedback profile to: %s\n", level)
	return nil
}

func triggerEvent(ctx *lfb.Context, cfg *config) error {
	fmt.Printf("Triggering feedback for event %q\n", cfg.event)

	hints := map[string]dbus.Variant{}
	ended := make(chan types.EndReason, 1)
	id, err := ctx.Trigger(cfg.event, hints, cfg.timeout, func(reason types.EndReason) {
		ended <- reason
	})
	if err != nil {
		return fmt.Errorf("trigger feedback: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	fmt.Println("Press Ctrl-C to end feedback right away.")

	select {
	case reason := <-ended:
		fmt.Printf("Feedback ended: %s\n", reason)
		return nil
	case <-sigCh:
		fmt.Println("Ending feedback")
		if err := ctx.End(id); err != nil {
			fmt.Fprintf(os.Stderr, "failed to end feedback: %v\n", err)
		}
		<-ended
		return nil
	case <-time.After(time.Duration(cfg.watch) * time.Second):
		return fmt.Errorf("watch expired waiting for feedback to finish")
	}
}
