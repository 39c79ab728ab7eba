// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

package devhal

import (
	"fmt"
	"os"

	"github.com/droidian/feedbackd/types"
)

// newAIDLVibra probes for android.hardware.vibrator.IVibrator over
// /dev/binder. Feedbackd runs on mainline-kernel mobile Linux hosts, not
// inside an Android binder domain, so this probe only ever confirms the
// binder device node is absent; it exists so ProbeVibra's fallback order
// matches spec.md §4.C6 exactly, and so a future vendor image that does
// expose the node has a documented extension point.
func newAIDLVibra() (Vibra, error) {
	if _, err := os.Stat(aidlBinderNode); err != nil {
		return nil, &types.DeviceUnavailable{Backend: "hal-vibra-aidl", Reason: "no /dev/binder node"}
	}
	return nil, &types.DeviceUnavailable{Backend: "hal-vibra-aidl", Reason: fmt.Sprintf("%s present but AIDL IVibrator binder transport is not implemented", aidlBinderNode)}
}

// newHIDLVibra probes for @1.0::IVibrator over /dev/hwbinder; see
// newAIDLVibra's doc comment for why this always reports unavailable on a
// mainline host.
func newHIDLVibra() (Vibra, error) {
	if _, err := os.Stat(hidlBinderNode); err != nil {
		return nil, &types.DeviceUnavailable{Backend: "hal-vibra-hidl", Reason: "no /dev/hwbinder node"}
	}
	return nil, &types.DeviceUnavailable{Backend: "hal-vibra-hidl", Reason: fmt.Sprintf("%s present but HIDL IVibrator binder transport is not implemented", hidlBinderNode)}
}

// newAIDLLed probes for android.hardware.light.ILights over /dev/binder.
func newAIDLLed() (Led, error) {
	if _, err := os.Stat(aidlBinderNode); err != nil {
		return nil, &types.DeviceUnavailable{Backend: "hal-led-aidl", Reason: "no /dev/binder node"}
	}
	return nil, &types.DeviceUnavailable{Backend: "hal-led-aidl", Reason: fmt.Sprintf("%s present but AIDL ILights binder transport is not implemented", aidlBinderNode)}
}

// newHIDLLed probes for @2.0::ILight over /dev/hwbinder.
func newHIDLLed() (Led, error) {
	if _, err := os.Stat(hidlBinderNode); err != nil {
		return nil, &types.DeviceUnavailable{Backend: "hal-led-hidl", Reason: "no /dev/hwbinder node"}
	}
	return nil, &types.DeviceUnavailable{Backend: "hal-led-hidl", Reason: fmt.Sprintf("%s present but HIDL ILight binder transport is not implemented", hidlBinderNode)}
}
