// Copyright (c) 2026 Feedbackd Contributors
// SPDX-License-Identifier: Apache-2.0

// Package utils holds small generic helpers shared across packages.
package utils

// Contains reports whether target appears anywhere in list.
func Contains[Type comparable](list []Type, target Type) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
