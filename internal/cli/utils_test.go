// utils_test.go: Test suite for CLI utility functions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"testing"
	"time"
)

func TestParseExtendedDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"1s", time.Second},
		{"90m", 90 * time.Minute},
		{"24h", 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"30d", 720 * time.Hour},
		{"2w", 336 * time.Hour},
		{"0d", 0},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := parseExtendedDuration(test.input)
			if err != nil {
				t.Fatalf("parseExtendedDuration(%q) failed: %v", test.input, err)
			}
			if got != test.expected {
				t.Errorf("parseExtendedDuration(%q) = %v, want %v", test.input, got, test.expected)
			}
		})
	}
}

func TestParseExtendedDuration_Invalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "abc", "30x", "d", "-5d", "1.5w"} {
		if _, err := parseExtendedDuration(input); err == nil {
			t.Errorf("Expected parseExtendedDuration(%q) to fail, got none", input)
		}
	}
}

func TestConfigureLogging(t *testing.T) {
	for _, level := range []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "info", ""} {
		if err := configureLogging(level); err != nil {
			t.Errorf("configureLogging(%q) failed: %v", level, err)
		}
	}
}

func TestConfigureLogging_UnknownLevel(t *testing.T) {
	err := configureLogging("NOISY")
	if err == nil {
		t.Fatal("Expected error for an unknown log level, got none")
	}
}
