// Utility functions for the Phylax CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/phylax"
	"github.com/juju/loggo"
)

// configureLogging applies the resolved log level to the phylax module
// loggers. Everything under the phylax module inherits the level.
func configureLogging(level string) error {
	if level == "" {
		level = "DEBUG"
	}

	if _, ok := loggo.ParseLevel(level); !ok {
		return errors.New(phylax.ErrCodeInvalidConfig, fmt.Sprintf("unknown log level: %s", level))
	}

	return loggo.ConfigureLoggers(fmt.Sprintf("phylax=%s", strings.ToUpper(level)))
}

// parseExtendedDuration parses duration strings with extended units on top
// of the Go standard ones: d for days (24h) and w for weeks (7d).
//
// Examples: "24h", "30d", "2w"
func parseExtendedDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	re := regexp.MustCompile(`^(\d+)(d|w)$`)
	matches := re.FindStringSubmatch(s)
	if len(matches) != 3 {
		_, err := time.ParseDuration(s)
		return 0, err
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", matches[1])
	}

	switch matches[2] {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "w":
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", matches[2])
	}
}
