// config.go: Configuration management for the Phylax backup agent
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"os"
	"time"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// Config tunes the agent's runtime behavior. The rule set itself comes from
// the YAML config document (see LoadRules); Config carries everything else.
type Config struct {
	// DebounceWindow is how long a watched file must stay quiet after a raw
	// change notification before the change counts as committed.
	// Default: 5 seconds.
	DebounceWindow time.Duration

	// EventBuffer is the capacity of the semantic event channel between
	// notifier and dispatcher.
	// Default: 64.
	EventBuffer int

	// MaxWatchedFiles limits how many rules the agent accepts.
	// Default: 256.
	MaxWatchedFiles int

	// Journal configures the backup journal.
	// Default: enabled with SQLite storage.
	Journal JournalConfig
}

// WithDefaults applies sensible defaults to the configuration
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.DebounceWindow <= 0 {
		config.DebounceWindow = 5 * time.Second
	}

	// GUARD RAIL: windows under 100ms coalesce almost nothing
	if config.DebounceWindow < 100*time.Millisecond {
		config.DebounceWindow = 100 * time.Millisecond
	}

	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}

	// GUARD RAIL: keep enough slack for one burst of notices per rule
	if config.EventBuffer < 8 {
		config.EventBuffer = 8
	}

	if config.MaxWatchedFiles <= 0 {
		config.MaxWatchedFiles = 256
	}

	if config.Journal == (JournalConfig{}) {
		config.Journal = DefaultJournalConfig()
	}

	return &config
}

// configDocument is the on-disk shape of the YAML config document.
type configDocument struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML config document and returns its backup rules.
//
// The document must carry a top-level "rules" list; every entry needs both
// file_path and backup_dir_path. Unknown keys are tolerated. An empty rule
// list is legal; the registrar warns about it at startup.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is the operator-provided config document
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "cannot open configuration file").
			WithContext("path", path)
	}

	var doc configDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "cannot parse configuration file").
			WithContext("path", path)
	}

	for i, rule := range doc.Rules {
		if rule.FilePath == "" || rule.BackupDirPath == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "rule is missing file_path or backup_dir_path").
				WithContext("path", path).
				WithContext("rule_index", i)
		}
	}

	return doc.Rules, nil
}
