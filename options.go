// options.go: Runtime option resolution for Phylax
//
// Tunables are not part of the rule document; they resolve from three
// sources with precedence explicit override > PHYLAX_* environment
// variable > built-in default. The CLI feeds its flag values in as
// explicit overrides.
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

const appName = "phylax"

// Options resolves the agent's runtime tunables.
//
// Recognized environment variables: PHYLAX_DEBOUNCE_WINDOW,
// PHYLAX_EVENT_BUFFER, PHYLAX_MAX_WATCHED_FILES, PHYLAX_JOURNAL_ENABLED,
// PHYLAX_JOURNAL_FILE, PHYLAX_LOG_LEVEL.
type Options struct {
	flags *flashflags.FlagSet

	// explicit overrides, highest precedence
	values map[string]interface{}
}

// NewOptions creates the option set with its defaults registered.
func NewOptions() *Options {
	opts := &Options{
		flags:  flashflags.New(appName),
		values: make(map[string]interface{}),
	}

	opts.flags.SetDescription("File backup agent")
	opts.flags.Duration("debounce-window", 5*time.Second, "Quiet time before a change counts as committed")
	opts.flags.Int("event-buffer", 64, "Capacity of the event channel between notifier and dispatcher")
	opts.flags.Int("max-watched-files", 256, "Maximum number of backup rules accepted")
	opts.flags.Bool("journal-enabled", true, "Record backup attempts in the journal")
	opts.flags.String("journal-file", "", "Journal output file (.db selects SQLite, .jsonl selects JSONL)")
	opts.flags.String("log-level", "DEBUG", "Log level: TRACE, DEBUG, INFO, WARNING or ERROR")

	return opts
}

// Load parses args and binds the PHYLAX_ environment prefix. Callers that
// route their flags elsewhere pass nil and rely on environment and Set.
func (o *Options) Load(args []string) error {
	if err := o.flags.Parse(args); err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "cannot parse runtime options")
	}

	o.flags.SetEnvPrefix(strings.ToUpper(appName))
	return nil
}

// Set records an explicit override for a key, taking precedence over
// environment variables and defaults.
func (o *Options) Set(key string, value interface{}) {
	o.values[key] = value
}

// DebounceWindow resolves the quiescence window.
func (o *Options) DebounceWindow() time.Duration {
	if val, exists := o.values["debounce-window"]; exists {
		if d, ok := val.(time.Duration); ok {
			return d
		}
	}
	return o.flags.GetDuration("debounce-window")
}

// EventBuffer resolves the event channel capacity.
func (o *Options) EventBuffer() int {
	if val, exists := o.values["event-buffer"]; exists {
		if n, ok := val.(int); ok {
			return n
		}
	}
	return o.flags.GetInt("event-buffer")
}

// MaxWatchedFiles resolves the rule count limit.
func (o *Options) MaxWatchedFiles() int {
	if val, exists := o.values["max-watched-files"]; exists {
		if n, ok := val.(int); ok {
			return n
		}
	}
	return o.flags.GetInt("max-watched-files")
}

// JournalEnabled resolves whether backup attempts are journaled.
func (o *Options) JournalEnabled() bool {
	if val, exists := o.values["journal-enabled"]; exists {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return o.flags.GetBool("journal-enabled")
}

// JournalFile resolves the journal output file.
func (o *Options) JournalFile() string {
	if val, exists := o.values["journal-file"]; exists {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return o.flags.GetString("journal-file")
}

// LogLevel resolves the logging level name.
func (o *Options) LogLevel() string {
	if val, exists := o.values["log-level"]; exists {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return o.flags.GetString("log-level")
}

// Config assembles the agent configuration from the resolved options.
func (o *Options) Config() Config {
	journal := DefaultJournalConfig()
	journal.Enabled = o.JournalEnabled()
	journal.OutputFile = o.JournalFile()

	return Config{
		DebounceWindow:  o.DebounceWindow(),
		EventBuffer:     o.EventBuffer(),
		MaxWatchedFiles: o.MaxWatchedFiles(),
		Journal:         journal,
	}
}

// PrintUsage prints the option reference, including environment mappings.
func (o *Options) PrintUsage() {
	o.flags.PrintHelp()
}
