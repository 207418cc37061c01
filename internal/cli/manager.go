// Package cli provides the command-line interface for the Phylax backup
// agent.
//
// Three command groups cover the agent's surface:
//   - run: start the agent on a YAML config document
//   - check: validate a config document without arming watches
//   - journal: query and maintain the backup journal
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Manager wires the Orpheus application and its command handlers.
type Manager struct {
	app *orpheus.App
}

// NewManager creates the CLI manager with all commands registered.
func NewManager() *Manager {
	app := orpheus.New("phylax").
		SetDescription("File backup agent: watches configured files and copies them on change").
		SetVersion("1.0.0")

	manager := &Manager{app: app}

	manager.setupRunCommand()
	manager.setupCheckCommand()
	manager.setupJournalCommands()

	return manager
}

// Run executes the CLI application with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupRunCommand configures 'run', the agent's main entry point.
// Flag values override PHYLAX_* environment variables.
func (m *Manager) setupRunCommand() {
	runCmd := orpheus.NewCommand("run", "Run the backup agent on a config document")
	runCmd.SetHandler(m.handleRun)
	runCmd.AddFlag("debounce-window", "w", "", "Quiet time before a change counts as committed (e.g. 5s, 500ms)")
	runCmd.AddFlag("journal-file", "j", "", "Journal output file (.db selects SQLite, .jsonl selects JSONL)")
	runCmd.AddBoolFlag("no-journal", "", false, "Disable the backup journal")
	runCmd.AddFlag("log-level", "l", "", "Log level (TRACE, DEBUG, INFO, WARNING, ERROR)")

	m.app.AddCommand(runCmd)
}

// setupCheckCommand configures 'check', the dry-run validator.
func (m *Manager) setupCheckCommand() {
	checkCmd := orpheus.NewCommand("check", "Validate a config document without arming watches")
	checkCmd.SetHandler(m.handleCheck)

	m.app.AddCommand(checkCmd)
}

// setupJournalCommands configures the 'journal' command group.
func (m *Manager) setupJournalCommands() {
	journalCmd := orpheus.NewCommand("journal", "Backup journal queries and maintenance")

	statsCmd := journalCmd.Subcommand("stats", "Show journal statistics", m.handleJournalStats)
	statsCmd.AddFlag("journal-file", "j", "", "Journal file (.db or .jsonl)")

	recentCmd := journalCmd.Subcommand("recent", "List recent backup attempts", m.handleJournalRecent)
	recentCmd.AddFlag("journal-file", "j", "", "Journal file (.db or .jsonl)")
	recentCmd.AddFlag("source", "s", "", "Filter by watched path")
	recentCmd.AddIntFlag("limit", "l", 20, "Maximum entries to list")

	pruneCmd := journalCmd.Subcommand("prune", "Delete journal entries older than a given age", m.handleJournalPrune)
	pruneCmd.AddFlag("journal-file", "j", "", "Journal file (.db only)")
	pruneCmd.AddFlag("older-than", "o", "30d", "Age threshold (e.g. 24h, 30d, 2w)")

	m.app.AddCommand(journalCmd)
}
