// Command handlers for the Phylax CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/phylax"
)

// handleRun starts the agent: resolve options, configure logging, load the
// rule document and run until a signal arrives or a fatal error occurs.
// SIGINT and SIGTERM cancel the context, so a signalled agent exits zero.
func (m *Manager) handleRun(ctx *orpheus.Context) error {
	configPath := ctx.GetArg(0)
	if configPath == "" {
		return errors.New(phylax.ErrCodeInvalidConfig, "usage: phylax run <config.yaml>")
	}

	opts, err := resolveOptions(ctx)
	if err != nil {
		return err
	}

	if err := configureLogging(opts.LogLevel()); err != nil {
		return err
	}

	agent, err := phylax.NewFromFile(configPath, opts.Config())
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return agent.Run(runCtx)
}

// handleCheck dry-runs a config document: parse, build the rule table, then
// report a per-rule verdict without arming watches or creating directories.
func (m *Manager) handleCheck(ctx *orpheus.Context) error {
	configPath := ctx.GetArg(0)
	if configPath == "" {
		return errors.New(phylax.ErrCodeInvalidConfig, "usage: phylax check <config.yaml>")
	}

	rules, err := phylax.LoadRules(configPath)
	if err != nil {
		return err
	}

	table, err := phylax.NewRuleTable(rules)
	if err != nil {
		return err
	}

	watchable := 0
	for _, rule := range table.Rules() {
		if err := phylax.CheckRule(rule.FilePath, rule.BackupDirPath); err != nil {
			fmt.Printf("  skip  %s: %v\n", rule.FilePath, err)
			continue
		}
		fmt.Printf("  ok    %s -> %s\n", rule.FilePath, rule.BackupDirPath)
		watchable++
	}

	fmt.Printf("%d of %d rules would be watched\n", watchable, table.Len())
	return nil
}

// handleJournalStats prints journal totals and breakdowns.
func (m *Manager) handleJournalStats(ctx *orpheus.Context) error {
	journal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	stats, err := journal.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Journal entries: %d\n", stats.TotalEntries)
	fmt.Printf("Bytes copied:    %d\n", stats.BytesCopied)
	if stats.OldestEntry != nil && stats.NewestEntry != nil {
		fmt.Printf("Covering:        %s to %s\n",
			stats.OldestEntry.Format(time.RFC3339), stats.NewestEntry.Format(time.RFC3339))
	}
	fmt.Printf("Storage:         %d bytes (schema v%d)\n", stats.StorageSize, stats.SchemaVer)

	for _, outcome := range sortedKeys(stats.ByOutcome) {
		fmt.Printf("  %-8s %d\n", outcome, stats.ByOutcome[outcome])
	}
	if len(stats.BySource) > 0 {
		fmt.Println("By source:")
		for _, source := range sortedKeys(stats.BySource) {
			fmt.Printf("  %6d  %s\n", stats.BySource[source], source)
		}
	}

	return nil
}

// handleJournalRecent lists recent backup attempts, newest first.
func (m *Manager) handleJournalRecent(ctx *orpheus.Context) error {
	journal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	entries, err := journal.Recent(ctx.GetFlagString("source"), ctx.GetFlagInt("limit"))
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No journal entries found")
		return nil
	}

	for _, entry := range entries {
		ts := entry.Timestamp.Format(time.RFC3339)
		if entry.Outcome == phylax.OutcomeOK {
			fmt.Printf("%s  ok      %s -> %s (%d bytes, %v)\n",
				ts, entry.Source, entry.Backup, entry.Bytes, entry.Elapsed)
		} else {
			fmt.Printf("%s  failed  %s: %s\n", ts, entry.Source, entry.Error)
		}
	}

	return nil
}

// handleJournalPrune deletes entries older than the given age.
func (m *Manager) handleJournalPrune(ctx *orpheus.Context) error {
	olderThan, err := parseExtendedDuration(ctx.GetFlagString("older-than"))
	if err != nil {
		return errors.New(phylax.ErrCodeInvalidConfig, fmt.Sprintf("invalid --older-than value: %v", err))
	}

	journal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	removed, err := journal.Prune(olderThan)
	if err != nil {
		return err
	}

	fmt.Printf("Pruned %d journal entries older than %v\n", removed, olderThan)
	return nil
}

// resolveOptions builds the option set for the run command: environment
// values first, then the command's own flags as explicit overrides.
func resolveOptions(ctx *orpheus.Context) (*phylax.Options, error) {
	opts := phylax.NewOptions()
	if err := opts.Load(nil); err != nil {
		return nil, err
	}

	if v := ctx.GetFlagString("debounce-window"); v != "" {
		window, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.New(phylax.ErrCodeInvalidConfig, fmt.Sprintf("invalid --debounce-window value: %v", err))
		}
		opts.Set("debounce-window", window)
	}
	if v := ctx.GetFlagString("journal-file"); v != "" {
		opts.Set("journal-file", v)
	}
	if ctx.GetFlagBool("no-journal") {
		opts.Set("journal-enabled", false)
	}
	if v := ctx.GetFlagString("log-level"); v != "" {
		opts.Set("log-level", v)
	}

	return opts, nil
}

// openJournal opens the journal for a read-side command. The journal is
// opened even when PHYLAX_JOURNAL_ENABLED=false: disabling the journal
// stops recording, not reading.
func openJournal(ctx *orpheus.Context) (*phylax.Journal, error) {
	opts := phylax.NewOptions()
	if err := opts.Load(nil); err != nil {
		return nil, err
	}
	if v := ctx.GetFlagString("journal-file"); v != "" {
		opts.Set("journal-file", v)
	}

	cfg := opts.Config().Journal
	cfg.Enabled = true
	cfg.FlushInterval = 0 // nothing to flush in a read-only session

	return phylax.NewJournal(cfg)
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
