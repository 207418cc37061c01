// phylax: File backup agent
//
// Phylax watches a configured set of individual files and, whenever one of
// them is modified, copies its current contents into a per-file backup
// directory under a collision-free, time-ordered name.
//
// Example Usage:
//
//	rules, err := phylax.LoadRules("rules.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	agent, err := phylax.New(rules, phylax.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := agent.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"context"
	"sync/atomic"

	"github.com/agilira/go-errors"
	"github.com/juju/loggo"
)

var agentLogger = loggo.GetLogger("phylax")

// Error codes for Phylax operations
const (
	ErrCodeInvalidConfig     = "PHYLAX_INVALID_CONFIG"
	ErrCodeWatcherInit       = "PHYLAX_WATCHER_INIT"
	ErrCodePathResolution    = "PHYLAX_PATH_RESOLUTION"
	ErrCodeNoBackupRule      = "PHYLAX_NO_BACKUP_RULE"
	ErrCodeInvalidFileName   = "PHYLAX_INVALID_FILE_NAME"
	ErrCodeCopyFailed        = "PHYLAX_COPY_FAILED"
	ErrCodeEventSourceClosed = "PHYLAX_EVENT_SOURCE_CLOSED"
	ErrCodeAgentBusy         = "PHYLAX_AGENT_BUSY"
	ErrCodeJournalError      = "PHYLAX_JOURNAL_ERROR"
)

// Agent ties the rule table, notifier, backup writer and journal together
// and runs the dispatch loop.
type Agent struct {
	config   Config
	table    *RuleTable
	notifier *Notifier
	writer   *BackupWriter
	journal  *Journal
	ran      atomic.Bool
	running  atomic.Bool
}

// New builds an agent from a rule list. Rule canonicalization failures,
// duplicate rules and watcher initialization failures surface here; nothing
// is watched or written until Run.
func New(rules []Rule, cfg Config) (*Agent, error) {
	config := *cfg.WithDefaults()

	if len(rules) > config.MaxWatchedFiles {
		return nil, errors.New(ErrCodeInvalidConfig, "too many rules").
			WithContext("rules", len(rules)).
			WithContext("max", config.MaxWatchedFiles)
	}

	table, err := NewRuleTable(rules)
	if err != nil {
		return nil, err
	}

	journal, err := NewJournal(config.Journal)
	if err != nil {
		return nil, err
	}

	notifier, err := NewNotifier(config.DebounceWindow, config.EventBuffer)
	if err != nil {
		_ = journal.Close()
		return nil, err
	}

	return &Agent{
		config:   config,
		table:    table,
		notifier: notifier,
		writer:   NewBackupWriter(table),
		journal:  journal,
	}, nil
}

// NewFromFile loads rules from a YAML config document and builds an agent.
func NewFromFile(configPath string, cfg Config) (*Agent, error) {
	rules, err := LoadRules(configPath)
	if err != nil {
		return nil, err
	}
	return New(rules, cfg)
}

// Run registers the watches, starts the notifier and runs the dispatch
// loop. It returns nil when ctx is cancelled and a fatal error when the
// event source dies. The notifier and journal are released on the way out,
// so an agent runs at most once.
func (a *Agent) Run(ctx context.Context) error {
	if !a.ran.CompareAndSwap(false, true) {
		return errors.New(ErrCodeAgentBusy, "agent has already been run")
	}
	a.running.Store(true)
	defer a.running.Store(false)

	registrar := NewRegistrar(a.table, a.notifier)
	armed := registrar.RegisterAll()
	agentLogger.Infof("agent running, watching %d of %d configured files", armed, a.table.Len())

	a.notifier.Start()

	err := NewDispatcher(a.notifier.Events(), a.writer, a.journal).Run(ctx)

	if closeErr := a.notifier.Close(); closeErr != nil {
		agentLogger.Warningf("error closing notifier: %v", closeErr)
	}
	if closeErr := a.journal.Close(); closeErr != nil {
		agentLogger.Warningf("error closing journal: %v", closeErr)
	}

	return err
}

// WatchedFiles returns the canonical watched paths in rule order.
func (a *Agent) WatchedFiles() []string {
	rules := a.table.Rules()
	paths := make([]string, len(rules))
	for i, rule := range rules {
		paths[i] = rule.FilePath
	}
	return paths
}

// IsRunning reports whether the dispatch loop is active.
func (a *Agent) IsRunning() bool {
	return a.running.Load()
}

// Journal exposes the agent's journal for read-side queries.
func (a *Agent) Journal() *Journal {
	return a.journal
}
