// journal.go: Backup journal for Phylax
//
// The journal keeps a durable record of every backup attempt: what was
// copied, where, how many bytes, the content checksum and how long the copy
// took, or the failure cause. Entries are buffered in memory and flushed to
// a pluggable storage backend in batches.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"os"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/juju/loggo"
)

var journalLogger = loggo.GetLogger("phylax.journal")

// Outcome classifies a journal entry.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// JournalEntry records one backup attempt.
type JournalEntry struct {
	Timestamp   time.Time     `json:"timestamp"`
	Outcome     Outcome       `json:"outcome"`
	Source      string        `json:"source"`
	Backup      string        `json:"backup,omitempty"`
	Bytes       int64         `json:"bytes"`
	Checksum    string        `json:"checksum,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Error       string        `json:"error,omitempty"`
	ProcessID   int           `json:"process_id"`
	ProcessName string        `json:"process_name"`
}

// JournalConfig configures the backup journal.
type JournalConfig struct {
	Enabled       bool
	OutputFile    string // empty selects SQLite at the default path; .jsonl selects JSONL
	BufferSize    int
	FlushInterval time.Duration
}

// DefaultJournalConfig returns the default journal configuration: enabled,
// SQLite storage at the system path, 256 buffered entries, 5 second flush.
func DefaultJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:       true,
		OutputFile:    "",
		BufferSize:    256,
		FlushInterval: 5 * time.Second,
	}
}

// Journal buffers backup records and flushes them to a storage backend in
// the background. A disabled journal is fully functional as a no-op, so
// callers never need to check for nil.
type Journal struct {
	config      JournalConfig
	backend     journalBackend
	buffer      []JournalEntry
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	closeOnce   sync.Once
	stopCh      chan struct{}
	processID   int
	processName string
}

// NewJournal creates a journal for the given configuration. With
// Enabled=false the returned journal accepts records and drops them.
// Backend selection and fallback live in createJournalBackend.
func NewJournal(config JournalConfig) (*Journal, error) {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}

	journal := &Journal{
		config:      config,
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: processName(),
	}

	if !config.Enabled {
		return journal, nil
	}

	backend, err := createJournalBackend(config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeJournalError, "cannot initialize journal backend")
	}
	journal.backend = backend
	journal.buffer = make([]JournalEntry, 0, config.BufferSize)

	if config.FlushInterval > 0 {
		journal.flushTicker = time.NewTicker(config.FlushInterval)
		go journal.flushLoop()
	}

	return journal, nil
}

// Record journals a successful backup.
func (j *Journal) Record(result *BackupResult) {
	if j == nil || j.backend == nil || !j.config.Enabled {
		return
	}

	j.append(JournalEntry{
		Timestamp:   timecache.CachedTime(),
		Outcome:     OutcomeOK,
		Source:      result.Source,
		Backup:      result.Backup,
		Bytes:       result.Bytes,
		Checksum:    result.Checksum,
		Elapsed:     result.Elapsed,
		ProcessID:   j.processID,
		ProcessName: j.processName,
	})
}

// RecordFailure journals a failed backup attempt for the given path.
func (j *Journal) RecordFailure(path string, cause error) {
	if j == nil || j.backend == nil || !j.config.Enabled {
		return
	}

	j.append(JournalEntry{
		Timestamp:   timecache.CachedTime(),
		Outcome:     OutcomeFailed,
		Source:      path,
		Error:       cause.Error(),
		ProcessID:   j.processID,
		ProcessName: j.processName,
	})
}

func (j *Journal) append(entry JournalEntry) {
	j.bufferMu.Lock()
	j.buffer = append(j.buffer, entry)
	if len(j.buffer) >= j.config.BufferSize {
		if err := j.flushLocked(); err != nil {
			journalLogger.Warningf("journal flush failed: %v", err)
		}
	}
	j.bufferMu.Unlock()
}

// Flush immediately writes all buffered entries to the backend.
func (j *Journal) Flush() error {
	if j == nil || j.backend == nil {
		return nil
	}
	j.bufferMu.Lock()
	defer j.bufferMu.Unlock()
	return j.flushLocked()
}

// flushLocked writes the buffer to the backend. Caller holds bufferMu.
func (j *Journal) flushLocked() error {
	if len(j.buffer) == 0 {
		return nil
	}

	if err := j.backend.Write(j.buffer); err != nil {
		return err
	}

	j.buffer = j.buffer[:0]
	return nil
}

// Close flushes pending entries and releases the backend. Safe to call
// more than once.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	var err error
	j.closeOnce.Do(func() {
		close(j.stopCh)
		if j.flushTicker != nil {
			j.flushTicker.Stop()
		}

		if flushErr := j.Flush(); flushErr != nil {
			err = errors.Wrap(flushErr, ErrCodeJournalError, "cannot flush journal during close")
			return
		}

		if j.backend != nil {
			if closeErr := j.backend.Close(); closeErr != nil {
				err = errors.Wrap(closeErr, ErrCodeJournalError, "cannot close journal backend")
			}
		}
	})
	return err
}

// Stats returns backend statistics after flushing buffered entries.
func (j *Journal) Stats() (*JournalStats, error) {
	if j == nil || j.backend == nil || !j.config.Enabled {
		return nil, errors.New(ErrCodeJournalError, "journal is disabled")
	}
	if err := j.Flush(); err != nil {
		return nil, errors.Wrap(err, ErrCodeJournalError, "cannot flush journal")
	}
	stats, err := j.backend.Stats()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeJournalError, "cannot read journal statistics")
	}
	return stats, nil
}

// Recent returns the most recent entries, newest first. A non-empty source
// filters to entries for that watched path; limit caps the result.
func (j *Journal) Recent(source string, limit int) ([]JournalEntry, error) {
	if j == nil || j.backend == nil || !j.config.Enabled {
		return nil, errors.New(ErrCodeJournalError, "journal is disabled")
	}
	if err := j.Flush(); err != nil {
		return nil, errors.Wrap(err, ErrCodeJournalError, "cannot flush journal")
	}
	entries, err := j.backend.Recent(source, limit)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeJournalError, "cannot read journal entries")
	}
	return entries, nil
}

// Prune deletes entries older than the given age and reports how many were
// removed. Only the SQLite backend supports pruning.
func (j *Journal) Prune(olderThan time.Duration) (int64, error) {
	if j == nil || j.backend == nil || !j.config.Enabled {
		return 0, errors.New(ErrCodeJournalError, "journal is disabled")
	}
	if err := j.Flush(); err != nil {
		return 0, errors.Wrap(err, ErrCodeJournalError, "cannot flush journal")
	}
	removed, err := j.backend.Prune(olderThan)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeJournalError, "cannot prune journal")
	}
	return removed, nil
}

// flushLoop runs the background flush process.
func (j *Journal) flushLoop() {
	for {
		select {
		case <-j.flushTicker.C:
			if err := j.Flush(); err != nil {
				journalLogger.Warningf("journal flush failed: %v", err)
			}
		case <-j.stopCh:
			return
		}
	}
}

func processName() string {
	return "phylax" // could read from /proc/self/comm
}
