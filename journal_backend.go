// journal_backend.go: Storage backends for the Phylax backup journal
//
// Two backends implement journal storage: SQLite for a queryable journal
// (the default) and append-only JSONL for grep-friendly logs or as the
// degraded mode when SQLite cannot be opened. Selection is by output file
// extension, with SQLite tried first otherwise.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// journalBackend abstracts journal storage. Write persists a batch, Flush
// forces durability, and the read side serves the journal CLI commands.
type journalBackend interface {
	Write(entries []JournalEntry) error
	Flush() error
	Close() error

	Stats() (*JournalStats, error)
	Recent(source string, limit int) ([]JournalEntry, error)
	Prune(olderThan time.Duration) (int64, error)
}

// JournalStats summarizes the journal's contents.
type JournalStats struct {
	TotalEntries int64            `json:"total_entries"`
	ByOutcome    map[string]int64 `json:"by_outcome"`
	BySource     map[string]int64 `json:"by_source"`
	BytesCopied  int64            `json:"bytes_copied"`
	OldestEntry  *time.Time       `json:"oldest_entry,omitempty"`
	NewestEntry  *time.Time       `json:"newest_entry,omitempty"`
	StorageSize  int64            `json:"storage_size_bytes"`
	SchemaVer    int              `json:"schema_version"`
}

// createJournalBackend selects the storage backend for a configuration.
//
// Selection strategy:
//  1. a .jsonl OutputFile selects JSONL explicitly;
//  2. otherwise SQLite is tried first (a .db OutputFile overrides its path);
//  3. SQLite failure degrades to JSONL at the fallback path, so the journal
//     never prevents agent startup on its own.
func createJournalBackend(config JournalConfig) (journalBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLJournal(config)
	}

	backend, err := newSQLiteJournal(config)
	if err == nil {
		return backend, nil
	}
	journalLogger.Warningf("sqlite journal unavailable, falling back to JSONL: %v", err)

	jsonlBackend, jsonlErr := newJSONLJournal(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all journal backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}

	return jsonlBackend, nil
}

// defaultJournalPath is where the SQLite journal lives when no OutputFile
// is configured.
func defaultJournalPath() string {
	return filepath.Join(os.TempDir(), "phylax", "journal.db")
}

// defaultJournalFallbackPath is the JSONL path used when SQLite degrades
// and no OutputFile is configured.
func defaultJournalFallbackPath() string {
	return filepath.Join(os.TempDir(), "phylax", "journal.jsonl")
}

// sqliteJournal stores entries in a SQLite database opened in WAL mode.
type sqliteJournal struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteJournal(config JournalConfig) (*sqliteJournal, error) {
	dbPath := defaultJournalPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// WAL keeps the agent's writes from blocking CLI reads, the busy
	// timeout covers the agent and CLI sharing one database file.
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	backend := &sqliteJournal{db: db, dbPath: dbPath}

	if err := backend.ensureSchemaVersion(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to prepare journal statements: %w", err)
	}

	return backend, nil
}

// ensureSchemaVersion checks the schema version and migrates if needed.
// Version 1 is the initial schema; future versions extend the migration
// switch without breaking existing databases.
func (s *sqliteJournal) ensureSchemaVersion() error {
	const currentSchemaVersion = 1

	createSchemaInfoSQL := `
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(createSchemaInfoSQL); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		if err == sql.ErrNoRows {
			version = 0
		} else {
			return fmt.Errorf("failed to check schema version: %w", err)
		}
	}

	if version < currentSchemaVersion {
		if err := s.migrateSchema(version, currentSchemaVersion); err != nil {
			return fmt.Errorf("schema migration from v%d to v%d failed: %w", version, currentSchemaVersion, err)
		}

		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO schema_info (version, updated_at)
			VALUES (?, CURRENT_TIMESTAMP)
		`, currentSchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	return nil
}

// migrateSchema applies migrations incrementally inside one transaction.
func (s *sqliteJournal) migrateSchema(oldVersion, newVersion int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for version := oldVersion; version < newVersion; version++ {
		switch version {
		case 0:
			if err = s.migrateToV1(tx); err != nil {
				return fmt.Errorf("migration to v1 failed: %w", err)
			}
		default:
			return fmt.Errorf("unknown migration path from version %d", version)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}

// migrateToV1 creates the journal table and its indexes.
func (s *sqliteJournal) migrateToV1(tx *sql.Tx) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS journal_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		outcome TEXT NOT NULL,
		source TEXT NOT NULL,
		backup TEXT,
		bytes INTEGER NOT NULL DEFAULT 0,
		checksum TEXT,
		elapsed_ns INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		process_id INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := tx.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create journal_entries table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_journal_source ON journal_entries(source)",
		"CREATE INDEX IF NOT EXISTS idx_journal_outcome ON journal_entries(outcome)",
		"CREATE INDEX IF NOT EXISTS idx_journal_created_at ON journal_entries(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_journal_source_time ON journal_entries(source, created_at)",
	}

	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create journal index: %w", err)
		}
	}

	return nil
}

func (s *sqliteJournal) prepareStatements() error {
	insertSQL := `
	INSERT INTO journal_entries (
		timestamp, outcome, source, backup, bytes, checksum,
		elapsed_ns, error, process_id, process_name
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := s.db.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.insertStmt = stmt
	return nil
}

// Write persists a batch of entries in one transaction.
func (s *sqliteJournal) Write(entries []JournalEntry) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("cannot write to closed SQLite journal")
	}
	s.mu.RUnlock()

	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer func() { _ = txStmt.Close() }()

	for _, entry := range entries {
		_, err = txStmt.Exec(
			entry.Timestamp.Format(time.RFC3339Nano),
			string(entry.Outcome),
			entry.Source,
			entry.Backup,
			entry.Bytes,
			entry.Checksum,
			int64(entry.Elapsed),
			entry.Error,
			entry.ProcessID,
			entry.ProcessName,
		)
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}

	return nil
}

// Flush checkpoints the WAL so recent transactions reach the main database.
func (s *sqliteJournal) Flush() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite journal: %w", err)
	}

	return nil
}

// Stats reports totals, per-outcome and per-source counts, the covered time
// range and storage size.
func (s *sqliteJournal) Stats() (*JournalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("cannot read from closed SQLite journal")
	}

	stats := &JournalStats{
		ByOutcome: make(map[string]int64),
		BySource:  make(map[string]int64),
	}

	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(bytes), 0) FROM journal_entries").
		Scan(&stats.TotalEntries, &stats.BytesCopied)
	if err != nil {
		return nil, fmt.Errorf("failed to count journal entries: %w", err)
	}

	if err := s.groupCount("outcome", stats.ByOutcome); err != nil {
		return nil, err
	}
	if err := s.groupCount("source", stats.BySource); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	err = s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM journal_entries").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get journal time range: %w", err)
	}
	if oldest.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, oldest.String); err == nil {
			stats.OldestEntry = &ts
		}
	}
	if newest.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, newest.String); err == nil {
			stats.NewestEntry = &ts
		}
	}

	err = s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&stats.SchemaVer)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.StorageSize = info.Size()
	}

	return stats, nil
}

func (s *sqliteJournal) groupCount(column string, into map[string]int64) error {
	// column is one of our own identifiers, never user input
	rows, err := s.db.Query(fmt.Sprintf("SELECT %s, COUNT(*) FROM journal_entries GROUP BY %s", column, column))
	if err != nil {
		return fmt.Errorf("failed to group journal entries by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan journal group row: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// Recent returns up to limit entries, newest first, optionally filtered by
// source path.
func (s *sqliteJournal) Recent(source string, limit int) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("cannot read from closed SQLite journal")
	}
	if limit <= 0 {
		limit = 20
	}

	querySQL := `
	SELECT timestamp, outcome, source, backup, bytes, checksum,
	       elapsed_ns, error, process_id, process_name
	FROM journal_entries`
	args := []interface{}{}
	if source != "" {
		querySQL += " WHERE source = ?"
		args = append(args, source)
	}
	querySQL += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var ts, outcome string
		var elapsed int64
		if err := rows.Scan(&ts, &outcome, &entry.Source, &entry.Backup, &entry.Bytes,
			&entry.Checksum, &elapsed, &entry.Error, &entry.ProcessID, &entry.ProcessName); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Timestamp = parsed
		}
		entry.Outcome = Outcome(outcome)
		entry.Elapsed = time.Duration(elapsed)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Prune deletes entries older than the given age and returns the count.
func (s *sqliteJournal) Prune(olderThan time.Duration) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("cannot prune closed SQLite journal")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format("2006-01-02 15:04:05")
	result, err := s.db.Exec("DELETE FROM journal_entries WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal entries: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}

	if _, err := s.db.Exec("PRAGMA optimize"); err == nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(FULL)")
	}

	return removed, nil
}

// Close flushes, releases the prepared statement and closes the database.
// Safe to call multiple times.
func (s *sqliteJournal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var errs []error

	// flush WAL before the connection goes away
	s.mu.Unlock()
	if err := s.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush journal during close: %w", err))
	}
	s.mu.Lock()

	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close journal database: %w", err))
		}
	}

	s.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite journal: %v", errs)
	}

	return nil
}

// jsonlJournal appends entries as one JSON object per line. It is the
// explicit choice for .jsonl output files and the degraded mode when
// SQLite is unavailable.
type jsonlJournal struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLJournal(config JournalConfig) (*jsonlJournal, error) {
	path := config.OutputFile
	if path == "" {
		path = defaultJournalFallbackPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- path comes from the journal configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL journal file: %w", err)
	}

	return &jsonlJournal{file: file, path: path}, nil
}

func (j *jsonlJournal) Write(entries []JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL journal")
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to serialize journal entry: %w", err)
		}
		data = append(data, '\n')
		if _, err := j.file.Write(data); err != nil {
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
	}

	return nil
}

func (j *jsonlJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL journal file: %w", err)
	}

	return nil
}

// Stats scans the whole file. JSONL journals stay small enough for a per
// invocation scan; anything bigger belongs in the SQLite backend.
func (j *jsonlJournal) Stats() (*JournalStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, fmt.Errorf("cannot read from closed JSONL journal")
	}

	stats := &JournalStats{
		ByOutcome: make(map[string]int64),
		BySource:  make(map[string]int64),
		SchemaVer: 1,
	}

	err := j.scan(func(entry JournalEntry) {
		stats.TotalEntries++
		stats.ByOutcome[string(entry.Outcome)]++
		stats.BySource[entry.Source]++
		stats.BytesCopied += entry.Bytes
		ts := entry.Timestamp
		if stats.OldestEntry == nil || ts.Before(*stats.OldestEntry) {
			stats.OldestEntry = &ts
		}
		if stats.NewestEntry == nil || ts.After(*stats.NewestEntry) {
			stats.NewestEntry = &ts
		}
	})
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(j.path); err == nil {
		stats.StorageSize = info.Size()
	}

	return stats, nil
}

func (j *jsonlJournal) Recent(source string, limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, fmt.Errorf("cannot read from closed JSONL journal")
	}
	if limit <= 0 {
		limit = 20
	}

	var tail []JournalEntry
	err := j.scan(func(entry JournalEntry) {
		if source != "" && entry.Source != source {
			return
		}
		tail = append(tail, entry)
		if len(tail) > limit {
			tail = tail[1:]
		}
	})
	if err != nil {
		return nil, err
	}

	// newest first, matching the SQLite backend
	for i, k := 0, len(tail)-1; i < k; i, k = i+1, k-1 {
		tail[i], tail[k] = tail[k], tail[i]
	}
	return tail, nil
}

// Prune is not supported on append-only files.
func (j *jsonlJournal) Prune(time.Duration) (int64, error) {
	return 0, fmt.Errorf("prune is not supported by the JSONL journal backend")
}

// scan replays the file through fn, skipping lines that do not parse.
func (j *jsonlJournal) scan(fn func(JournalEntry)) error {
	file, err := os.Open(j.path) // #nosec G304 -- path comes from the journal configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open JSONL journal for reading: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		fn(entry)
	}
	return scanner.Err()
}

func (j *jsonlJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var err error
	if j.file != nil {
		err = j.file.Close()
	}

	j.closed = true
	return err
}
