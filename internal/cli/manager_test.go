// manager_test.go: Test suite for the Phylax CLI
//
// Commands run through the real Orpheus application against temp files;
// only the blocking run command is exercised via its failure paths.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agilira/phylax"
)

// cliTestFixture bundles a manager with a scratch directory.
type cliTestFixture struct {
	t       *testing.T
	tempDir string
	manager *Manager
}

func newCLITestFixture(t *testing.T) *cliTestFixture {
	t.Helper()
	return &cliTestFixture{
		t:       t,
		tempDir: t.TempDir(),
		manager: NewManager(),
	}
}

// runCLI executes the CLI with the given arguments.
func (f *cliTestFixture) runCLI(args ...string) error {
	return f.manager.Run(args)
}

// createWatchedFile creates a file in the fixture's scratch directory.
func (f *cliTestFixture) createWatchedFile(name, content string) string {
	f.t.Helper()
	path := filepath.Join(f.tempDir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		f.t.Fatalf("Failed to create watched file: %v", err)
	}
	return path
}

// createConfig writes a rule document pairing each file with a backup
// directory under the scratch directory.
func (f *cliTestFixture) createConfig(files ...string) string {
	f.t.Helper()

	var doc strings.Builder
	doc.WriteString("rules:\n")
	for _, file := range files {
		doc.WriteString("  - file_path: " + file + "\n")
		doc.WriteString("    backup_dir_path: " + filepath.Join(f.tempDir, "backups", filepath.Base(file)) + "\n")
	}

	path := filepath.Join(f.tempDir, "rules.yaml")
	if err := os.WriteFile(path, []byte(doc.String()), 0644); err != nil {
		f.t.Fatalf("Failed to create config document: %v", err)
	}
	return path
}

// seedJournal writes entries into a journal file through the public API.
func seedJournal(t *testing.T, path string) {
	t.Helper()

	journal, err := phylax.NewJournal(phylax.JournalConfig{
		Enabled:       true,
		OutputFile:    path,
		BufferSize:    8,
		FlushInterval: 0,
	})
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}

	journal.Record(&phylax.BackupResult{
		Source:   "/watched/data.txt",
		Backup:   "/backups/data.txt-20240301-120000-123456",
		Bytes:    42,
		Checksum: "0f1e2d3c4b5a",
	})
	journal.RecordFailure("/watched/gone.txt", os.ErrNotExist)

	if err := journal.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}
}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.app == nil {
		t.Fatal("Manager has no application")
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	fixture := newCLITestFixture(t)

	if err := fixture.runCLI("bogus"); err == nil {
		t.Error("Expected error for an unknown command, got none")
	}
}

func TestCLI_Check(t *testing.T) {
	fixture := newCLITestFixture(t)
	file := fixture.createWatchedFile("data.txt", "contents")
	config := fixture.createConfig(file)

	if err := fixture.runCLI("check", config); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	// check is a dry run: no backup directories may appear
	if _, err := os.Stat(filepath.Join(fixture.tempDir, "backups")); !os.IsNotExist(err) {
		t.Error("check must not create backup directories")
	}
}

func TestCLI_Check_RequiresConfigArgument(t *testing.T) {
	fixture := newCLITestFixture(t)

	err := fixture.runCLI("check")
	if err == nil {
		t.Fatal("Expected error without a config argument, got none")
	}
	if !strings.Contains(err.Error(), "usage: phylax check") {
		t.Errorf("Expected a usage message, got: %v", err)
	}
}

func TestCLI_Check_MissingConfig(t *testing.T) {
	fixture := newCLITestFixture(t)

	if err := fixture.runCLI("check", filepath.Join(fixture.tempDir, "absent.yaml")); err == nil {
		t.Error("Expected error for a missing config document, got none")
	}
}

func TestCLI_Run_RequiresConfigArgument(t *testing.T) {
	fixture := newCLITestFixture(t)

	err := fixture.runCLI("run")
	if err == nil {
		t.Fatal("Expected error without a config argument, got none")
	}
	if !strings.Contains(err.Error(), "usage: phylax run") {
		t.Errorf("Expected a usage message, got: %v", err)
	}
}

func TestCLI_Run_MissingConfig(t *testing.T) {
	fixture := newCLITestFixture(t)

	if err := fixture.runCLI("run", filepath.Join(fixture.tempDir, "absent.yaml")); err == nil {
		t.Error("Expected error for a missing config document, got none")
	}
}

func TestCLI_Run_RejectsMalformedDebounceWindow(t *testing.T) {
	fixture := newCLITestFixture(t)

	err := fixture.runCLI("run", "unused.yaml", "--debounce-window", "banana")
	if err == nil {
		t.Fatal("Expected error for a malformed debounce window, got none")
	}
	if !strings.Contains(err.Error(), "invalid --debounce-window") {
		t.Errorf("Expected the flag name in the error, got: %v", err)
	}
}

func TestCLI_Run_RejectsUnknownLogLevel(t *testing.T) {
	fixture := newCLITestFixture(t)

	err := fixture.runCLI("run", "unused.yaml", "--log-level", "NOISY")
	if err == nil {
		t.Fatal("Expected error for an unknown log level, got none")
	}
	if !strings.Contains(err.Error(), "unknown log level") {
		t.Errorf("Expected the log level complaint, got: %v", err)
	}
}

func TestCLI_JournalStats(t *testing.T) {
	fixture := newCLITestFixture(t)
	journalPath := filepath.Join(fixture.tempDir, "journal.jsonl")
	seedJournal(t, journalPath)

	if err := fixture.runCLI("journal", "stats", "--journal-file", journalPath); err != nil {
		t.Errorf("journal stats failed: %v", err)
	}
}

func TestCLI_JournalRecent(t *testing.T) {
	fixture := newCLITestFixture(t)
	journalPath := filepath.Join(fixture.tempDir, "journal.jsonl")
	seedJournal(t, journalPath)

	if err := fixture.runCLI("journal", "recent", "--journal-file", journalPath); err != nil {
		t.Errorf("journal recent failed: %v", err)
	}

	// filtered and limited queries share the same path
	if err := fixture.runCLI("journal", "recent",
		"--journal-file", journalPath,
		"--source", "/watched/data.txt",
		"--limit", "1"); err != nil {
		t.Errorf("filtered journal recent failed: %v", err)
	}
}

func TestCLI_JournalRecent_EmptyJournal(t *testing.T) {
	fixture := newCLITestFixture(t)
	journalPath := filepath.Join(fixture.tempDir, "empty.jsonl")

	if err := fixture.runCLI("journal", "recent", "--journal-file", journalPath); err != nil {
		t.Errorf("journal recent on an empty journal failed: %v", err)
	}
}

func TestCLI_JournalPrune(t *testing.T) {
	fixture := newCLITestFixture(t)
	journalPath := filepath.Join(fixture.tempDir, "journal.db")
	seedJournal(t, journalPath)

	if err := fixture.runCLI("journal", "prune",
		"--journal-file", journalPath,
		"--older-than", "1h"); err != nil {
		t.Errorf("journal prune failed: %v", err)
	}
}

func TestCLI_JournalPrune_RejectsMalformedAge(t *testing.T) {
	fixture := newCLITestFixture(t)

	err := fixture.runCLI("journal", "prune", "--older-than", "someday")
	if err == nil {
		t.Fatal("Expected error for a malformed age, got none")
	}
	if !strings.Contains(err.Error(), "invalid --older-than") {
		t.Errorf("Expected the flag name in the error, got: %v", err)
	}
}

func TestCLI_JournalPrune_UnsupportedOnJSONL(t *testing.T) {
	fixture := newCLITestFixture(t)
	journalPath := filepath.Join(fixture.tempDir, "journal.jsonl")
	seedJournal(t, journalPath)

	if err := fixture.runCLI("journal", "prune",
		"--journal-file", journalPath,
		"--older-than", "1h"); err == nil {
		t.Error("Expected prune to fail on a JSONL journal, got none")
	}
}
