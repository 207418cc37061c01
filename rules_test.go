// rules_test.go: Test suite for the Phylax backup rule table
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/agilira/go-errors"
)

// writeTestFile creates a file with content under dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestNewRuleTable_Basic(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	watched := writeTestFile(t, tmpDir, "data.txt", "v1")
	backupDir := filepath.Join(tmpDir, "backups")

	table, err := NewRuleTable([]Rule{
		{FilePath: watched, BackupDirPath: backupDir},
	})
	if err != nil {
		t.Fatalf("NewRuleTable failed: %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("Expected 1 rule, got %d", table.Len())
	}

	canonical, err := filepath.EvalSymlinks(watched)
	if err != nil {
		t.Fatalf("Failed to resolve watched path: %v", err)
	}

	dir, ok := table.BackupDirFor(canonical)
	if !ok {
		t.Fatalf("Expected a backup dir for %s", canonical)
	}
	if filepath.Base(dir) != "backups" {
		t.Errorf("Unexpected backup dir %s", dir)
	}
}

func TestNewRuleTable_ResolvesSymlinkedWatchPath(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping symlink test on Windows")
	}

	tmpDir := t.TempDir()
	real := writeTestFile(t, tmpDir, "real.txt", "contents")
	link := filepath.Join(tmpDir, "link.txt")
	if err := os.Symlink(real, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	table, err := NewRuleTable([]Rule{
		{FilePath: link, BackupDirPath: filepath.Join(tmpDir, "backups")},
	})
	if err != nil {
		t.Fatalf("NewRuleTable failed: %v", err)
	}

	canonical, err := filepath.EvalSymlinks(real)
	if err != nil {
		t.Fatalf("Failed to resolve real path: %v", err)
	}

	// the table keys canonical paths, so the symlink spelling must resolve
	// to the same entry as the physical file
	if _, ok := table.BackupDirFor(canonical); !ok {
		t.Errorf("Symlinked rule should be registered under the real path %s", canonical)
	}
	if rules := table.Rules(); rules[0].FilePath != canonical {
		t.Errorf("Rules() should expose the canonical path, got %s", rules[0].FilePath)
	}
}

func TestNewRuleTable_RejectsDuplicateWatchedFile(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("Skipping symlink test on Windows")
	}

	tmpDir := t.TempDir()
	real := writeTestFile(t, tmpDir, "real.txt", "contents")
	alias := filepath.Join(tmpDir, "alias.txt")
	if err := os.Symlink(real, alias); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	// two spellings of the same file must collide after canonicalization
	_, err := NewRuleTable([]Rule{
		{FilePath: real, BackupDirPath: filepath.Join(tmpDir, "b1")},
		{FilePath: alias, BackupDirPath: filepath.Join(tmpDir, "b2")},
	})
	if err == nil {
		t.Fatal("Expected duplicate rule error, got none")
	}

	if errorCoder, ok := err.(errors.ErrorCoder); !ok || string(errorCoder.ErrorCode()) != ErrCodeInvalidConfig {
		t.Errorf("Expected %s, got: %v", ErrCodeInvalidConfig, err)
	}
	if !strings.Contains(err.Error(), "duplicate rule") {
		t.Errorf("Error should name the duplicate, got: %v", err)
	}
}

func TestNewRuleTable_MissingWatchedFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	_, err := NewRuleTable([]Rule{
		{FilePath: filepath.Join(tmpDir, "never-created.txt"), BackupDirPath: filepath.Join(tmpDir, "backups")},
	})
	if err == nil {
		t.Fatal("Expected error for missing watched file, got none")
	}
	if errorCoder, ok := err.(errors.ErrorCoder); !ok || string(errorCoder.ErrorCode()) != ErrCodeInvalidConfig {
		t.Errorf("Expected %s, got: %v", ErrCodeInvalidConfig, err)
	}
}

func TestNewRuleTable_RejectsEmptyFields(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	watched := writeTestFile(t, tmpDir, "data.txt", "v1")

	tests := []struct {
		name string
		rule Rule
	}{
		{"empty file path", Rule{FilePath: "", BackupDirPath: filepath.Join(tmpDir, "b")}},
		{"empty backup dir", Rule{FilePath: watched, BackupDirPath: ""}},
		{"both empty", Rule{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleTable([]Rule{tt.rule})
			if err == nil {
				t.Fatal("Expected error for incomplete rule, got none")
			}
			if errorCoder, ok := err.(errors.ErrorCoder); !ok || string(errorCoder.ErrorCode()) != ErrCodeInvalidConfig {
				t.Errorf("Expected %s, got: %v", ErrCodeInvalidConfig, err)
			}
		})
	}
}

func TestNewRuleTable_AllowsMissingBackupDir(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	watched := writeTestFile(t, tmpDir, "data.txt", "v1")

	// three levels that do not exist yet; the table must still resolve the
	// path through the deepest existing ancestor
	backupDir := filepath.Join(tmpDir, "a", "b", "c")

	table, err := NewRuleTable([]Rule{
		{FilePath: watched, BackupDirPath: backupDir},
	})
	if err != nil {
		t.Fatalf("NewRuleTable failed for missing backup dir: %v", err)
	}

	resolvedBase, err := filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	want := filepath.Join(resolvedBase, "a", "b", "c")

	if got := table.Rules()[0].BackupDirPath; got != want {
		t.Errorf("Expected backup dir %s, got %s", want, got)
	}
}

func TestRuleTable_RulesReturnsCopy(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	watched := writeTestFile(t, tmpDir, "data.txt", "v1")

	table, err := NewRuleTable([]Rule{
		{FilePath: watched, BackupDirPath: filepath.Join(tmpDir, "backups")},
	})
	if err != nil {
		t.Fatalf("NewRuleTable failed: %v", err)
	}

	rules := table.Rules()
	rules[0].FilePath = "tampered"

	if table.Rules()[0].FilePath == "tampered" {
		t.Error("Mutating the returned slice must not affect the table")
	}
}

func TestRuleTable_EmptyRuleList(t *testing.T) {
	t.Parallel()

	table, err := NewRuleTable(nil)
	if err != nil {
		t.Fatalf("NewRuleTable failed for empty rule list: %v", err)
	}

	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d rules", table.Len())
	}
	if _, ok := table.BackupDirFor("/anywhere"); ok {
		t.Error("Empty table should not resolve any path")
	}
}
