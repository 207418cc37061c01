// rules.go: Backup rule table for Phylax
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agilira/go-errors"
)

// Rule pairs a watched file with the directory that receives its backups.
// Paths may be relative or contain symlinks; the rule table canonicalizes
// both sides at build time.
type Rule struct {
	FilePath      string `yaml:"file_path"`
	BackupDirPath string `yaml:"backup_dir_path"`
}

// RuleTable maps canonical watched paths to canonical backup directories.
// It is built once at startup and never mutated afterwards, so lookups
// from the dispatch loop need no locking.
type RuleTable struct {
	backupDirs map[string]string
	rules      []Rule // canonical pairs in configuration order
}

// NewRuleTable canonicalizes every rule and builds the lookup table.
//
// Building fails when a watched path cannot be canonicalized (most commonly
// because the file does not exist at startup) or when two rules resolve to
// the same watched file. Backup directories are allowed to be absent: their
// identity is resolved through the deepest existing ancestor, so symlinked
// parents still map to a single canonical form.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	table := &RuleTable{
		backupDirs: make(map[string]string, len(rules)),
		rules:      make([]Rule, 0, len(rules)),
	}

	for i, rule := range rules {
		if rule.FilePath == "" || rule.BackupDirPath == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "rule is missing file_path or backup_dir_path").
				WithContext("rule_index", i)
		}

		watch, err := canonicalizeFile(rule.FilePath)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "cannot canonicalize watched file path").
				WithContext("file_path", rule.FilePath)
		}

		backupDir, err := canonicalizeDir(rule.BackupDirPath)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidConfig, "cannot canonicalize backup directory path").
				WithContext("backup_dir_path", rule.BackupDirPath)
		}

		if existing, ok := table.backupDirs[watch]; ok {
			return nil, errors.New(ErrCodeInvalidConfig,
				fmt.Sprintf("duplicate rule for %s (backs up to both %s and %s)", watch, existing, backupDir))
		}

		table.backupDirs[watch] = backupDir
		table.rules = append(table.rules, Rule{FilePath: watch, BackupDirPath: backupDir})
	}

	return table, nil
}

// BackupDirFor returns the backup directory registered for a canonical
// watched path.
func (t *RuleTable) BackupDirFor(canonicalPath string) (string, bool) {
	dir, ok := t.backupDirs[canonicalPath]
	return dir, ok
}

// Rules returns the canonicalized rules in configuration order.
func (t *RuleTable) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Len returns the number of rules in the table.
func (t *RuleTable) Len() int {
	return len(t.rules)
}

// canonicalizeFile resolves a path to its canonical absolute form, following
// symlinks and normalizing "." and ".." elements. The target must exist.
func canonicalizeFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, ErrCodePathResolution, "cannot make path absolute").
			WithContext("path", path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrap(err, ErrCodePathResolution, "cannot resolve path").
			WithContext("path", abs)
	}

	return resolved, nil
}

// canonicalizeDir resolves a directory path that may not exist yet. The
// deepest existing ancestor is resolved and the missing suffix rejoined,
// so a path under a symlinked parent shares one form with its physical twin.
func canonicalizeDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(err, ErrCodePathResolution, "cannot make path absolute").
			WithContext("path", path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrap(err, ErrCodePathResolution, "cannot resolve path").
			WithContext("path", abs)
	}

	var suffix string
	cur := abs
	for {
		parent := filepath.Dir(cur)
		if parent == cur {
			// Walked up to the root without finding an existing ancestor;
			// the absolute path is already as canonical as it can get.
			return abs, nil
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent

		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrap(err, ErrCodePathResolution, "cannot resolve path").
				WithContext("path", cur)
		}
	}
}
