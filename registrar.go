// registrar.go: Watch registration for Phylax
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"os"

	"github.com/agilira/go-errors"
	"github.com/juju/loggo"
)

var registrarLogger = loggo.GetLogger("phylax.registrar")

// CheckRule validates one rule pair without side effects: the watched path
// must be an existing regular file, and the backup path, when it exists,
// must be a directory. The registrar runs the same checks before arming a
// watch; the check CLI command uses it for dry runs.
func CheckRule(watchPath, backupDir string) error {
	info, err := os.Stat(watchPath)
	if err != nil || !info.Mode().IsRegular() {
		return errors.New(ErrCodeInvalidConfig, "cannot monitor path: does not exist or is not a regular file").
			WithContext("path", watchPath)
	}

	if dirInfo, dirErr := os.Stat(backupDir); dirErr == nil && !dirInfo.IsDir() {
		return errors.New(ErrCodeInvalidConfig, "cannot store backups: path exists and is not a directory").
			WithContext("path", backupDir)
	}

	return nil
}

// Registrar arms filesystem watches for the rules in a table.
type Registrar struct {
	table    *RuleTable
	notifier *Notifier
}

// NewRegistrar binds a rule table to the notifier its watches go through.
func NewRegistrar(table *RuleTable, notifier *Notifier) *Registrar {
	return &Registrar{table: table, notifier: notifier}
}

// RegisterAll walks the table in rule order, creating each backup directory
// and arming a watch on each watched file. A rule that fails any step is
// logged and skipped; the remaining rules still register. Returns the
// number of watches armed.
func (r *Registrar) RegisterAll() int {
	armed := 0
	for _, rule := range r.table.Rules() {
		if err := CheckRule(rule.FilePath, rule.BackupDirPath); err != nil {
			registrarLogger.Errorf("skipping rule for %s: %v", rule.FilePath, err)
			continue
		}

		if err := os.MkdirAll(rule.BackupDirPath, 0750); err != nil {
			registrarLogger.Errorf("cannot create backup directory %s: %v", rule.BackupDirPath, err)
			continue
		}

		if err := r.notifier.Watch(rule.FilePath); err != nil {
			registrarLogger.Errorf("cannot watch %s: %v", rule.FilePath, err)
			continue
		}

		registrarLogger.Debugf("watching %s, saving backups to %s", rule.FilePath, rule.BackupDirPath)
		armed++
	}

	if armed == 0 {
		registrarLogger.Warningf("no watches armed, agent will idle until stopped")
	}

	return armed
}
