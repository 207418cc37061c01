// backup.go: Backup writer for Phylax
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/go-errors"
	"github.com/juju/loggo"
)

var backupLogger = loggo.GetLogger("phylax.backup")

// BackupResult describes one completed backup copy.
type BackupResult struct {
	Source   string        // canonical path of the watched file
	Backup   string        // path of the backup file created
	Bytes    int64         // bytes copied
	Checksum string        // hex SHA-256 of the copied bytes
	Elapsed  time.Duration // wall time for the whole operation
}

// BackupWriter copies watched files into their backup directories.
type BackupWriter struct {
	table *RuleTable
}

// NewBackupWriter creates a writer backed by the given rule table.
func NewBackupWriter(table *RuleTable) *BackupWriter {
	return &BackupWriter{table: table}
}

// Backup copies the current contents of the file at eventPath into its
// rule's backup directory under a timestamped, collision-free name. The
// copy reflects the file's contents at copy time, which may already differ
// from the state that triggered the event.
func (w *BackupWriter) Backup(eventPath string) (*BackupResult, error) {
	start := time.Now()

	canonical, err := canonicalizeFile(eventPath)
	if err != nil {
		return nil, err
	}

	backupDir, ok := w.table.BackupDirFor(canonical)
	if !ok {
		return nil, errors.New(ErrCodeNoBackupRule, "no backup rule for file").
			WithContext("path", canonical)
	}

	base := filepath.Base(canonical)
	if base == "." || base == string(filepath.Separator) {
		return nil, errors.New(ErrCodeInvalidFileName, "cannot derive a file name from path").
			WithContext("path", canonical)
	}

	// The real clock, not the cached one: backup names need microsecond
	// resolution to stay unique across rapid successive events.
	target := filepath.Join(backupDir, backupName(base, time.Now().UTC()))

	backupLogger.Debugf("backing up %s to %s", canonical, target)

	bytes, checksum, err := copyFileExclusive(canonical, target)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeCopyFailed, "backup copy failed").
			WithContext("source", canonical).
			WithContext("target", target)
	}

	return &BackupResult{
		Source:   canonical,
		Backup:   target,
		Bytes:    bytes,
		Checksum: checksum,
		Elapsed:  time.Since(start),
	}, nil
}

// backupName derives the backup file name for one instant: the source
// basename followed by a UTC timestamp at microsecond resolution, so copies
// of the same file sort lexicographically by creation time.
func backupName(base string, ts time.Time) string {
	return fmt.Sprintf("%s-%s-%06d", base, ts.Format("20060102-150405"), ts.Nanosecond()/1000)
}

// copyFileExclusive copies src to a freshly created dst carrying the
// source's permission bits. Creation is exclusive: an existing dst fails
// the copy rather than being overwritten. On failure any partial dst is
// removed. Returns the byte count and hex SHA-256 of the copied data.
func copyFileExclusive(src, dst string) (int64, string, error) {
	in, err := os.Open(src) // #nosec G304 -- src is a canonicalized watched path
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, "", err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()) // #nosec G304 -- dst is inside the rule's backup directory
	if err != nil {
		return 0, "", err
	}

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return 0, "", err
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return 0, "", err
	}

	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}
