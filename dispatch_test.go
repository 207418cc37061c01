// dispatch_test.go: Test suite for the event dispatch loop
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"context"
	goerrors "errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agilira/go-errors"
)

func TestDispatcher_BacksUpCommittedWrites(t *testing.T) {
	t.Parallel()

	writer, file, backupDir := newTestWriter(t, "dispatched")
	journal, _ := newJSONLTestJournal(t, 64)

	events := make(chan Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewDispatcher(events, writer, journal).Run(ctx)
	}()

	// only the committed write may produce a backup
	events <- Event{Kind: EventNoticeWrite, Path: file}
	events <- Event{Kind: EventWrite, Path: file}
	events <- Event{Kind: EventChmod, Path: file}
	events <- Event{Kind: EventNoticeRemove, Path: file}
	events <- Event{Kind: EventRemove, Path: file}
	events <- Event{Kind: EventRename, Path: file, NewPath: file + ".moved"}
	events <- Event{Kind: EventRescan}
	events <- Event{Kind: EventError, Err: goerrors.New("synthetic watch error")}

	maxWait := time.Now().Add(5 * time.Second)
	for {
		entries, err := os.ReadDir(backupDir)
		if err != nil {
			t.Fatalf("Failed to read backup dir: %v", err)
		}
		if len(entries) >= 1 {
			break
		}
		if time.Now().After(maxWait) {
			t.Fatal("Timeout waiting for the backup to appear")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run should return nil on cancellation, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for the dispatcher to stop")
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("Failed to read backup dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly 1 backup, got %d", len(entries))
	}

	journaled, err := journal.Recent("", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(journaled) != 1 {
		t.Fatalf("Expected 1 journal entry, got %d", len(journaled))
	}
	if journaled[0].Outcome != OutcomeOK || journaled[0].Source != file {
		t.Errorf("Unexpected journal entry: %+v", journaled[0])
	}
}

func TestDispatcher_JournalsFailedBackups(t *testing.T) {
	t.Parallel()

	writer, _, backupDir := newTestWriter(t, "ruled")
	journal, _ := newJSONLTestJournal(t, 64)
	stray := writeTestFile(t, t.TempDir(), "stray.txt", "no rule for me")

	events := make(chan Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewDispatcher(events, writer, journal).Run(ctx)
	}()

	events <- Event{Kind: EventWrite, Path: stray}

	var journaled []JournalEntry
	maxWait := time.Now().Add(5 * time.Second)
	for {
		var err error
		journaled, err = journal.Recent("", 10)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(journaled) >= 1 {
			break
		}
		if time.Now().After(maxWait) {
			t.Fatal("Timeout waiting for the failure to be journaled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-errCh

	if journaled[0].Outcome != OutcomeFailed {
		t.Errorf("Expected a failed entry, got %s", journaled[0].Outcome)
	}
	if !strings.Contains(journaled[0].Error, "no backup rule") {
		t.Errorf("Expected the failure cause in the entry, got %q", journaled[0].Error)
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("Failed to read backup dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no backups for the unruled file, got %d", len(entries))
	}
}

func TestDispatcher_StopsWhenEventSourceCloses(t *testing.T) {
	t.Parallel()

	writer, _, _ := newTestWriter(t, "closing time")
	journal, _ := newJSONLTestJournal(t, 64)

	events := make(chan Event)
	errCh := make(chan error, 1)
	go func() {
		errCh <- NewDispatcher(events, writer, journal).Run(context.Background())
	}()

	close(events)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Expected an error when the event source closes, got nil")
		}
		if errorCoder, ok := err.(errors.ErrorCoder); !ok || string(errorCoder.ErrorCode()) != ErrCodeEventSourceClosed {
			t.Errorf("Expected %s, got: %v", ErrCodeEventSourceClosed, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for the dispatcher to stop")
	}
}

func TestDispatcher_ReturnsNilOnCancelledContext(t *testing.T) {
	t.Parallel()

	writer, _, _ := newTestWriter(t, "cancelled")
	journal, _ := newJSONLTestJournal(t, 64)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewDispatcher(make(chan Event), writer, journal).Run(ctx); err != nil {
		t.Errorf("Run should return nil for a cancelled context, got: %v", err)
	}
}
