// dispatch.go: Event dispatch loop for Phylax
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	"context"

	"github.com/agilira/go-errors"
	"github.com/juju/loggo"
)

var dispatchLogger = loggo.GetLogger("phylax.dispatch")

// Dispatcher consumes the notifier's event stream and routes committed
// writes to the backup writer. It is the stream's single consumer: events
// are processed strictly in delivery order, so a slow backup delays the
// events behind it rather than running concurrently with them.
type Dispatcher struct {
	events  <-chan Event
	writer  *BackupWriter
	journal *Journal
}

// NewDispatcher builds the consumer side of the event stream.
func NewDispatcher(events <-chan Event, writer *BackupWriter, journal *Journal) *Dispatcher {
	return &Dispatcher{events: events, writer: writer, journal: journal}
}

// Run blocks until ctx is cancelled, which returns nil, or until the event
// channel closes without a cancellation, which returns a fatal event-source
// error. Every other condition, including failed backups, keeps the loop
// running.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-d.events:
			if !ok {
				return errors.New(ErrCodeEventSourceClosed, "event source closed unexpectedly")
			}
			d.handle(ev)
		}
	}
}

// handle processes one event. Only committed writes trigger a backup; the
// other kinds are observability.
func (d *Dispatcher) handle(ev Event) {
	switch ev.Kind {
	case EventNoticeWrite:
		dispatchLogger.Debugf("notice-write: something is happening with %s", ev.Path)
	case EventNoticeRemove:
		dispatchLogger.Debugf("notice-remove: %s is being removed", ev.Path)
	case EventCreate:
		dispatchLogger.Debugf("create: %s was just created", ev.Path)
	case EventWrite:
		dispatchLogger.Debugf("write: %s was just written to", ev.Path)
		d.backup(ev.Path)
	case EventChmod:
		dispatchLogger.Debugf("chmod: attributes of %s changed", ev.Path)
	case EventRemove:
		dispatchLogger.Debugf("remove: %s removed", ev.Path)
	case EventRename:
		if ev.NewPath != "" {
			dispatchLogger.Debugf("rename: %s renamed to %s", ev.Path, ev.NewPath)
		} else {
			dispatchLogger.Debugf("rename: %s renamed away", ev.Path)
		}
	case EventRescan:
		dispatchLogger.Debugf("rescan: the OS dropped events, watch state may be stale")
	case EventError:
		if ev.Path != "" {
			dispatchLogger.Errorf("watch error on %s: %v", ev.Path, ev.Err)
		} else {
			dispatchLogger.Errorf("watch error: %v", ev.Err)
		}
	}
}

// backup runs the writer for one committed write. Failures are logged and
// journaled, never propagated.
func (d *Dispatcher) backup(path string) {
	result, err := d.writer.Backup(path)
	if err != nil {
		dispatchLogger.Errorf("error while processing write event for %s: %v", path, err)
		d.journal.RecordFailure(path, err)
		return
	}
	d.journal.Record(result)
}
