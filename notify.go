// notify.go: Debounced filesystem event source for Phylax
//
// The OS notification primitive (fsnotify) reports raw, undebounced events.
// Notifier folds those into the semantic vocabulary the dispatcher consumes:
// raw events for a path accumulate in a pending burst, every new raw event
// slides the burst's deadline forward by the quiescence window, and when the
// deadline expires the burst is flushed as a single committed event. The
// first raw write of a burst additionally emits an immediate NoticeWrite,
// the first remove or rename an immediate NoticeRemove.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package phylax

import (
	goerrors "errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/fsnotify/fsnotify"
	"github.com/juju/loggo"
)

var notifyLogger = loggo.GetLogger("phylax.notify")

// EventKind identifies the semantic kind of a filesystem event.
type EventKind int

const (
	// EventNoticeWrite reports that a write burst began on a watched path.
	// The committed event follows once the path goes quiet.
	EventNoticeWrite EventKind = iota

	// EventNoticeRemove reports that a remove or rename burst began.
	EventNoticeRemove

	// EventCreate is a committed creation.
	EventCreate

	// EventWrite is a committed modification. It is the only kind that
	// triggers a backup.
	EventWrite

	// EventChmod is a committed metadata-only change.
	EventChmod

	// EventRemove is a committed removal.
	EventRemove

	// EventRename is a committed rename away from the watched path.
	EventRename

	// EventRescan reports that the OS dropped raw events (queue overflow)
	// and watch state may be stale.
	EventRescan

	// EventError carries a watcher error that does not end the stream.
	EventError
)

// String returns a short lowercase name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventNoticeWrite:
		return "notice-write"
	case EventNoticeRemove:
		return "notice-remove"
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventChmod:
		return "chmod"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	case EventRescan:
		return "rescan"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one debounced filesystem notification.
type Event struct {
	Kind EventKind

	// Path is the watched path the event refers to. Empty for rescans and
	// for errors that carry no path.
	Path string

	// NewPath is the rename target when the platform reports one.
	// inotify does not, so it is usually empty.
	NewPath string

	// Err is the cause carried by EventError events.
	Err error
}

// burst accumulates the raw events seen for one path since its last flush.
type burst struct {
	ops           fsnotify.Op
	deadline      time.Time
	seq           uint64
	noticedWrite  bool
	noticedRemove bool
}

// Notifier wraps an fsnotify watcher and owns the per-path quiescence
// window. Committed events are delivered on a buffered channel in a
// deterministic order: notices in raw arrival order, expired bursts by
// deadline and then by arrival.
//
// The event channel is closed only by Close or when the underlying watcher
// dies. Consumers treat a close they did not request as fatal.
type Notifier struct {
	watcher *fsnotify.Watcher
	events  chan Event
	window  time.Duration

	// burst state, owned by the run goroutine
	pending map[string]*burst
	seq     uint64

	started   atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewNotifier creates a Notifier with the given quiescence window and event
// channel capacity. Non-positive arguments fall back to the same defaults
// Config.WithDefaults applies.
func NewNotifier(window time.Duration, buffer int) (*Notifier, error) {
	if window <= 0 {
		window = 5 * time.Second
	}
	if buffer <= 0 {
		buffer = 64
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeWatcherInit, "cannot create filesystem watcher")
	}

	return &Notifier{
		watcher:   watcher,
		events:    make(chan Event, buffer),
		window:    window,
		pending:   make(map[string]*burst),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Watch arms a non-recursive watch on a single file.
func (n *Notifier) Watch(path string) error {
	if err := n.watcher.Add(path); err != nil {
		return errors.Wrap(err, ErrCodeWatcherInit, "cannot watch file").
			WithContext("path", path)
	}
	return nil
}

// Events returns the channel debounced events are delivered on.
func (n *Notifier) Events() <-chan Event {
	return n.events
}

// Start launches the background pump. Calling it again is a no-op.
func (n *Notifier) Start() {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	go n.run()
}

// Close stops the pump, releases the OS watcher and closes the event
// channel. Pending bursts are dropped. Safe to call more than once.
func (n *Notifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.stopCh)
		err = n.watcher.Close()
		if n.started.CompareAndSwap(false, true) {
			// the pump never ran, so close the channel on its behalf
			close(n.events)
		} else {
			<-n.stoppedCh
		}
	})
	return err
}

func (n *Notifier) run() {
	defer close(n.stoppedCh)
	defer close(n.events)

	ticker := time.NewTicker(n.flushQuantum())
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case raw, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			n.absorb(raw)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.forwardError(err)
		case <-ticker.C:
			n.flush(timecache.CachedTime())
		}
	}
}

// flushQuantum is the resolution at which expired bursts are collected.
// A quarter of the window, clamped so that short test windows still flush
// promptly and long windows do not spin the ticker.
func (n *Notifier) flushQuantum() time.Duration {
	quantum := n.window / 4
	if quantum < 10*time.Millisecond {
		quantum = 10 * time.Millisecond
	}
	if quantum > 250*time.Millisecond {
		quantum = 250 * time.Millisecond
	}
	return quantum
}

// absorb folds one raw event into the pending burst for its path and emits
// the immediate notice kinds for a burst's first write or remove.
func (n *Notifier) absorb(raw fsnotify.Event) {
	notifyLogger.Tracef("raw event: %s", raw)

	b := n.pending[raw.Name]
	if b == nil {
		n.seq++
		b = &burst{seq: n.seq}
		n.pending[raw.Name] = b
	}
	b.ops |= raw.Op
	b.deadline = timecache.CachedTime().Add(n.window)

	if raw.Op.Has(fsnotify.Write) && !b.noticedWrite {
		b.noticedWrite = true
		n.emit(Event{Kind: EventNoticeWrite, Path: raw.Name})
	}
	if (raw.Op.Has(fsnotify.Remove) || raw.Op.Has(fsnotify.Rename)) && !b.noticedRemove {
		b.noticedRemove = true
		n.emit(Event{Kind: EventNoticeRemove, Path: raw.Name})
	}
}

// forwardError surfaces a watcher error. Queue overflow means the OS
// dropped raw events, which the vocabulary reports as a rescan request.
func (n *Notifier) forwardError(err error) {
	if goerrors.Is(err, fsnotify.ErrEventOverflow) {
		n.emit(Event{Kind: EventRescan})
		return
	}
	n.emit(Event{Kind: EventError, Err: err})
}

// flush emits the committed event for every burst whose deadline has
// passed, ordered by deadline and then by arrival.
func (n *Notifier) flush(now time.Time) {
	if len(n.pending) == 0 {
		return
	}

	type expired struct {
		path string
		b    *burst
	}
	var due []expired
	for path, b := range n.pending {
		if !b.deadline.After(now) {
			due = append(due, expired{path, b})
		}
	}
	if len(due) == 0 {
		return
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].b.deadline.Equal(due[j].b.deadline) {
			return due[i].b.deadline.Before(due[j].b.deadline)
		}
		return due[i].b.seq < due[j].b.seq
	})

	for _, e := range due {
		delete(n.pending, e.path)
		n.emit(Event{Kind: coalesce(e.b.ops), Path: e.path})
	}
}

// coalesce reduces a burst's raw ops to one committed kind. Removal outranks
// rename, rename outranks creation, creation outranks writes: a burst that
// created and then wrote a file is reported as a creation.
func coalesce(ops fsnotify.Op) EventKind {
	switch {
	case ops.Has(fsnotify.Remove):
		return EventRemove
	case ops.Has(fsnotify.Rename):
		return EventRename
	case ops.Has(fsnotify.Create):
		return EventCreate
	case ops.Has(fsnotify.Write):
		return EventWrite
	default:
		return EventChmod
	}
}

// emit delivers ev on the event channel, or drops it once a stop has been
// requested and the consumer may be gone.
func (n *Notifier) emit(ev Event) {
	select {
	case n.events <- ev:
	case <-n.stopCh:
	}
}
