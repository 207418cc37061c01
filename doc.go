// Package phylax provides a continuously running file backup agent,
// combining kernel-level file monitoring, burst-coalescing event dispatch,
// and collision-free timestamped backup copies in a single, cohesive system.
//
// # Philosophy: Every Saved Version Matters
//
// Phylax is built on the principle that local file history should be
// automatic and loss-free. It turns a plain list of watched files into a
// living archive: every time a watched file settles after a burst of
// writes, its full contents are preserved under a name that sorts
// chronologically and never collides with an earlier copy.
//
// # Architecture Overview
//
// Phylax consists of five integrated subsystems:
//  1. **Rule Table**: Canonical watch-path to backup-directory mapping with duplicate detection
//  2. **Notifier**: fsnotify-based event source with per-path burst coalescing and immediate notices
//  3. **Event Dispatcher**: Single consumer turning committed writes into backup operations
//  4. **Backup Writer**: Exclusive-create copies with SHA-256 checksums and time-ordered names
//  5. **Journal**: Buffered record of every backup outcome with a unified SQLite backend
//
// # Quick Start
//
// Point the agent at a YAML rule document and run it until interrupted:
//
//	rules, err := phylax.LoadRules("phylax.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	agent, err := phylax.New(rules, phylax.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := agent.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The rule document is a list of watched files and their backup targets:
//
//	rules:
//	  - file_path: /etc/hosts
//	    backup_dir_path: /var/backups/hosts
//	  - file_path: ./notes.txt
//	    backup_dir_path: ./backups/notes
//
// Both sides of a rule are canonicalized at startup, so relative paths and
// symlinks resolve to one stable identity per file.
//
// # Event Pipeline
//
// Raw filesystem notifications arrive in bursts: a single editor save can
// produce several raw writes plus a chmod within milliseconds. The notifier
// absorbs each burst per path and commits one semantic event once the path
// has stayed quiet for a full debounce window:
//
//	config := phylax.Config{
//		DebounceWindow:  5 * time.Second,
//		EventBuffer:     64,
//		MaxWatchedFiles: 256,
//	}
//
// Two immediate notices precede the committed event so activity is visible
// as it happens:
//   - EventNoticeWrite fires on the first raw write of a burst
//   - EventNoticeRemove fires on the first raw remove or rename
//
// When a burst settles, its accumulated operations collapse into a single
// event by precedence: remove outranks rename, rename outranks create, and
// create outranks write. Only EventWrite triggers a backup.
//
// # Backup Naming
//
// Backups are named after the source file plus a UTC timestamp at
// microsecond resolution:
//
//	data.txt-20240301-120000-123456
//
// Names sort lexicographically in creation order, and the exclusive-create
// copy guarantees an existing backup is never overwritten, even across
// agent restarts.
//
// # Journal
//
// Every backup outcome, success or failure, flows through a buffered
// journal backed by SQLite:
//
//	journal := phylax.JournalConfig{
//		Enabled:       true,
//		OutputFile:    "/var/log/phylax/journal.db",
//		BufferSize:    256,
//		FlushInterval: 5 * time.Second,
//	}
//
// Journal entries include:
//   - Source and backup paths with byte counts
//   - SHA-256 checksums of the copied contents
//   - Copy duration, process context and timestamps
//   - Failure causes for writes that could not be preserved
//
// A .jsonl OutputFile selects append-only JSONL storage instead, and when
// SQLite cannot be opened the journal degrades to JSONL on its own rather
// than preventing agent startup.
//
// # Command Line Interface
//
// The phylax binary wraps the library for operators:
//
//	phylax run phylax.yaml --debounce-window 2s
//	phylax check phylax.yaml
//	phylax journal stats
//	phylax journal recent --source /etc/hosts --limit 10
//	phylax journal prune --older-than 30d
//
// Runtime options follow the usual precedence: explicit command-line flags
// override PHYLAX_* environment variables, which override built-in
// defaults.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Run stops the agent cleanly: the
// dispatch loop returns, the watcher is released and buffered journal
// entries are flushed before Run returns nil. The event channel closing for
// any other reason is the one fatal runtime condition and surfaces as an
// error from Run.
//
// # Thread Safety and Concurrency
//
// All phylax components are safe for concurrent use:
//   - The rule table is immutable after construction
//   - Burst state is owned by a single notifier goroutine
//   - Journal writes are buffered behind a mutex and flushed in batches
//   - Agent lifecycle transitions use atomic operations
//
// # Error Handling
//
// Errors carry structured codes from github.com/agilira/go-errors so
// callers can distinguish configuration mistakes (PHYLAX_INVALID_CONFIG),
// watcher failures (PHYLAX_WATCHER_INIT), unmatched paths
// (PHYLAX_NO_BACKUP_RULE) and copy failures (PHYLAX_COPY_FAILED) without
// parsing message text.
//
// Repository: https://github.com/agilira/phylax
package phylax
