// Package watch reports external modifications to a workflow's on-disk
// metadata. It is used by long-running processes that hold a workflow
// open and need to notice when another writer commits changes.
package watch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gcapes/hpcflow-new/internal/store"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Event describes an observed change to workflow metadata.
type Event struct {
	WorkflowID string
	Name       string
	Digest     string
	ObservedAt time.Time
}

// Watcher monitors a workflow store for metadata changes made by other
// processes. Events are deduplicated by metadata digest, so a rewrite
// that leaves the content identical produces no event.
type Watcher struct {
	st       store.Store
	logger   *log.Logger
	logLevel LogLevel

	watcher *fsnotify.Watcher
	events  chan Event

	lastDigest string
	mu         sync.Mutex
}

// New creates a watcher over the given store. The store must remain
// open for the lifetime of the watcher.
func New(st store.Store, logger *log.Logger, level LogLevel) (*Watcher, error) {
	md, err := st.ReadMetadata()
	if err != nil {
		return nil, fmt.Errorf("read initial metadata: %w", err)
	}
	digest, err := md.Digest()
	if err != nil {
		return nil, fmt.Errorf("digest initial metadata: %w", err)
	}
	return &Watcher{
		st:         st,
		logger:     logger,
		logLevel:   level,
		events:     make(chan Event, 16),
		lastDigest: digest,
	}, nil
}

// Events returns the channel on which metadata changes are delivered.
// The channel is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches the workflow location until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.watcher = watcher
	defer watcher.Close()
	defer close(w.events)

	// For a directory-backed store we watch the directory so that the
	// temp-write-and-rename pattern is seen as a Create. For a
	// single-file store we watch its parent directory for the same
	// reason.
	loc := w.st.Location()
	watchDir := loc
	if filepath.Ext(loc) != "" {
		watchDir = filepath.Dir(loc)
	}
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}
	w.log(LogLevelInfo, "watching %s", watchDir)

	for {
		select {
		case <-ctx.Done():
			w.log(LogLevelInfo, "watcher stopping")
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
			w.checkMetadata(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log(LogLevelError, "fsnotify error=%v", err)
		}
	}
}

// checkMetadata re-reads the metadata and emits an event if its digest
// no longer matches the last observed digest.
func (w *Watcher) checkMetadata(ctx context.Context) {
	md, err := w.st.ReadMetadata()
	if err != nil {
		// A rename in progress can leave a transient window where the
		// metadata is unreadable. The next event will retry.
		w.log(LogLevelDebug, "metadata read: %v", err)
		return
	}
	digest, err := md.Digest()
	if err != nil {
		w.log(LogLevelError, "metadata digest: %v", err)
		return
	}

	w.mu.Lock()
	changed := digest != w.lastDigest
	w.lastDigest = digest
	w.mu.Unlock()

	if !changed {
		return
	}
	w.log(LogLevelInfo, "metadata changed workflow=%s digest=%s", md.WorkflowID, digest[:12])

	ev := Event{
		WorkflowID: md.WorkflowID,
		Name:       md.Name,
		Digest:     digest,
		ObservedAt: time.Now(),
	}
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) log(level LogLevel, format string, args ...any) {
	if level < w.logLevel || w.logger == nil {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	w.logger.Printf("%s %s watch: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
