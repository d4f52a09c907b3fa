// Package journal provides the append-only event log of the runtime.
// Every significant internal event is reflected into it: one JSON record
// per line on disk, a bounded in-memory ring for quick recall, and an
// optional SQLite archive mirror.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is a single reflected event.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"id"`
	Anchor    string         `json:"anchor"`
	Version   string         `json:"version"`
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sink receives a copy of every appended record.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// Journal is safe for concurrent use. Appends from concurrent goroutines
// serialize under the mutex, so the persisted log interleaves in wall-clock
// append order; the recent ring follows the same order.
type Journal struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	recent    []Record
	recentCap int
	identity  string
	anchor    string
	version   string
	archive   Sink
	logger    *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithRecentCap bounds the in-memory ring (default 500).
func WithRecentCap(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.recentCap = n
		}
	}
}

// WithArchive mirrors every record into the given sink.
func WithArchive(sink Sink) Option {
	return func(j *Journal) { j.archive = sink }
}

// WithLogger sets the logger for append failures.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

// Open creates or opens the append-only log at path. Identity fields are
// stamped onto every record.
func Open(path, identity, anchor, version string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		path:      path,
		file:      file,
		recentCap: 500,
		identity:  identity,
		anchor:    anchor,
		version:   version,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// SetVersion updates the version stamped onto subsequent records. Called
// after a successor merges its predecessor's identity.
func (j *Journal) SetVersion(version string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.version = version
}

// Reflect appends an event record. It never fails outward: disk or archive
// errors are logged and the in-memory ring still advances.
func (j *Journal) Reflect(ctx context.Context, event string, details map[string]any) Record {
	j.mu.Lock()
	rec := Record{
		Timestamp: time.Now().UTC(),
		ID:        j.identity,
		Anchor:    j.anchor,
		Version:   j.version,
		Event:     event,
		Details:   details,
	}

	j.recent = append(j.recent, rec)
	if len(j.recent) > j.recentCap {
		j.recent = j.recent[len(j.recent)-j.recentCap:]
	}

	line, err := json.Marshal(rec)
	if err == nil {
		if _, werr := j.file.Write(append(line, '\n')); werr != nil {
			err = werr
		}
	}
	archive := j.archive
	j.mu.Unlock()

	if err != nil {
		j.logger.Error("journal append failed", "event", event, "error", err)
	}
	if archive != nil {
		if aerr := archive.Append(ctx, rec); aerr != nil {
			j.logger.Error("journal archive append failed", "event", event, "error", aerr)
		}
	}
	return rec
}

// Recent returns a copy of the in-memory ring, oldest first.
func (j *Journal) Recent() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Record, len(j.recent))
	copy(out, j.recent)
	return out
}

// Seed preloads the recent ring, e.g. from a handoff package. Records past
// the cap are dropped oldest-first.
func (j *Journal) Seed(records []Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recent = append(j.recent, records...)
	if len(j.recent) > j.recentCap {
		j.recent = j.recent[len(j.recent)-j.recentCap:]
	}
}

// Close flushes and closes the log file and the archive sink.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	if err := j.file.Sync(); err != nil {
		firstErr = err
	}
	if err := j.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if j.archive != nil {
		if err := j.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
