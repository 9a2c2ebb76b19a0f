// ABOUTME: Background writer that persists downloads off the command loop
// ABOUTME: Publishes a completion or failure event for every job

package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/2389/tether/internal/events"
)

// ErrWriterClosed is returned by Submit after Close.
var ErrWriterClosed = errors.New("transfer writer closed")

const jobQueueSize = 16

// Job is one file to persist.
type Job struct {
	AgentID int
	IP      string
	Remote  string
	Path    string
	Data    []byte
}

// Writer persists jobs on a single goroutine.
type Writer struct {
	jobs   chan Job
	events events.Publisher
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts the writer goroutine. A nil publisher discards events.
func NewWriter(publisher events.Publisher, logger *slog.Logger) *Writer {
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		jobs:   make(chan Job, jobQueueSize),
		events: publisher,
		logger: logger.With("component", "transfer"),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues job. It blocks only while the queue is full.
func (w *Writer) Submit(ctx context.Context, job Job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		w.write(job)
	}
}

func (w *Writer) write(job Job) {
	err := writeFile(job.Path, job.Data)
	if err != nil {
		w.logger.Error("download write failed", "path", job.Path, "remote", job.Remote, "error", err)
		w.events.Publish(events.Event{
			Kind:    events.TransferFailed,
			AgentID: job.AgentID,
			IP:      job.IP,
			Detail:  fmt.Sprintf("saving %s", job.Remote),
			Err:     err,
		})
		return
	}

	w.logger.Info("download saved", "path", job.Path, "remote", job.Remote, "bytes", len(job.Data))
	w.events.Publish(events.Event{
		Kind:    events.TransferCompleted,
		AgentID: job.AgentID,
		IP:      job.IP,
		Detail:  fmt.Sprintf("saved %s to %s (%d bytes)", job.Remote, job.Path, len(job.Data)),
	})
}

// writeFile writes to a temp file in the target directory and renames it
// into place.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
