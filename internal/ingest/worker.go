package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/hrcode/internal/archive"
	"github.com/kalambet/hrcode/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) (bool, error)
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// SolutionArchiver archives a single download file.
type SolutionArchiver interface {
	Archive(ctx context.Context, path string, attempt int) (archive.Result, error)
}

// Payload is the JSON body of an archive_solution job.
type Payload struct {
	Path    string `json:"path"`
	Attempt int    `json:"attempt,omitempty"`
}

// Enqueue queues path for archiving and returns the job ID.
func Enqueue(q Enqueuer, path string, attempt int) (string, error) {
	payload, err := json.Marshal(Payload{Path: path, Attempt: attempt})
	if err != nil {
		return "", fmt.Errorf("marshalling job payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobArchiveSolution,
		PayloadJSON: string(payload),
	}
	if err := q.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return job.ID, nil
}

// Worker processes archive_solution jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	archiver SolutionArchiver
	poll     time.Duration
	spoolDir string
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, archiver SolutionArchiver, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		archiver: archiver,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// SetSpoolDir makes the worker delete download files under dir once their
// job completes or fails for good. Files elsewhere are never removed.
func (w *Worker) SetSpoolDir(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	w.spoolDir = dir
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single archive_solution job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobArchiveSolution})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	var payload Payload
	err = json.Unmarshal([]byte(job.PayloadJSON), &payload)
	if err != nil {
		err = fmt.Errorf("parsing payload: %w", err)
	} else {
		err = w.processJob(ctx, job.ID, payload)
	}

	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		final, failErr := w.store.FailJob(job.ID, err.Error())
		if failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
			return true, nil
		}
		if final {
			w.releaseSpooled(payload.Path)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.releaseSpooled(payload.Path)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, id string, payload Payload) error {
	if payload.Path == "" {
		return fmt.Errorf("job %s has no path", id)
	}

	res, err := w.archiver.Archive(ctx, payload.Path, payload.Attempt)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", payload.Path, err)
	}

	w.logger.Debug("job completed",
		"job_id", id,
		"file", res.Record.FilePath(),
		"unchanged", res.Unchanged,
	)
	return nil
}

// releaseSpooled removes path if it sits directly in the spool directory.
func (w *Worker) releaseSpooled(path string) {
	if w.spoolDir == "" || path == "" {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil || filepath.Dir(abs) != w.spoolDir {
		return
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("removing spooled upload", "file", abs, "error", err)
	}
}
