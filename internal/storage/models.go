package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// JobArchiveSolution is the job type consumed by the archive worker.
const JobArchiveSolution = "archive_solution"

// Job statuses. Completed and failed are terminal.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Archive is one solution committed to the repository.
type Archive struct {
	ID         string    `json:"id" yaml:"id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
	ProgName   string    `json:"prog_name" yaml:"prog_name"`
	Category   string    `json:"category" yaml:"category"`
	Filename   string    `json:"filename" yaml:"filename"`
	FullPath   string    `json:"full_path" yaml:"full_path"`
	Attempt    int       `json:"attempt" yaml:"attempt"`
	Message    string    `json:"message" yaml:"message"`
	CommitSHA  string    `json:"commit_sha" yaml:"commit_sha"`
	SourceFile string    `json:"source_file" yaml:"source_file"`
}

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload_json"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}
