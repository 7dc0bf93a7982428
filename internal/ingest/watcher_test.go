package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/hrcode/internal/storage"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []storage.Job
	ch   chan struct{}
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{ch: make(chan struct{}, 16)}
}

func (q *recordingQueue) EnqueueJob(job storage.Job) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.ch <- struct{}{}
	return nil
}

func (q *recordingQueue) paths(t *testing.T) []string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.jobs {
		var p Payload
		if err := json.Unmarshal([]byte(j.PayloadJSON), &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		out = append(out, p.Path)
	}
	return out
}

func TestWatcher_QueuesJSONDownloads(t *testing.T) {
	dir := t.TempDir()
	q := newRecordingQueue()

	w, err := NewWatcher(dir, q, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "avg.json")
	// Several writes in quick succession collapse into one job.
	f, err := os.Create(target)
	if err != nil {
		t.Fatal(err)
	}
	for _, chunk := range []string{`{"progName":`, `"Compute the Average",`, `"filename":"avg.sh"}`} {
		if _, err := f.WriteString(chunk); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	select {
	case <-q.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no job queued for new download")
	}
	// Give a second, unexpected job a chance to show up.
	time.Sleep(200 * time.Millisecond)

	got := q.paths(t)
	if len(got) != 1 || got[0] != target {
		t.Errorf("queued paths = %q, want [%s]", got, target)
	}
}

func TestWatcher_StartMissingDir(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), newRecordingQueue(), 0)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start succeeded on a missing directory")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), newRecordingQueue(), 0)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
}
