package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kalambet/hrcode/internal/solution"
	"github.com/kalambet/hrcode/internal/storage"
)

// fakeRepo records git calls and treats every write as a change unless
// unchanged is set.
type fakeRepo struct {
	mu        sync.Mutex
	added     []string
	messages  []string
	committed []string
	pushes    int
	unchanged bool
	pushErr   error
}

func (f *fakeRepo) Add(_ context.Context, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, paths...)
	return nil
}

func (f *fakeRepo) HasChanges(_ context.Context, _ string) (bool, error) {
	return !f.unchanged, nil
}

func (f *fakeRepo) Commit(_ context.Context, message string, paths ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	f.committed = append(f.committed, paths...)
	return fmt.Sprintf("%040d", len(f.messages)), nil
}

func (f *fakeRepo) Push(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	return f.pushErr
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeDownload(t *testing.T, dir, name string, sd solution.ScriptData) string {
	t.Helper()
	data, err := json.Marshal(sd)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var average = solution.ScriptData{
	ProgName:  "Compute the Average",
	PathArray: []string{"Linux_Shell", "Bash"},
	Message:   "Linux Shell > Bash > Compute the Average",
	Filename:  "bash-tutorials---compute-the-average.sh",
	AllCode:   "read N\n",
}

type fixture struct {
	root   string
	dl     string
	repo   *fakeRepo
	store  *storage.Store
	loader *solution.Loader
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir() + "/"
	return fixture{
		root:   root,
		dl:     t.TempDir(),
		repo:   &fakeRepo{},
		store:  openTestStore(t),
		loader: solution.NewLoader(root),
	}
}

func TestArchive_WritesCommitsAndRecords(t *testing.T) {
	f := newFixture(t)
	src := writeDownload(t, f.dl, "a.json", average)
	a := New(f.loader, f.repo, f.store, Options{AutoAttempt: true})

	res, err := a.Archive(context.Background(), src, 0)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	target := f.root + "Linux_Shell/Bash/bash-tutorials---compute-the-average.sh"
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading archived file: %v", err)
	}
	if string(data) != average.AllCode {
		t.Errorf("file content = %q, want %q", data, average.AllCode)
	}

	if len(f.repo.messages) != 1 || f.repo.messages[0] != "Solution to Linux Shell > Bash > Compute the Average" {
		t.Errorf("commit messages = %q", f.repo.messages)
	}
	if len(f.repo.added) != 1 || f.repo.added[0] != target {
		t.Errorf("added = %q, want [%s]", f.repo.added, target)
	}
	if len(f.repo.committed) != 1 || f.repo.committed[0] != target {
		t.Errorf("committed paths = %q, want [%s]", f.repo.committed, target)
	}
	if f.repo.pushes != 0 {
		t.Errorf("pushes = %d, want 0", f.repo.pushes)
	}

	stored, err := f.store.GetArchive(res.ArchiveID)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if stored.CommitSHA != res.CommitSHA || stored.SourceFile != src {
		t.Errorf("stored = %+v", stored)
	}
	if stored.Category != "Linux_Shell > Bash" {
		t.Errorf("Category = %q", stored.Category)
	}
}

func TestArchive_AutoAttemptNumbersRepeats(t *testing.T) {
	f := newFixture(t)
	src := writeDownload(t, f.dl, "a.json", average)
	a := New(f.loader, f.repo, f.store, Options{AutoAttempt: true})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := a.Archive(ctx, src, 0); err != nil {
			t.Fatalf("Archive %d: %v", i, err)
		}
	}
	res, err := a.Archive(ctx, src, 7)
	if err != nil {
		t.Fatalf("Archive explicit: %v", err)
	}
	if res.Attempt != 7 {
		t.Errorf("Attempt = %d, want 7", res.Attempt)
	}

	want := []string{
		"Solution to Linux Shell > Bash > Compute the Average",
		"Attempt 1: Linux Shell > Bash > Compute the Average",
		"Attempt 2: Linux Shell > Bash > Compute the Average",
		"Attempt 7: Linux Shell > Bash > Compute the Average",
	}
	if len(f.repo.messages) != len(want) {
		t.Fatalf("messages = %q", f.repo.messages)
	}
	for i := range want {
		if f.repo.messages[i] != want[i] {
			t.Errorf("message[%d] = %q, want %q", i, f.repo.messages[i], want[i])
		}
	}
}

func TestArchive_WithoutAutoAttempt(t *testing.T) {
	f := newFixture(t)
	src := writeDownload(t, f.dl, "a.json", average)
	a := New(f.loader, f.repo, f.store, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := a.Archive(ctx, src, 0); err != nil {
			t.Fatalf("Archive %d: %v", i, err)
		}
	}
	for _, m := range f.repo.messages {
		if m != "Solution to Linux Shell > Bash > Compute the Average" {
			t.Errorf("message = %q", m)
		}
	}
}

func TestArchive_UnchangedSkipsCommit(t *testing.T) {
	f := newFixture(t)
	f.repo.unchanged = true
	src := writeDownload(t, f.dl, "a.json", average)
	a := New(f.loader, f.repo, f.store, Options{})

	res, err := a.Archive(context.Background(), src, 0)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !res.Unchanged {
		t.Error("Unchanged = false")
	}
	if len(f.repo.messages) != 0 {
		t.Errorf("committed %q, want nothing", f.repo.messages)
	}
	archives, err := f.store.ListArchives(10, 0)
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(archives) != 0 {
		t.Errorf("ledger has %d entries, want 0", len(archives))
	}
}

func TestArchive_StrictRejectsIncomplete(t *testing.T) {
	f := newFixture(t)
	src := writeDownload(t, f.dl, "partial.json", solution.ScriptData{Filename: "x.sh"})

	_, err := New(f.loader, f.repo, f.store, Options{Strict: true}).Archive(context.Background(), src, 0)
	if !errors.Is(err, solution.ErrIncomplete) {
		t.Fatalf("error = %v, want ErrIncomplete", err)
	}
	if len(f.repo.messages) != 0 {
		t.Error("commit happened for rejected input")
	}
}

func TestArchive_NoFilename(t *testing.T) {
	f := newFixture(t)
	src := writeDownload(t, f.dl, "nofile.json", solution.ScriptData{Message: "m"})

	_, err := New(f.loader, f.repo, f.store, Options{}).Archive(context.Background(), src, 0)
	if !errors.Is(err, ErrNoFilename) {
		t.Fatalf("error = %v, want ErrNoFilename", err)
	}
}

func TestArchive_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	src := writeDownload(t, f.dl, "a.json", average)

	res, err := New(f.loader, f.repo, f.store, Options{DryRun: true}).Archive(context.Background(), src, 2)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !res.DryRun || res.Record.FullMessage != "Attempt 2: Linux Shell > Bash > Compute the Average" {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(f.root + "Linux_Shell"); !os.IsNotExist(err) {
		t.Errorf("dry run created directories: %v", err)
	}
	if len(f.repo.messages) != 0 {
		t.Error("dry run committed")
	}
}

func TestArchive_LoaderErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	a := New(f.loader, f.repo, f.store, Options{})

	_, err := a.Archive(context.Background(), filepath.Join(f.dl, "missing.json"), 0)
	if !errors.Is(err, solution.ErrNotFound) {
		t.Errorf("error = %v, want solution.ErrNotFound", err)
	}
}

func TestArchive_PushFailureStillRecorded(t *testing.T) {
	f := newFixture(t)
	f.repo.pushErr = errors.New("remote rejected")
	src := writeDownload(t, f.dl, "a.json", average)
	a := New(f.loader, f.repo, f.store, Options{Push: true, Remote: "origin"})

	res, err := a.Archive(context.Background(), src, 0)
	if err == nil {
		t.Fatal("expected push error")
	}
	if res.ArchiveID == "" {
		t.Fatal("archive not recorded after push failure")
	}
	if f.repo.pushes != 1 {
		t.Errorf("pushes = %d, want 1", f.repo.pushes)
	}
}

func TestArchiveAll_OrderAndAtomicLoad(t *testing.T) {
	f := newFixture(t)
	a := New(f.loader, f.repo, f.store, Options{Workers: 2})

	var paths []string
	for i := 0; i < 5; i++ {
		sd := average
		sd.Filename = fmt.Sprintf("prog-%d.sh", i)
		sd.Message = fmt.Sprintf("Bash > Prog %d", i)
		paths = append(paths, writeDownload(t, f.dl, fmt.Sprintf("%d.json", i), sd))
	}

	results, err := a.ArchiveAll(context.Background(), paths, 0)
	if err != nil {
		t.Fatalf("ArchiveAll: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	for i, m := range f.repo.messages {
		if want := fmt.Sprintf("Solution to Bash > Prog %d", i); m != want {
			t.Errorf("message[%d] = %q, want %q", i, m, want)
		}
	}

	bad := filepath.Join(f.dl, "bad.json")
	if err := os.WriteFile(bad, []byte("I am not a JSON file!"), 0o644); err != nil {
		t.Fatal(err)
	}
	before := len(f.repo.messages)
	_, err = a.ArchiveAll(context.Background(), []string{paths[0], bad}, 0)
	if !errors.Is(err, solution.ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
	if len(f.repo.messages) != before {
		t.Error("ArchiveAll committed despite a load failure")
	}
}
