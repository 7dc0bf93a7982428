package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/hrcode/internal/solution"
	"github.com/kalambet/hrcode/internal/storage"
)

// ErrNoFilename is returned when a solution cannot be written because the
// download did not name a target file.
var ErrNoFilename = errors.New("solution has no filename")

// Committer is the subset of git operations the archiver needs.
type Committer interface {
	Add(ctx context.Context, paths ...string) error
	HasChanges(ctx context.Context, path string) (bool, error)
	Commit(ctx context.Context, message string, paths ...string) (string, error)
	Push(ctx context.Context, remote, branch string) error
}

// Ledger records archived solutions.
type Ledger interface {
	SaveArchive(a storage.Archive) error
	CountArchives(fullPath, filename string) (int, error)
}

type Options struct {
	// Strict rejects downloads with missing fields.
	Strict bool
	// AutoAttempt numbers repeat archives of the same file when no attempt
	// is given explicitly.
	AutoAttempt bool
	Push        bool
	Remote      string
	Branch      string
	// DryRun derives records without touching the repository.
	DryRun bool
	// Workers bounds concurrent loads in ArchiveAll. Defaults to 4.
	Workers int
}

// Result describes the outcome of archiving one download file.
type Result struct {
	Source    string          `json:"source"`
	Record    solution.Record `json:"record"`
	Attempt   int             `json:"attempt"`
	ArchiveID string          `json:"archive_id,omitempty"`
	CommitSHA string          `json:"commit_sha,omitempty"`
	Unchanged bool            `json:"unchanged,omitempty"`
	DryRun    bool            `json:"dry_run,omitempty"`
}

// Archiver writes solution code into the repository and commits it.
type Archiver struct {
	loader *solution.Loader
	repo   Committer
	ledger Ledger
	opts   Options
	logger *slog.Logger
}

func New(loader *solution.Loader, repo Committer, ledger Ledger, opts Options) *Archiver {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Archiver{
		loader: loader,
		repo:   repo,
		ledger: ledger,
		opts:   opts,
		logger: slog.Default(),
	}
}

// Archive loads the download file at path and archives it. An attempt of
// zero lets AutoAttempt pick the number.
func (a *Archiver) Archive(ctx context.Context, path string, attempt int) (Result, error) {
	rec, err := a.loader.Load(path, attempt)
	if err != nil {
		return Result{}, err
	}
	return a.store(ctx, path, rec, attempt)
}

// ArchiveAll loads every file concurrently and then archives them one by
// one in input order. Nothing is written if any file fails to load.
func (a *Archiver) ArchiveAll(ctx context.Context, paths []string, attempt int) ([]Result, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	records := make([]solution.Record, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rec, err := a.loader.Load(p, attempt)
			if err != nil {
				return fmt.Errorf("loading %s: %w", p, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(paths))
	for i, rec := range records {
		res, err := a.store(ctx, paths[i], rec, attempt)
		if err != nil {
			return results, fmt.Errorf("archiving %s: %w", paths[i], err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Archiver) store(ctx context.Context, source string, rec solution.Record, attempt int) (Result, error) {
	if a.opts.Strict {
		if err := rec.Validate(); err != nil {
			return Result{}, err
		}
	}

	if attempt <= 0 && a.opts.AutoAttempt && a.ledger != nil {
		n, err := a.ledger.CountArchives(rec.FullPath, rec.Filename)
		if err != nil {
			return Result{}, fmt.Errorf("counting earlier archives: %w", err)
		}
		if n > 0 {
			attempt = n
			rec.FullMessage = solution.Message(rec.Message, attempt)
		}
	}

	res := Result{Source: source, Record: rec, Attempt: max(attempt, 0)}
	if a.opts.DryRun {
		res.DryRun = true
		return res, nil
	}

	if rec.Filename == "" {
		return Result{}, fmt.Errorf("%w: %s", ErrNoFilename, source)
	}

	if err := os.MkdirAll(rec.FullPath, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating %s: %w", rec.FullPath, err)
	}
	target := rec.FilePath()
	if err := os.WriteFile(target, []byte(rec.AllCode), 0o644); err != nil {
		return Result{}, fmt.Errorf("writing %s: %w", target, err)
	}

	changed, err := a.repo.HasChanges(ctx, target)
	if err != nil {
		return Result{}, fmt.Errorf("checking %s: %w", target, err)
	}
	if !changed {
		a.logger.Info("solution unchanged, nothing to commit", "file", target)
		res.Unchanged = true
		return res, nil
	}

	if err := a.repo.Add(ctx, target); err != nil {
		return Result{}, err
	}
	sha, err := a.repo.Commit(ctx, rec.FullMessage, target)
	if err != nil {
		return Result{}, err
	}
	res.CommitSHA = sha

	if a.opts.Push {
		if err := a.repo.Push(ctx, a.opts.Remote, a.opts.Branch); err != nil {
			// The commit exists locally, so it is still recorded.
			pushErr := fmt.Errorf("pushing to %s: %w", a.opts.Remote, err)
			if saveErr := a.record(&res, source); saveErr != nil {
				return res, errors.Join(pushErr, saveErr)
			}
			return res, pushErr
		}
	}

	if err := a.record(&res, source); err != nil {
		return res, err
	}

	a.logger.Info("archived solution",
		"file", target,
		"attempt", res.Attempt,
		"commit", res.CommitSHA,
	)
	return res, nil
}

func (a *Archiver) record(res *Result, source string) error {
	if a.ledger == nil {
		return nil
	}
	id := uuid.New().String()
	err := a.ledger.SaveArchive(storage.Archive{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		ProgName:   res.Record.ProgName,
		Category:   res.Record.Category(),
		Filename:   res.Record.Filename,
		FullPath:   res.Record.FullPath,
		Attempt:    res.Attempt,
		Message:    res.Record.FullMessage,
		CommitSHA:  res.CommitSHA,
		SourceFile: source,
	})
	if err != nil {
		return fmt.Errorf("recording archive: %w", err)
	}
	res.ArchiveID = id
	return nil
}
