package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kalambet/hrcode/internal/archive"
	"github.com/kalambet/hrcode/internal/config"
	"github.com/kalambet/hrcode/internal/gitrepo"
	"github.com/kalambet/hrcode/internal/solution"
	"github.com/kalambet/hrcode/internal/storage"
)

// app holds the components shared by commands that touch the ledger.
type app struct {
	cfg    config.Config
	store  *storage.Store
	loader *solution.Loader
	repo   *gitrepo.Repo
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	initLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	return &app{
		cfg:    cfg,
		store:  store,
		loader: solution.NewLoader(cfg.Repo.Root),
		repo:   gitrepo.Open(cfg.Repo.Root),
	}, nil
}

// spoolDir holds uploads received over HTTP until their job finishes.
func (a *app) spoolDir() string {
	return filepath.Join(a.cfg.Storage.DataDir, "spool")
}

// requireRepo fails unless the configured root is a git working tree.
func (a *app) requireRepo(ctx context.Context) error {
	if !a.repo.IsRepo(ctx) {
		return fmt.Errorf("%s is not a git repository (set HACKERRANK_REPO or repo.root)", a.cfg.Repo.Root)
	}
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func (a *app) archiveOptions() archive.Options {
	return archive.Options{
		Strict:      a.cfg.Archive.Strict,
		AutoAttempt: a.cfg.Archive.AutoAttempt,
		Push:        a.cfg.Repo.Push,
		Remote:      a.cfg.Repo.Remote,
		Branch:      a.cfg.Repo.Branch,
		Workers:     a.cfg.Archive.Workers,
	}
}

func (a *app) archiver(opts archive.Options) *archive.Archiver {
	return archive.New(a.loader, a.repo, a.store, opts)
}
