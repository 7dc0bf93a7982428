package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo runs git commands inside a working tree.
type Repo struct {
	dir string
}

// Open returns a Repo rooted at dir. A relative dir is resolved against
// the current working directory now, so later chdirs do not move the repo.
// The directory is not checked.
func Open(dir string) *Repo {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Repo{dir: dir}
}

// Dir returns the working tree directory.
func (r *Repo) Dir() string {
	return r.dir
}

// IsRepo reports whether dir is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.output(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// Init creates an empty repository in dir.
func (r *Repo) Init(ctx context.Context) error {
	_, err := r.output(ctx, "init", "--quiet")
	return err
}

func (r *Repo) Add(ctx context.Context, paths ...string) error {
	rel, err := r.pathspecs(paths)
	if err != nil {
		return err
	}
	_, err = r.output(ctx, append([]string{"add", "--"}, rel...)...)
	return err
}

// HasChanges reports whether path differs from HEAD, including untracked
// and staged changes.
func (r *Repo) HasChanges(ctx context.Context, path string) (bool, error) {
	rel, err := r.pathspecs([]string{path})
	if err != nil {
		return false, err
	}
	out, err := r.output(ctx, "status", "--porcelain", "--", rel[0])
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit records paths and returns the new commit hash. Other staged
// changes stay in the index. With no paths the whole index is committed.
func (r *Repo) Commit(ctx context.Context, message string, paths ...string) (string, error) {
	rel, err := r.pathspecs(paths)
	if err != nil {
		return "", err
	}
	args := []string{"commit", "--quiet", "-m", message}
	if len(rel) > 0 {
		args = append(append(args, "--only", "--"), rel...)
	}
	if _, err := r.output(ctx, args...); err != nil {
		return "", err
	}
	sha, err := r.output(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sha), nil
}

// Push pushes to remote. An empty branch pushes the current branch.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	args := []string{"push", "--quiet", remote}
	if branch != "" {
		args = append(args, branch)
	} else {
		args = append(args, "HEAD")
	}
	_, err := r.output(ctx, args...)
	return err
}

// pathspecs rewrites paths relative to the working tree, since git runs
// there. Relative inputs are taken from the process working directory.
func (r *Repo) pathspecs(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		rel, err := filepath.Rel(r.dir, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%s is outside repository %s", p, r.dir)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out, nil
}

func (r *Repo) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}
