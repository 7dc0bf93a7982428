package solution

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Loader reads download files and derives records against a fixed
// repository root.
type Loader struct {
	repoRoot string
}

// NewLoader creates a Loader that places solutions under repoRoot.
func NewLoader(repoRoot string) *Loader {
	return &Loader{repoRoot: repoRoot}
}

// RepoRoot returns the repository root the loader derives paths from.
func (l *Loader) RepoRoot() string {
	return l.repoRoot
}

// Load reads the download file at path and derives its record.
//
// A missing file yields an error matching both ErrNotFound and
// fs.ErrNotExist. Content that is not JSON yields ErrMalformed wrapping the
// decoder error. JSON with unknown or missing keys is accepted and the
// missing fields stay empty.
func (l *Loader) Load(path string, attempt int) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return Record{}, err
	}
	return l.Parse(data, attempt)
}

// Parse derives a record from raw download JSON.
func (l *Loader) Parse(data []byte, attempt int) (Record, error) {
	var sd ScriptData
	if err := json.Unmarshal(data, &sd); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Derive(sd, l.repoRoot, attempt), nil
}
