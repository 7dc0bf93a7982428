package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const archiveColumns = `id, created_at, prog_name, category, filename, full_path, attempt, message, commit_sha, source_file`

func scanArchive(row rowScanner) (Archive, error) {
	var a Archive
	var createdAt string
	if err := row.Scan(&a.ID, &createdAt, &a.ProgName, &a.Category, &a.Filename, &a.FullPath,
		&a.Attempt, &a.Message, &a.CommitSHA, &a.SourceFile); err != nil {
		return Archive{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Archive{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	return a, nil
}

func (s *Store) SaveArchive(a Archive) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO archives (`+archiveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UTC().Format(time.RFC3339), a.ProgName, a.Category, a.Filename,
		a.FullPath, a.Attempt, a.Message, a.CommitSHA, a.SourceFile,
	)
	return err
}

func (s *Store) GetArchive(id string) (Archive, error) {
	a, err := scanArchive(s.db.QueryRow(`SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Archive{}, ErrNotFound
	}
	return a, err
}

// ListArchives returns archives newest first.
func (s *Store) ListArchives(limit, offset int) ([]Archive, error) {
	rows, err := s.db.Query(`
		SELECT `+archiveColumns+` FROM archives
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// CountArchives reports how many times the same target file was archived.
func (s *Store) CountArchives(fullPath, filename string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM archives WHERE full_path = ? AND filename = ?`,
		fullPath, filename).Scan(&n)
	return n, err
}
