package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSaveAndGetArchive(t *testing.T) {
	s := openTestStore(t)

	want := Archive{
		ID:         "arc-001",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		ProgName:   "Compute the Average",
		Category:   "Linux_Shell > Bash",
		Filename:   "bash-tutorials---compute-the-average.sh",
		FullPath:   "/repo/Linux_Shell/Bash/",
		Attempt:    2,
		Message:    "Attempt 2: Linux Shell > Bash > Compute the Average",
		CommitSHA:  "0123abcd",
		SourceFile: "/downloads/file03.json",
	}
	if err := s.SaveArchive(want); err != nil {
		t.Fatalf("SaveArchive: %v", err)
	}

	got, err := s.GetArchive("arc-001")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveArchive_DefaultsCreatedAt(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveArchive(Archive{ID: "arc-now"}); err != nil {
		t.Fatalf("SaveArchive: %v", err)
	}
	got, err := s.GetArchive("arc-now")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Errorf("CreatedAt = %v, want roughly now", got.CreatedAt)
	}
}

func TestGetArchiveNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetArchive("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListArchives_NewestFirstWithPaging(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		a := Archive{
			ID:        fmt.Sprintf("arc-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Filename:  fmt.Sprintf("f%d.sh", i),
		}
		if err := s.SaveArchive(a); err != nil {
			t.Fatalf("SaveArchive %d: %v", i, err)
		}
	}

	page, err := s.ListArchives(2, 0)
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("len = %d, want 2", len(page))
	}
	if page[0].ID != "arc-4" || page[1].ID != "arc-3" {
		t.Errorf("order = [%s %s], want [arc-4 arc-3]", page[0].ID, page[1].ID)
	}

	rest, err := s.ListArchives(10, 2)
	if err != nil {
		t.Fatalf("ListArchives offset: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("len = %d, want 3", len(rest))
	}
}

func TestCountArchives(t *testing.T) {
	s := openTestStore(t)

	for i, fp := range []string{"/repo/Bash/", "/repo/Bash/", "/repo/SQL/"} {
		a := Archive{ID: fmt.Sprintf("c-%d", i), FullPath: fp, Filename: "avg.sh"}
		if err := s.SaveArchive(a); err != nil {
			t.Fatalf("SaveArchive: %v", err)
		}
	}

	n, err := s.CountArchives("/repo/Bash/", "avg.sh")
	if err != nil {
		t.Fatalf("CountArchives: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	n, err = s.CountArchives("/repo/Bash/", "other.sh")
	if err != nil {
		t.Fatalf("CountArchives: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
