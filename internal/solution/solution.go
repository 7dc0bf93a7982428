package solution

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the download file does not exist.
	ErrNotFound = errors.New("solution file not found")
	// ErrMalformed is returned when the download file is not valid JSON.
	ErrMalformed = errors.New("malformed solution JSON")
	// ErrIncomplete is returned by Validate when expected fields are missing.
	ErrIncomplete = errors.New("incomplete solution data")
)

// ScriptData is the downloaded description of one solution.
// Fields absent from the JSON document keep their zero value.
type ScriptData struct {
	ProgName  string   `json:"progName"`
	PathArray []string `json:"pathArray"`
	Message   string   `json:"message"`
	Filename  string   `json:"filename"`
	AllCode   string   `json:"allCode"`
}

// Record is ScriptData plus the commit message and target directory
// derived from it.
type Record struct {
	ScriptData
	FullMessage string `json:"fullMessage"`
	FullPath    string `json:"fullPath"`
}

// Derive computes the derived fields for sd. An attempt <= 0 means the
// solution is not a retry.
func Derive(sd ScriptData, repoRoot string, attempt int) Record {
	return Record{
		ScriptData:  sd,
		FullMessage: Message(sd.Message, attempt),
		FullPath:    RepoPath(repoRoot, sd.PathArray),
	}
}

// Message formats the commit message for a solution.
func Message(message string, attempt int) string {
	if attempt <= 0 {
		return "Solution to " + message
	}
	return fmt.Sprintf("Attempt %d: %s", attempt, message)
}

// RepoPath joins root and segments with "/" and always ends in exactly one
// trailing "/". Empty segments are skipped. The directory is not checked.
func RepoPath(root string, segments []string) string {
	var b strings.Builder
	if root != "" {
		b.WriteString(strings.TrimRight(root, "/"))
		b.WriteByte('/')
	}
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg == "" {
			continue
		}
		b.WriteString(seg)
		b.WriteByte('/')
	}
	return b.String()
}

// FilePath is the file the solution code is written to.
func (r Record) FilePath() string {
	return r.FullPath + r.Filename
}

// Category renders the path segments the way HackerRank labels them.
func (r Record) Category() string {
	return strings.Join(r.PathArray, " > ")
}

// Validate reports every expected field that is missing or empty.
// Load does not call it; callers that want strict input opt in.
func (r Record) Validate() error {
	var missing []string
	if r.ProgName == "" {
		missing = append(missing, "progName")
	}
	if len(r.PathArray) == 0 {
		missing = append(missing, "pathArray")
	}
	if r.Message == "" {
		missing = append(missing, "message")
	}
	if r.Filename == "" {
		missing = append(missing, "filename")
	}
	if r.AllCode == "" {
		missing = append(missing, "allCode")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}
