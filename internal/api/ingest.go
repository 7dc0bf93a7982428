package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/hrcode/internal/ingest"
	"github.com/kalambet/hrcode/internal/solution"
	"github.com/kalambet/hrcode/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB

type AppDeps struct {
	Store  *storage.Store
	Loader *solution.Loader
	// SpoolDir receives uploaded download files before they are queued.
	SpoolDir string
	Token    string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/preview", handlePreview(deps))
		r.Post("/solutions", handleSubmitSolution(deps))
		r.Get("/archives", handleListArchives(deps))
		r.Get("/archives/{id}", handleGetArchive(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// readSolution reads the request body and derives its record.
// It writes the error response itself and reports false on failure.
func readSolution(w http.ResponseWriter, r *http.Request, deps AppDeps) ([]byte, solution.Record, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
		return nil, solution.Record{}, false
	}

	attempt := parseIntParam(r, "attempt", 0, 0)
	rec, err := deps.Loader.Parse(body, attempt)
	if errors.Is(err, solution.ErrMalformed) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return nil, solution.Record{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return nil, solution.Record{}, false
	}
	return body, rec, true
}

func handlePreview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, rec, ok := readSolution(w, r, deps)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

func handleSubmitSolution(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _, ok := readSolution(w, r, deps)
		if !ok {
			return
		}

		if err := os.MkdirAll(deps.SpoolDir, 0o700); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create spool dir: %v", err)
			return
		}
		path := filepath.Join(deps.SpoolDir, uuid.New().String()+".json")
		if err := os.WriteFile(path, body, 0o600); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to spool solution: %v", err)
			return
		}

		jobID, err := ingest.Enqueue(deps.Store, path, parseIntParam(r, "attempt", 0, 0))
		if err != nil {
			os.Remove(path)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     jobID,
			"status": "queued",
		})
	}
}

func handleListArchives(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		archives, err := deps.Store.ListArchives(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list archives: %v", err)
			return
		}

		if archives == nil {
			archives = []storage.Archive{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(archives)
	}
}

func handleGetArchive(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		a, err := deps.Store.GetArchive(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "archive not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get archive: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
