package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

const archivePrefix = "archive/opportunities/"

// ArchiveHandler browses and triggers the cold-storage archive.
type ArchiveHandler struct {
	reader    domain.BlobReader
	archiver  domain.Archiver
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. Closed opportunities older
// than retention are archived by Run.
func NewArchiveHandler(reader domain.BlobReader, archiver domain.Archiver, retention time.Duration, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader:    reader,
		archiver:  archiver,
		retention: retention,
		logger:    logger.With(slog.String("handler", "archive")),
	}
}

// List returns archive objects under an optional day prefix.
// GET /api/archive?day=2026-03-01
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := archivePrefix
	if day := r.URL.Query().Get("day"); day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		prefix += day + "/"
	}
	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archive", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list archive")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": infos})
}

// Object streams one archive file as JSONL.
// GET /api/archive/object?path=archive/opportunities/...
func (h *ArchiveHandler) Object(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, archivePrefix) || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "path must be under "+archivePrefix)
		return
	}
	body, err := h.reader.Get(r.Context(), path)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get archive object", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// Run archives now instead of waiting for the next scheduled pass.
// POST /api/archive/run
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC().Add(-h.retention)
	n, err := h.archiver.ArchiveOpportunities(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive run", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "archive failed", "archived": n})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": n, "before": before.Format(time.RFC3339)})
}
