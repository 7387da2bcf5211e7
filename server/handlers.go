package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/flvwatch/crawl"
	"github.com/onnwee/flvwatch/db"
	"github.com/onnwee/flvwatch/store"
)

// RunLister reads mirrored runs. *db.Mirror implements it.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]db.RunRow, error)
}

// Deps are the collaborators the HTTP API serves from. Only StorePath is required.
type Deps struct {
	StorePath  string
	Job        *crawl.Job
	Runs       RunLister
	DB         *sql.DB
	AdminToken string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx   context.Context
	deps  Deps
	cache *storeCache
}

// NewHandlers loads the store into memory and starts watching it for replacement.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	c := newStoreCache(deps.StorePath)
	if err := c.watch(ctx); err != nil {
		slog.Warn("store watcher not started, data endpoints refresh only after admin runs", slog.Any("err", err))
	}
	return &Handlers{ctx: ctx, deps: deps, cache: c}
}

// HandleDataJSON serves the persisted store exactly as it is written to disk.
func (h *Handlers) HandleDataJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, _, etag := h.cache.snapshot()
	if raw == nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	if matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(raw)
	}
}

// HandleDataCSV serves one row per sub-area with its history and availability rate.
func (h *Handlers) HandleDataCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw, st, _ := h.cache.snapshot()
	if raw == nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="flv-availability.csv"`)
	if err := store.WriteCSV(w, st); err != nil {
		slog.Error("csv export failed", slog.Any("err", err))
	}
}

// HandleSubArea returns the history of one sub-area: /subareas/{id}.
func (h *Handlers) HandleSubArea(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/subareas/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	_, st, _ := h.cache.snapshot()
	rec, ok := st.Find(id)
	if !ok {
		http.Error(w, "sub-area not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleRuns lists runs recorded by the database mirror, newest first.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		http.Error(w, "run history requires DB_DSN", http.StatusNotFound)
		return
	}
	runs, err := h.deps.Runs.RecentRuns(r.Context(), parseIntQuery(r, "limit", 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleAdminRun triggers a crawl. By default the run starts in the background and
// the response is 202; with ?wait=1 the request blocks for the whole run, past the
// server's write timeout, and returns the run summary. A run already in progress yields 409.
func (h *Handlers) HandleAdminRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job := h.deps.Job
	if job == nil {
		http.Error(w, "crawler not configured", http.StatusServiceUnavailable)
		return
	}

	if r.URL.Query().Get("wait") == "1" {
		// A full crawl outlives the server's WriteTimeout; lift it for this response only.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			slog.Warn("could not clear write deadline for admin run", slog.Any("err", err))
		}
		sum, err := job.RunOnce(r.Context())
		switch {
		case errors.Is(err, crawl.ErrRunInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		case err != nil:
			writeJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "error": err.Error(), "class": crawl.ClassifyError(err).String()})
		default:
			h.cache.reload()
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "run": sum, "observations": len(sum.Observations)})
		}
		return
	}

	err := job.TryStart(h.ctx, func(_ crawl.RunSummary, err error) {
		if err != nil {
			slog.Error("admin-triggered run failed", slog.Any("err", err), slog.String("class", crawl.ClassifyError(err).String()))
			return
		}
		h.cache.reload()
	})
	if errors.Is(err, crawl.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
