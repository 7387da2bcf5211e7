package server

import (
	"net/http"
	"time"

	"github.com/onnwee/flvwatch/crawl"
)

// HandleHealthz is the liveness probe; the process is alive if it can answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz checks the store is readable and, when mirrored, the database answers.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"store", h.cache.lastError},
	}
	if h.deps.DB != nil {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"database", func() error { return h.deps.DB.PingContext(r.Context()) }})
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	LastUpdated    string        `json:"lastUpdated"`
	Records        int           `json:"records"`
	LatestFlv      int           `json:"latestFlvAvailable"`
	CacheLoadedAt  time.Time     `json:"cacheLoadedAt"`
	Crawl          *crawl.Status `json:"crawl,omitempty"`
	StoreReadError string        `json:"storeReadError,omitempty"`
}

// HandleStatus summarizes the store and the crawler.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_, st, _ := h.cache.snapshot()
	resp := statusResponse{LastUpdated: st.LastUpdated, Records: len(st.Records)}
	for _, rec := range st.Records {
		if n := len(rec.FlvAvailabilities); n > 0 && rec.FlvAvailabilities[n-1] == 1 {
			resp.LatestFlv++
		}
	}
	h.cache.mu.RLock()
	resp.CacheLoadedAt = h.cache.loadedAt
	h.cache.mu.RUnlock()
	if err := h.cache.lastError(); err != nil {
		resp.StoreReadError = err.Error()
	}
	if h.deps.Job != nil {
		s := h.deps.Job.Status()
		resp.Crawl = &s
	}
	writeJSON(w, http.StatusOK, resp)
}
