package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/flvwatch/store"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 2, window: time.Minute})

	now := time.Now()
	if !rl.allow("1.1.1.1", now) || !rl.allow("1.1.1.1", now.Add(time.Second)) {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.1.1.1", now.Add(2*time.Second)) {
		t.Error("third request inside window should be limited")
	}
	if !rl.allow("2.2.2.2", now) {
		t.Error("other IPs have their own budget")
	}
	if !rl.allow("1.1.1.1", now.Add(2*time.Minute)) {
		t.Error("request after the window should pass")
	}

	rl.cleanup(now.Add(10 * time.Minute))
	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors after cleanup = %d, want 0", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 1, window: time.Minute})
	h := rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), rl)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/admin/run", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("request %d = %d, want %d", i, rr.Code, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP() = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP() with XFF = %q", got)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"https://app.example.com", "*.flv.example"}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"https://dash.flv.example", true},
		{"https://flv.example", true},
		{"https://flv.example.evil", false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestCORSRestricted(t *testing.T) {
	h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		&corsConfig{allowedOrigins: []string{"https://ok.example"}})

	req := httptest.NewRequest(http.MethodGet, "/data.json", nil)
	req.Header.Set("Origin", "https://ok.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://ok.example" {
		t.Errorf("allowed origin not echoed: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req.Header.Set("Origin", "https://nope.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin received CORS header")
	}
}

func TestStoreCacheReloadKeepsLastGoodCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := store.Save(path, sampleStore()); err != nil {
		t.Fatal(err)
	}
	c := newStoreCache(path)
	_, st, etag := c.snapshot()
	if len(st.Records) != 2 || etag == "" {
		t.Fatalf("initial snapshot records=%d etag=%q", len(st.Records), etag)
	}

	if err := os.WriteFile(path, []byte("{corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	c.reload()
	if c.lastError() == nil {
		t.Error("reload of corrupt file should record an error")
	}
	if _, st, _ := c.snapshot(); len(st.Records) != 2 {
		t.Error("corrupt reload replaced the last good copy")
	}

	next := sampleStore()
	next.Records = next.Records[:1]
	if err := store.Save(path, next); err != nil {
		t.Fatal(err)
	}
	c.reload()
	_, st, etag2 := c.snapshot()
	if c.lastError() != nil || len(st.Records) != 1 || etag2 == etag {
		t.Errorf("after good reload: err=%v records=%d etag changed=%v", c.lastError(), len(st.Records), etag2 != etag)
	}
}
