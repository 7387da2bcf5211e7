package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHealthURL(t *testing.T) {
	tests := map[string]string{
		"":              "http://localhost:8080/healthz",
		":9000":         "http://localhost:9000/healthz",
		"0.0.0.0:8081":  "http://localhost:8081/healthz",
		"127.0.0.1:777": "http://127.0.0.1:777/healthz",
	}
	for addr, want := range tests {
		if got := healthURL(addr); got != want {
			t.Errorf("healthURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestCheck(t *testing.T) {
	var code atomic.Int32
	code.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(code.Load()))
	}))
	defer srv.Close()

	if err := check(context.Background(), srv.URL); err != nil {
		t.Errorf("check() healthy = %v", err)
	}
	code.Store(http.StatusServiceUnavailable)
	if err := check(context.Background(), srv.URL); err == nil {
		t.Error("check() unhealthy = nil, want error")
	}
}
