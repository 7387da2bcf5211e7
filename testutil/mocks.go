package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	// ListPath is where the mock serves the ranking list endpoint.
	ListPath = "/xlive/web-interface/v1/second/getListByArea"
	// RoomPrefix is the path prefix of mock room pages.
	RoomPrefix = "/live/"
)

// MockPlatformServer is a fake live platform serving ranking pages and room HTML.
type MockPlatformServer struct {
	*httptest.Server

	mu        sync.Mutex
	rankings  map[string][][]map[string]any
	overrides map[string]http.HandlerFunc
	rooms     map[string]http.HandlerFunc
	requests  []string
}

// NewMockPlatformServer starts a mock platform closed at test cleanup.
func NewMockPlatformServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := &MockPlatformServer{
		rankings:  make(map[string][][]map[string]any),
		overrides: make(map[string]http.HandlerFunc),
		rooms:     make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// ListURL is the ranking endpoint URL to configure the client with.
func (m *MockPlatformServer) ListURL() string { return m.URL + ListPath }

// RoomPageBase is the room page base URL to configure the client with.
func (m *MockPlatformServer) RoomPageBase() string { return m.URL + strings.TrimSuffix(RoomPrefix, "/") }

// Requests returns the request log as "path?query" (list) or "room:<id>" entries, in arrival order.
func (m *MockPlatformServer) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// MockRanking sets the pages of a ranking; pages[0] is page 1. Pages past the end return an empty list.
func (m *MockPlatformServer) MockRanking(sort string, pages [][]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rankings[sort] = pages
}

// MockListResponse replaces the response of a single ranking page with body encoded as JSON.
func (m *MockPlatformServer) MockListResponse(sort string, page int, body any) {
	m.MockListHandler(sort, page, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	})
}

// MockListHandler replaces the handler of a single ranking page.
func (m *MockPlatformServer) MockListHandler(sort string, page int, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[sort+"/"+strconv.Itoa(page)] = h
}

// MockRoomPage serves html for a room id.
func (m *MockPlatformServer) MockRoomPage(roomID, html string) {
	m.MockRoomHandler(roomID, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html)) //nolint:errcheck // test mock response
	})
}

// MockRoomHandler replaces the handler for a room id.
func (m *MockPlatformServer) MockRoomHandler(roomID string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[roomID] = h
}

func (m *MockPlatformServer) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == ListPath:
		m.record(r.URL.Path + "?" + r.URL.RawQuery)
		m.serveList(w, r)
	case strings.HasPrefix(r.URL.Path, RoomPrefix):
		id := strings.TrimPrefix(r.URL.Path, RoomPrefix)
		m.record("room:" + id)
		m.mu.Lock()
		h, ok := m.rooms[id]
		m.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *MockPlatformServer) serveList(w http.ResponseWriter, r *http.Request) {
	sort := r.URL.Query().Get("sort")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	m.mu.Lock()
	h, overridden := m.overrides[sort+"/"+strconv.Itoa(page)]
	pages := m.rankings[sort]
	m.mu.Unlock()
	if overridden {
		h(w, r)
		return
	}
	list := []map[string]any{}
	if page >= 1 && page <= len(pages) {
		list = pages[page-1]
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
		"code":    0,
		"message": "0",
		"data":    map[string]any{"list": list, "has_more": 1},
	})
}

func (m *MockPlatformServer) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, s)
}

// Room builds a ranking list entry the way the platform encodes it (numeric ids).
func Room(roomID, areaID int, areaName string, subAreaID int, subAreaName string) map[string]any {
	return map[string]any{
		"roomid":              roomID,
		"uid":                 roomID * 10,
		"title":               fmt.Sprintf("room %d", roomID),
		"area_v2_parent_id":   areaID,
		"area_v2_parent_name": areaName,
		"area_v2_id":          subAreaID,
		"area_v2_name":        subAreaName,
	}
}

// RoomHTML renders a minimal room page containing the given markers.
func RoomHTML(title string, markers ...string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>")
	b.WriteString(title)
	b.WriteString("</title></head><body><script>window.__PLAYER__={\"urls\":[")
	for i, mk := range markers {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\"https://cn-gotcha.example/live/stream%d%s\"", i, mk)
	}
	b.WriteString("]}</script></body></html>")
	return b.String()
}
