package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/petal-labs/footplan/bus"
)

const forwardScenarioJSON = `{
  "name": "forward",
  "parameters": {"heuristics_inflation_weight": 2.0, "goal_tolerance": {"xy": 0.15}},
  "start": {"pose": {"x": 0, "y": 0}},
  "goal": {"pose": {"x": 0.6, "y": 0}},
  "regions": [{"id": 0, "min": [-1, -1], "max": [2, 1]}],
  "timeout": "30s"
}`

func newTestScheduleStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schedules.sqlite")
	store, err := NewSQLiteStore(SQLiteStoreConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore(schedules): %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEventStore(t *testing.T) bus.EventStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.sqlite")
	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteEventStore(events): %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testServer creates a Server with defaults suitable for testing.
func testServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(ServerConfig{
		ScheduleStore: newTestScheduleStore(t),
		Bus:           bus.NewMemBus(bus.MemBusConfig{}),
		EventStore:    newTestEventStore(t),
		CORSOrigin:    "*",
		MaxBody:       1 << 20,
	})
}

func serve(t *testing.T, handler http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal response: %v body=%s", err, w.Body.String())
	}
	return v
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func boolPtr(b bool) *bool { return &b }
