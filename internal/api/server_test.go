package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type mockStatus struct {
	detail map[string]map[string]any
}

func (m *mockStatus) Status() map[string]any {
	return map[string]any{
		"agent_id":   "agent-control",
		"started_at": "2026-01-01T00:00:00Z",
		"agents": []map[string]any{
			{
				"agent_id":    "infra-agent",
				"agent_type":  "newrelic/infra:0.1.0",
				"config_hash": "abc123",
			},
		},
	}
}

func (m *mockStatus) AgentStatus(id string) (map[string]any, bool) {
	entry, ok := m.detail[id]
	return entry, ok
}

type mockHealth struct{}

func (m *mockHealth) Results() map[string]any {
	return map[string]any{
		"web": map[string]any{
			"status":   "healthy",
			"failures": 0,
		},
	}
}

type mockMetrics struct{}

func (m *mockMetrics) MetricsText() string {
	return "# HELP agentcontrol_up Control plane up metric.\n# TYPE agentcontrol_up gauge\nagentcontrol_up 1\n"
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleHealthz(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatus{}, &mockHealth{}, &mockMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if _, ok := resp["time"]; !ok {
		t.Error("expected time field in response")
	}
}

func TestHandleStatus(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatus{}, &mockHealth{}, &mockMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	srv.handleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp["agent_id"] != "agent-control" {
		t.Errorf("expected agent_id agent-control, got %v", resp["agent_id"])
	}
	if _, ok := resp["agents"]; !ok {
		t.Error("expected agents list in status response")
	}

	// Should include health checks merged in.
	if _, ok := resp["health_checks"]; !ok {
		t.Error("expected health_checks in status response")
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatus{}, &mockHealth{}, &mockMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	checks, ok := resp["checks"].(map[string]any)
	if !ok {
		t.Fatal("expected checks object in response")
	}

	web, ok := checks["web"].(map[string]any)
	if !ok {
		t.Fatal("expected web in checks")
	}
	if web["status"] != "healthy" {
		t.Errorf("expected web healthy, got %v", web["status"])
	}
}

func TestHandleHealth_NilProvider(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatus{}, nil, &mockMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHandleStatus_ContentType(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatus{}, &mockHealth{}, &mockMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	srv.handleStatus(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
}

func TestHandleAgentDetail_Found(t *testing.T) {
	status := &mockStatus{detail: map[string]map[string]any{
		"infra-agent": {"agent_id": "infra-agent", "config_hash": "abc123"},
	}}
	srv := NewServer(":0", noopLogger(), status, &mockHealth{}, &mockMetrics{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/{id}", srv.handleAgentDetail)
	req := httptest.NewRequest(http.MethodGet, "/agents/infra-agent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["agent_id"] != "infra-agent" {
		t.Errorf("expected agent_id infra-agent, got %v", resp["agent_id"])
	}
}

func TestHandleAgentDetail_NotFound(t *testing.T) {
	status := &mockStatus{detail: map[string]map[string]any{}}
	srv := NewServer(":0", noopLogger(), status, &mockHealth{}, &mockMetrics{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/{id}", srv.handleAgentDetail)
	req := httptest.NewRequest(http.MethodGet, "/agents/unknown-agent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

type mockStatusWithoutDetail struct{}

func (m *mockStatusWithoutDetail) Status() map[string]any { return map[string]any{} }

func TestHandleAgentDetail_UnsupportedProvider(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatusWithoutDetail{}, &mockHealth{}, &mockMetrics{})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /agents/{id}", srv.handleAgentDetail)
	req := httptest.NewRequest(http.MethodGet, "/agents/infra-agent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a StatusProvider without detail support, got %d", w.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	srv := NewServer(":0", noopLogger(), &mockStatus{}, &mockHealth{}, &mockMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	srv.handleMetrics(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; version=0.0.4; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(w.Body.String(), "agentcontrol_up 1") {
		t.Fatalf("metrics body does not contain expected sample: %q", w.Body.String())
	}
}
