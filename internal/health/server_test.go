package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	agenterrors "github.com/costscope/costscope-agent/internal/errors"
	"github.com/costscope/costscope-agent/internal/observability"
	"github.com/costscope/costscope-agent/internal/publisher"
	"github.com/costscope/costscope-agent/pkg/model"
)

// --- Mock implementations ---

type mockReadiness struct {
	ready bool
}

func (m *mockReadiness) IsReady() bool { return m.ready }

type mockCacheStats struct {
	entries int
}

func (m *mockCacheStats) Len() int { return m.entries }

// --- Helper to build a test server's mux ---

func newTestServer(ready bool, errs *agenterrors.ErrorCollector, cacheEntries int) *Server {
	metrics := observability.NewMetrics()
	if errs == nil {
		errs = agenterrors.NewErrorCollector(agenterrors.RealClock{})
	}
	r := &mockReadiness{ready: ready}
	c := &mockCacheStats{entries: cacheEntries}
	return NewServer(0, metrics, r, errs, c, true) // enableDebug=true for tests that check debug endpoints
}

// --- Tests ---

func TestHealthz(t *testing.T) {
	srv := newTestServer(true, nil, 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result["status"] != "ok" {
		t.Fatalf("expected status=ok, got %s", result["status"])
	}
}

func TestReadyzReady(t *testing.T) {
	srv := newTestServer(true, nil, 0)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]bool
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !result["ready"] {
		t.Fatal("expected ready=true")
	}
}

func TestReadyzNotReady(t *testing.T) {
	srv := newTestServer(false, nil, 0)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]bool
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result["ready"] {
		t.Fatal("expected ready=false")
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(true, nil, 0)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "costscope_agent_") {
		t.Fatal("expected Prometheus metrics containing costscope_agent_ prefix")
	}
}

func TestMetricsServesCostGauges(t *testing.T) {
	metrics := observability.NewMetrics()
	pub := publisher.NewPublisher(metrics.Registry)
	pub.PublishPods([]model.PodResourceRecord{
		{ClusterName: "prod", Namespace: "costapp", DeploymentName: "web", PodName: "web-abc12", UsageCost: 0.0125},
	})

	errs := agenterrors.NewErrorCollector(agenterrors.RealClock{})
	srv := NewServer(0, metrics, &mockReadiness{ready: true}, errs, &mockCacheStats{}, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	text := string(body)
	if !strings.Contains(text, "pod_usage_cost") {
		t.Fatal("expected pod_usage_cost in exposition output")
	}
	if !strings.Contains(text, `pod_name="web-abc12"`) {
		t.Fatal("expected pod_name label in exposition output")
	}
}

func TestDebugErrors(t *testing.T) {
	errs := agenterrors.NewErrorCollector(agenterrors.RealClock{})
	errs.Report(agenterrors.AgentError{
		Code:      agenterrors.ErrPricingUnreachable,
		Message:   "pricing service timeout",
		Component: "pricing",
		Timestamp: time.Now().UnixMilli(),
	})

	srv := newTestServer(true, errs, 0)
	req := httptest.NewRequest(http.MethodGet, "/debug/errors", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result struct {
		Count  int                      `json:"count"`
		Errors []map[string]interface{} `json:"errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected count=1, got %d", result.Count)
	}
}

func TestDebugPriceCache(t *testing.T) {
	srv := newTestServer(true, nil, 7)
	req := httptest.NewRequest(http.MethodGet, "/debug/pricecache", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]int
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result["entries"] != 7 {
		t.Fatalf("expected entries=7, got %d", result["entries"])
	}
}

func TestDebugEndpointsDisabled(t *testing.T) {
	metrics := observability.NewMetrics()
	errs := agenterrors.NewErrorCollector(agenterrors.RealClock{})
	srv := NewServer(0, metrics, &mockReadiness{ready: true}, errs, &mockCacheStats{}, false)

	// /debug/errors should 404 when debug is disabled
	req := httptest.NewRequest(http.MethodGet, "/debug/errors", nil)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for /debug/errors when debug disabled, got %d", w.Result().StatusCode)
	}

	// /debug/pricecache should 404 when debug is disabled
	req = httptest.NewRequest(http.MethodGet, "/debug/pricecache", nil)
	w = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for /debug/pricecache when debug disabled, got %d", w.Result().StatusCode)
	}

	// /healthz should still work
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /healthz, got %d", w.Result().StatusCode)
	}
}

func TestServerStartStop(t *testing.T) {
	metrics := observability.NewMetrics()
	errs := agenterrors.NewErrorCollector(agenterrors.RealClock{})
	srv := NewServer(0, metrics, &mockReadiness{ready: true}, errs, &mockCacheStats{}, false)

	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	// Give server a moment to start
	time.Sleep(50 * time.Millisecond)

	// Verify server is responding
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("failed to reach server: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}
}
