package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/objectfs/webvfs/internal/writeback"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "test"}, nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	return collector
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with valid config", func(t *testing.T) {
		config := &Config{Enabled: true, Namespace: "webvfs", Subsystem: "test"}
		collector, err := NewCollector(config, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v, want nil", err)
		}
		if collector.config != config {
			t.Error("collector.config does not match input config")
		}
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
		if config.Path != "/metrics" {
			t.Errorf("default path = %q, want /metrics", config.Path)
		}
	})

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil, nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "webvfs" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "webvfs")
		}
		if !collector.Enabled() {
			t.Error("default collector should be enabled")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		if collector.registry != nil {
			t.Error("disabled collector should not have registry")
		}
	})
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	t.Run("success and failure", func(t *testing.T) {
		collector := newTestCollector(t)

		collector.RecordOperation("read", 100*time.Millisecond, 1000, nil)
		collector.RecordOperation("read", 200*time.Millisecond, 2000, nil)
		collector.RecordOperation("read", 300*time.Millisecond, 0, errors.NotFound("/x"))

		op := collector.GetMetrics()["read"]
		if op.Count != 3 {
			t.Errorf("op.Count = %d, want 3", op.Count)
		}
		if op.TotalSize != 3000 {
			t.Errorf("op.TotalSize = %d, want 3000", op.TotalSize)
		}
		if op.Errors != 1 {
			t.Errorf("op.Errors = %d, want 1", op.Errors)
		}
		if op.AvgDuration != 200*time.Millisecond {
			t.Errorf("op.AvgDuration = %v, want 200ms", op.AvgDuration)
		}

		ok := testutil.ToFloat64(collector.operationCounter.With(prometheus.Labels{"operation": "read", "status": "success"}))
		if ok != 2 {
			t.Errorf("success counter = %v, want 2", ok)
		}
		notFound := testutil.ToFloat64(collector.errorCounter.With(prometheus.Labels{"operation": "read", "code": "NOT_FOUND"}))
		if notFound != 1 {
			t.Errorf("NOT_FOUND counter = %v, want 1", notFound)
		}
	})

	t.Run("disabled collector ignores operations", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false}, nil)
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}

		collector.RecordOperation("read", 100*time.Millisecond, 1024, nil)
		collector.RecordSync(writeback.SyncResult{Synced: 1})
		collector.ObserveLockWait("/x", time.Millisecond)

		if len(collector.GetMetrics()) != 0 {
			t.Error("disabled collector should not track operations")
		}
	})

	t.Run("reset clears summaries", func(t *testing.T) {
		collector := newTestCollector(t)
		collector.RecordOperation("write", time.Millisecond, 1, nil)
		collector.ResetMetrics()
		if len(collector.GetMetrics()) != 0 {
			t.Error("ResetMetrics() should clear operation summaries")
		}
	})
}

func TestRecordSync(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordSync(writeback.SyncResult{Synced: 3, Duration: time.Millisecond})
	collector.RecordSync(writeback.SyncResult{Synced: 1, Failed: 2})
	collector.RecordSync(writeback.SyncResult{Skipped: true})

	tests := []struct {
		vec    *prometheus.CounterVec
		labels prometheus.Labels
		want   float64
	}{
		{collector.syncSweeps, prometheus.Labels{"outcome": "complete"}, 1},
		{collector.syncSweeps, prometheus.Labels{"outcome": "partial"}, 1},
		{collector.syncSweeps, prometheus.Labels{"outcome": "skipped"}, 1},
		{collector.syncNodes, prometheus.Labels{"result": "synced"}, 4},
		{collector.syncNodes, prometheus.Labels{"result": "failed"}, 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.vec.With(tt.labels)); got != tt.want {
			t.Errorf("%v = %v, want %v", tt.labels, got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(collector.syncDuration); n != 1 {
		t.Errorf("sync duration histogram series = %d, want 1", n)
	}
}

func TestRegisterCacheAndUsage(t *testing.T) {
	collector := newTestCollector(t)

	stats := types.CacheStats{Entries: 7, Dirty: 2, Capacity: 100, Hits: 11}
	if err := collector.RegisterCache(func() types.CacheStats { return stats }); err != nil {
		t.Fatalf("RegisterCache() error = %v", err)
	}
	if err := collector.RegisterUsage(func() types.Usage { return types.Usage{Used: 42, Limit: 1000} }); err != nil {
		t.Fatalf("RegisterUsage() error = %v", err)
	}

	expected := `
# HELP test_cache_dirty_nodes Nodes waiting for write-back
# TYPE test_cache_dirty_nodes gauge
test_cache_dirty_nodes 2
# HELP test_quota_used_bytes File bytes stored
# TYPE test_quota_used_bytes gauge
test_quota_used_bytes 42
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"test_cache_dirty_nodes", "test_quota_used_bytes"); err != nil {
		t.Error(err)
	}

	if err := collector.RegisterCache(func() types.CacheStats { return stats }); err == nil {
		t.Error("registering the cache twice should fail")
	}
}

func TestHandler(t *testing.T) {
	collector := newTestCollector(t)
	collector.RecordOperation("mkdir", time.Millisecond, 0, nil)
	collector.ObserveLockWait("/a", 2*time.Millisecond)

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`test_operations_total{operation="mkdir",status="success"} 1`,
		"test_lock_wait_seconds_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHandler_Disabled(t *testing.T) {
	collector, _ := NewCollector(&Config{Enabled: false}, nil)
	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDebugOperationsHandler(t *testing.T) {
	collector := newTestCollector(t)
	collector.RecordOperation("read", time.Millisecond, 10, nil)

	rec := httptest.NewRecorder()
	collector.debugOperationsHandler(rec, httptest.NewRequest(http.MethodGet, "/debug/operations", nil))
	if !strings.Contains(rec.Body.String(), `"name":"read"`) {
		t.Errorf("debug output missing read operation: %s", rec.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	collector := newTestCollector(t)

	rec := httptest.NewRecorder()
	collector.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d without a health check", rec.Code, http.StatusOK)
	}

	collector.SetHealthCheck(func() (string, bool) { return "unavailable", false })
	rec = httptest.NewRecorder()
	collector.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"status":"unavailable"`) {
		t.Errorf("body = %s", body)
	}
}
