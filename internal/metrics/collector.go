package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/writeback"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Collector records engine metrics into a private Prometheus registry.
// A disabled collector accepts every call and records nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	syncSweeps        *prometheus.CounterVec
	syncNodes         *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	lockWait          prometheus.Histogram

	operations map[string]*OperationMetrics
	lastReset  time.Time

	server      *http.Server
	healthCheck func() (status string, healthy bool)
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *zap.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Address:   ":9090",
			Path:      "/metrics",
			Namespace: "webvfs",
		}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	c := &Collector{
		config: config,
		logger: utils.OrNop(logger).Named("metrics"),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()

	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInitFailed, "failed to register metrics").WithCause(err)
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// Registry returns the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves the metrics endpoint on the configured address.
func (c *Collector) Start(ctx context.Context) error {
	if !c.Enabled() || c.config.Address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)

	c.server = &http.Server{
		Addr:              c.config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	c.logger.Info("metrics server listening", zap.String("address", c.config.Address))
	return nil
}

// SetHealthCheck sets the function behind the /health endpoint. An
// unhealthy result is served with status 503.
func (c *Collector) SetHealthCheck(check func() (status string, healthy bool)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthCheck = check
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one facade operation. A nil err counts as success.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, err error) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	m, ok := c.operations[operation]
	if !ok {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	m.TotalSize += size
	if err != nil {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
		c.errorCounter.With(prometheus.Labels{
			"operation": operation,
			"code":      string(errors.CodeOf(err)),
		}).Inc()
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.With(prometheus.Labels{"operation": operation}).Observe(float64(size))
	}
}

// RecordSync records a write-back sweep.
func (c *Collector) RecordSync(result writeback.SyncResult) {
	if !c.Enabled() {
		return
	}

	outcome := "complete"
	switch {
	case result.Skipped:
		outcome = "skipped"
	case result.Failed > 0 || result.FailedDeletes > 0:
		outcome = "partial"
	}
	c.syncSweeps.With(prometheus.Labels{"outcome": outcome}).Inc()
	if result.Skipped {
		return
	}

	c.syncNodes.With(prometheus.Labels{"result": "synced"}).Add(float64(result.Synced))
	c.syncNodes.With(prometheus.Labels{"result": "failed"}).Add(float64(result.Failed))
	c.syncNodes.With(prometheus.Labels{"result": "deleted"}).Add(float64(result.Deleted))
	c.syncNodes.With(prometheus.Labels{"result": "delete_failed"}).Add(float64(result.FailedDeletes))
	c.syncDuration.Observe(result.Duration.Seconds())
}

// ObserveLockWait records how long an acquisition queued behind earlier
// holders of the same path.
func (c *Collector) ObserveLockWait(_ string, waited time.Duration) {
	if !c.Enabled() {
		return
	}
	c.lockWait.Observe(waited.Seconds())
}

// RegisterCache exposes node cache statistics, read at scrape time.
func (c *Collector) RegisterCache(stats func() types.CacheStats) error {
	if !c.Enabled() {
		return nil
	}
	gauge := func(name, help string, value func(types.CacheStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(c.opts(name, help), func() float64 { return value(stats()) })
	}
	counter := func(name, help string, value func(types.CacheStats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts(c.opts(name, help)), func() float64 { return value(stats()) })
	}
	return c.register(
		gauge("cache_entries", "Resident nodes in the node cache",
			func(s types.CacheStats) float64 { return float64(s.Entries) }),
		gauge("cache_dirty_nodes", "Nodes waiting for write-back",
			func(s types.CacheStats) float64 { return float64(s.Dirty) }),
		gauge("cache_capacity", "Configured node cache capacity",
			func(s types.CacheStats) float64 { return float64(s.Capacity) }),
		counter("cache_hits_total", "Node cache hits",
			func(s types.CacheStats) float64 { return float64(s.Hits) }),
		counter("cache_misses_total", "Node cache misses",
			func(s types.CacheStats) float64 { return float64(s.Misses) }),
		counter("cache_evictions_total", "Nodes evicted from the cache",
			func(s types.CacheStats) float64 { return float64(s.Evictions) }),
		counter("cache_reloads_total", "Evicted nodes reloaded from storage",
			func(s types.CacheStats) float64 { return float64(s.Reloads) }),
	)
}

// RegisterUsage exposes quota consumption, read at scrape time.
func (c *Collector) RegisterUsage(usage func() types.Usage) error {
	if !c.Enabled() {
		return nil
	}
	return c.register(
		prometheus.NewGaugeFunc(c.opts("quota_used_bytes", "File bytes stored"),
			func() float64 { return float64(usage().Used) }),
		prometheus.NewGaugeFunc(c.opts("quota_limit_bytes", "Configured total size limit"),
			func() float64 { return float64(usage().Limit) }),
	)
}

// GetMetrics returns a copy of the per-operation summaries.
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		out[k] = *v
	}
	return out
}

// ResetMetrics resets the per-operation summaries. Prometheus series are
// cumulative and are not touched.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) opts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      name,
		Help:      help,
	}
}

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of filesystem operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of filesystem operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operation_size_bytes",
			Help:      "Bytes read or written per operation",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 12), // 64B to ~268MB
		},
		[]string{"operation"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "errors_total",
			Help:      "Failed operations by error code",
		},
		[]string{"operation", "code"},
	)

	c.syncSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "sync_sweeps_total",
			Help:      "Write-back sweeps by outcome",
		},
		[]string{"outcome"},
	)

	c.syncNodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "sync_nodes_total",
			Help:      "Nodes handled by write-back sweeps",
		},
		[]string{"result"},
	)

	c.syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      "sync_duration_seconds",
		Help:      "Duration of write-back sweeps",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	})

	c.lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: c.config.Namespace,
		Subsystem: c.config.Subsystem,
		Name:      "lock_wait_seconds",
		Help:      "Time spent queued for a path lock",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
}

func (c *Collector) registerMetrics() error {
	return c.register(
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.errorCounter,
		c.syncSweeps,
		c.syncNodes,
		c.syncDuration,
		c.lockWait,
	)
}

func (c *Collector) register(metrics ...prometheus.Collector) error {
	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	check := c.healthCheck
	c.mu.RUnlock()

	status, healthy := "healthy", true
	if check != nil {
		status, healthy = check()
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "service": "webvfs"})
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	ops := c.GetMetrics()
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	type row struct {
		Name string `json:"name"`
		OperationMetrics
	}
	rows := make([]row, 0, len(names))
	for _, name := range names {
		rows = append(rows, row{Name: name, OperationMetrics: ops[name]})
	}

	c.mu.RLock()
	uptime := time.Since(c.lastReset)
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"uptime":     uptime.String(),
		"operations": rows,
	})
}
