/*
Package metrics provides Prometheus metrics collection for webvfs.

# Overview

The Collector owns a private Prometheus registry and records facade
operations, write-back sweeps, lock contention, node cache statistics and
quota usage.

	┌─────────────┐
	│  Collector  │  ← Main metrics aggregator
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌──────────▼────────┐
	│  Prometheus  │         │  HTTP Endpoints   │
	│   Registry   │         │  /metrics         │
	│              │         │  /health          │
	│ - Counters   │         │  /debug/operations│
	│ - Histograms │         └───────────────────┘
	│ - Gauges     │
	└──────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Address:   ":9090",
		Namespace: "webvfs",
	}, logger)
	if err != nil {
		log.Fatal(err)
	}

	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

The filesystem wires itself in: operations through RecordOperation, sweeps
through the write-back observer, lock waits through the lock table observer,
and cache and quota gauges through RegisterCache and RegisterUsage, which are
read at scrape time.

# Exported Series

	webvfs_operations_total{operation,status}
	webvfs_operation_duration_seconds{operation}
	webvfs_operation_size_bytes{operation}
	webvfs_errors_total{operation,code}
	webvfs_sync_sweeps_total{outcome}
	webvfs_sync_nodes_total{result}
	webvfs_sync_duration_seconds
	webvfs_lock_wait_seconds
	webvfs_cache_entries, webvfs_cache_dirty_nodes, webvfs_cache_capacity
	webvfs_cache_hits_total, webvfs_cache_misses_total,
	webvfs_cache_evictions_total, webvfs_cache_reloads_total
	webvfs_quota_used_bytes, webvfs_quota_limit_bytes

A collector built with Enabled false accepts every call and records nothing,
so callers never need to guard their instrumentation.
*/
package metrics
