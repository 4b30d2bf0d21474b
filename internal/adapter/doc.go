/*
Package adapter assembles a filesystem engine from a Configuration and owns
its lifecycle.

# Architecture Role

	┌─────────────────────────────────────────────┐
	│           CLI / embedding program           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                  │
	│  • backend selection (config or URI)        │
	│  • retry and circuit breaker wrapping       │
	│  • backup store, metrics, event bus         │
	└─────────────────────────────────────────────┘
	        │          │           │          │
	┌───────┴───┐ ┌────┴────┐ ┌────┴───┐ ┌────┴────┐
	│ vfs       │ │ storage │ │ backup │ │ metrics │
	│ (engine)  │ │ mem/bolt│ │ afero  │ │ prom    │
	│           │ │ /s3     │ │        │ │         │
	└───────────┘ └─────────┘ └────────┘ └─────────┘

# Storage URIs

A storage URI given to New overrides the configured backend:

	memory://                 in-process map, lost on exit
	bolt:///var/lib/vfs.db    single-file bbolt database
	s3://bucket/prefix        one object per node under prefix

When Storage.Resilience is set the backend is wrapped with retries and a
circuit breaker. Storage.Backup.Enabled adds the fallback store used when
the initial save fails; it lives on disk when a directory is configured and
in memory otherwise.

# Lifecycle

	cfg, err := config.Load("webvfs.yaml")
	if err != nil {
		return err
	}
	a, err := adapter.New(ctx, "", cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)

	fs := a.FileSystem()

Start initializes the engine, which loads or bootstraps the tree, and then
serves the metrics endpoint if enabled. Stop flushes dirty nodes, closes
storage and stops the metrics server. Start on a running adapter and Stop on
a stopped one both fail.
*/
package adapter
