package adapter

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/config"
	"github.com/objectfs/webvfs/internal/events"
	"github.com/objectfs/webvfs/internal/metrics"
	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/backup"
	"github.com/objectfs/webvfs/internal/storage/bolt"
	"github.com/objectfs/webvfs/internal/storage/memory"
	s3store "github.com/objectfs/webvfs/internal/storage/s3"
	"github.com/objectfs/webvfs/internal/vfs"
	"github.com/objectfs/webvfs/pkg/api"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/health"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Adapter assembles a filesystem engine from configuration and owns the
// lifecycle of everything it built.
type Adapter struct {
	config  *config.Configuration
	logger  *zap.Logger
	store   storage.Adapter
	backup  *backup.Store
	metrics *metrics.Collector
	bus     *events.Bus
	health  *health.Tracker
	fs      *vfs.FileSystem
	api     *api.Server

	mu      sync.Mutex
	started bool
}

// New creates a new adapter. A non-empty storageURI overrides the storage
// backend named in cfg.
func New(ctx context.Context, storageURI string, cfg *config.Configuration, logger *zap.Logger) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if storageURI != "" {
		if err := ApplyStorageURI(&cfg.Storage, storageURI); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = utils.OrNop(logger)

	fsConfig, err := FilesystemConfig(cfg.Filesystem)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Address:   cfg.Metrics.Address,
		Namespace: cfg.Metrics.Namespace,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		config:  cfg,
		logger:  logger.Named("adapter"),
		store:   store,
		metrics: collector,
		bus:     events.NewBus(logger),
		health:  health.NewTracker(cfg.Health, logger),
	}
	collector.SetHealthCheck(func() (string, bool) {
		state := a.health.GetOverallHealth()
		return state.String(), state != health.StateUnavailable
	})
	opts := []vfs.Option{vfs.WithEmitter(a.bus), vfs.WithMetrics(collector), vfs.WithHealth(a.health)}
	if cfg.Storage.Backup.Enabled {
		if a.backup, err = newBackup(cfg.Storage.Backup, logger); err != nil {
			return nil, err
		}
		opts = append(opts, vfs.WithBackup(a.backup))
	}
	a.fs = vfs.New(store, fsConfig, logger, opts...)
	if cfg.API.Enabled {
		a.api = api.NewServer(cfg.API, a.fs, a.health, logger)
	}
	return a, nil
}

// FileSystem returns the engine.
func (a *Adapter) FileSystem() *vfs.FileSystem { return a.fs }

// Events returns the bus the engine publishes to.
func (a *Adapter) Events() *events.Bus { return a.bus }

// Metrics returns the collector; it is disabled unless metrics are enabled
// in the configuration.
func (a *Adapter) Metrics() *metrics.Collector { return a.metrics }

// Health returns the tracker fed by storage and backup call outcomes.
func (a *Adapter) Health() *health.Tracker { return a.health }

// API returns the HTTP server, or nil when the API is disabled.
func (a *Adapter) API() *api.Server { return a.api }

// Start initializes the engine and serves metrics and the API when enabled.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.NewError(errors.ErrCodeInitFailed, "adapter already started")
	}

	a.logger.Info("starting",
		zap.String("backend", a.config.Storage.Backend),
		zap.Bool("resilience", a.config.Storage.Resilience),
		zap.Bool("backup", a.backup != nil),
		zap.Bool("metrics", a.metrics.Enabled()),
		zap.Bool("api", a.api != nil))

	if err := a.fs.Init(ctx); err != nil {
		return err
	}
	if err := a.metrics.Start(ctx); err != nil {
		_ = a.fs.Shutdown(ctx)
		return errors.NewError(errors.ErrCodeInitFailed, "failed to start metrics server").WithCause(err)
	}
	if a.api != nil {
		a.api.StartBackground()
	}
	a.started = true
	return nil
}

// Stop stops the API, flushes and shuts the engine down, then stops the
// metrics server.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return errors.NotInitialized()
	}
	a.started = false

	if a.api != nil {
		if aerr := a.api.Shutdown(ctx); aerr != nil {
			a.logger.Warn("API server shutdown failed", zap.Error(aerr))
		}
	}
	err := a.fs.Shutdown(ctx)
	if merr := a.metrics.Stop(ctx); merr != nil {
		a.logger.Warn("metrics server shutdown failed", zap.Error(merr))
	}
	a.logger.Info("stopped")
	return err
}

// FilesystemConfig converts the file configuration into engine settings.
func FilesystemConfig(c config.FilesystemConfig) (*vfs.Config, error) {
	maxFile, maxTotal, err := c.Limits()
	if err != nil {
		return nil, err
	}
	return &vfs.Config{
		MaxNodes:               c.MaxNodes,
		SyncInterval:           c.SyncInterval,
		MaxFileSize:            maxFile,
		MaxTotalSize:           maxTotal,
		DefaultFilePermissions: c.DefaultFilePermissions,
		DefaultDirPermissions:  c.DefaultDirPermissions,
		ReservedDirs:           append([]string(nil), c.ReservedDirs...),
		HomeDir:                c.HomeDir,
	}, nil
}

func newStore(ctx context.Context, c config.StorageConfig, logger *zap.Logger) (storage.Adapter, error) {
	var store storage.Adapter
	switch c.Backend {
	case config.BackendMemory:
		store = memory.New()
	case config.BackendBolt:
		store = bolt.New(c.Bolt, logger)
	case config.BackendS3:
		s3cfg := c.S3
		client, transporter, err := s3store.NewClient(ctx, &s3cfg)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeInitFailed, "failed to create S3 client").WithCause(err)
		}
		store = s3store.NewBackend(client, transporter, &s3cfg, logger)
	default:
		return nil, errors.Errorf(errors.ErrCodeInvalidConfig, "unsupported storage backend: %s", c.Backend)
	}
	if !c.Resilience {
		return store, nil
	}
	return storage.NewResilient(c.Backend, store, c.Retry, c.CircuitBreaker, logger), nil
}

func newBackup(c config.BackupConfig, logger *zap.Logger) (*backup.Store, error) {
	if c.Directory == "" {
		return backup.NewMemory(logger), nil
	}
	return backup.New(nil, backup.Config{Directory: c.Directory}, logger)
}

// ApplyStorageURI points the storage configuration at the backend named by
// uri: memory://, bolt://<path> or s3://<bucket>[/<prefix>].
func ApplyStorageURI(c *config.StorageConfig, uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, "failed to parse URI").WithCause(err)
	}

	switch parsed.Scheme {
	case config.BackendMemory:
		c.Backend = config.BackendMemory
	case config.BackendBolt:
		path := parsed.Host + parsed.Path
		if path == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig, "bolt URI must include a database path")
		}
		c.Backend = config.BackendBolt
		c.Bolt.Path = path
	case config.BackendS3:
		if parsed.Host == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig, "S3 URI must include bucket name")
		}
		c.Backend = config.BackendS3
		c.S3.Bucket = parsed.Host
		if prefix := strings.Trim(parsed.Path, "/"); prefix != "" {
			c.S3.Prefix = prefix + "/"
		}
	default:
		return errors.Errorf(errors.ErrCodeInvalidConfig,
			"unsupported storage scheme: %q (must be one of: memory, bolt, s3)", parsed.Scheme)
	}
	return nil
}
