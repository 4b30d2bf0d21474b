package vfs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/cache"
	"github.com/objectfs/webvfs/internal/events"
	"github.com/objectfs/webvfs/internal/lock"
	"github.com/objectfs/webvfs/internal/metrics"
	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/backup"
	"github.com/objectfs/webvfs/internal/txn"
	"github.com/objectfs/webvfs/internal/writeback"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/health"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// Operation names used for metrics, stats and error annotation.
const (
	opReadFile     = "readFile"
	opWriteFile    = "writeFile"
	opAppendFile   = "appendFile"
	opTouchFile    = "touchFile"
	opMkdir        = "mkdir"
	opDelete       = "delete"
	opMove         = "move"
	opRename       = "rename"
	opCopy         = "copy"
	opReadDir      = "readDir"
	opStat         = "stat"
	opDirInfo      = "getDirectoryInfo"
	opCompletions  = "getPathCompletions"
	opResolve      = "resolveAndValidatePath"
	opInit         = "init"
	opShutdown     = "shutdown"
	defaultHomeDir = "/home/user"
)

// DefaultReservedDirs are created on first start.
var DefaultReservedDirs = []string{"/home", "/home/user", "/tmp", "/etc", "/var", "/usr", "/bin"}

// Config represents filesystem configuration
type Config struct {
	// Cache and write-back
	MaxNodes     int           `yaml:"max_nodes"`
	SyncInterval time.Duration `yaml:"sync_interval"`

	// Limits; zero disables the check
	MaxFileSize  int64 `yaml:"max_file_size"`
	MaxTotalSize int64 `yaml:"max_total_size"`

	// New node defaults
	DefaultFilePermissions string `yaml:"default_file_permissions"`
	DefaultDirPermissions  string `yaml:"default_dir_permissions"`

	// Layout
	ReservedDirs []string `yaml:"reserved_dirs"`
	HomeDir      string   `yaml:"home_dir"`
}

// DefaultConfig returns the configuration used when New is given nil.
func DefaultConfig() *Config {
	return &Config{
		MaxNodes:               10000,
		SyncInterval:           5 * time.Second,
		MaxFileSize:            10 << 20,
		MaxTotalSize:           100 << 20,
		DefaultFilePermissions: "rw-r--r--",
		DefaultDirPermissions:  "rwxr-xr-x",
		ReservedDirs:           append([]string(nil), DefaultReservedDirs...),
		HomeDir:                defaultHomeDir,
	}
}

// Option configures optional collaborators.
type Option func(*FileSystem)

// WithBackup sets the local store written when the primary store rejects
// the initial save.
func WithBackup(store *backup.Store) Option {
	return func(f *FileSystem) { f.backup = store }
}

// WithEmitter sets the receiver of change events.
func WithEmitter(emitter events.Emitter) Option {
	return func(f *FileSystem) {
		if emitter != nil {
			f.events = emitter
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(f *FileSystem) { f.metrics = collector }
}

// WithHealth reports storage and backup call outcomes to tracker.
func WithHealth(tracker *health.Tracker) Option {
	return func(f *FileSystem) { f.health = tracker }
}

type state int

const (
	stateNew state = iota
	stateReady
	stateClosed
)

// FileSystem is the engine exposed to callers. Every mutation validates its
// paths, takes the per-path locks, runs as a transaction and emits an event
// before the path locks are released.
type FileSystem struct {
	config  Config
	store   storage.Adapter
	backup  *backup.Store
	cache   *cache.NodeCache
	locks   *lock.Table
	sync    *writeback.Manager
	events  events.Emitter
	metrics *metrics.Collector
	health  *health.Tracker
	quota   *quota
	stats   statsTracker
	logger  *zap.Logger

	// lifeMu is held shared by every public operation and exclusively by
	// Init and Shutdown.
	lifeMu sync.RWMutex
	state  state

	// tree is held shared by single-node mutations and listings, and
	// exclusively by subtree mutations (delete, move, recursive copy).
	tree sync.RWMutex

	// faults, when set, runs before every transaction step and can fail it.
	faults func(kind txn.Kind, path string) error
}

// New wires a filesystem over store. It does nothing until Init.
func New(store storage.Adapter, config *Config, logger *zap.Logger, opts ...Option) *FileSystem {
	if config == nil {
		config = DefaultConfig()
	}
	logger = utils.OrNop(logger)

	f := &FileSystem{
		config: *config,
		store:  store,
		events: events.Nop{},
		quota:  newQuota(config.MaxTotalSize),
		locks:  lock.NewTable(logger),
		logger: logger.Named("vfs"),
	}
	if f.config.HomeDir == "" {
		f.config.HomeDir = defaultHomeDir
	}
	for _, opt := range opts {
		opt(f)
	}

	f.cache = cache.NewNodeCache(&cache.Config{MaxNodes: config.MaxNodes}, logger)
	f.cache.SetLoader(f.load)
	f.sync = writeback.NewManager(f.cache, store, f.backup,
		writeback.Config{SyncInterval: config.SyncInterval}, logger)
	return f
}

// Init loads every persisted node, creates the root and reserved
// directories when missing, and starts the periodic write-back. Calling it
// again on a ready filesystem is a no-op.
func (f *FileSystem) Init(ctx context.Context) error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	switch f.state {
	case stateReady:
		return nil
	case stateClosed:
		return errors.NewError(errors.ErrCodeInitFailed, "filesystem has been shut down").WithOperation(opInit)
	}

	start := time.Now()
	if f.health != nil {
		f.health.RegisterComponent(health.ComponentStorage)
		if f.backup != nil {
			f.health.RegisterComponent(health.ComponentBackup)
		}
	}
	if err := f.store.Init(ctx); err != nil {
		return initFailed("storage initialization failed", err)
	}
	loaded, err := f.sync.LoadFromStorage(ctx)
	if err != nil {
		return initFailed("loading persisted nodes failed", err)
	}
	f.quota.reset(loaded.Bytes)

	if err := f.bootstrap(ctx, loaded.Nodes == 0); err != nil {
		return err
	}

	f.sync.SetObserver(f.observeSync)
	if f.metrics.Enabled() {
		f.locks.SetWaitObserver(f.metrics.ObserveLockWait)
		if err := f.metrics.RegisterCache(f.cache.Stats); err != nil {
			f.logger.Warn("cache metrics not registered", zap.Error(err))
		}
		if err := f.metrics.RegisterUsage(f.quota.usage); err != nil {
			f.logger.Warn("quota metrics not registered", zap.Error(err))
		}
	}

	if err := f.sync.Start(); err != nil {
		return initFailed("starting write-back failed", err)
	}
	f.state = stateReady

	f.logger.Info("filesystem initialized",
		zap.Int("nodes", f.cache.Len()),
		zap.Int("restored", loaded.Restored),
		zap.String("used", utils.FormatBytes(loaded.Bytes)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// bootstrap creates the root and the reserved directories. On an empty
// store the new nodes are saved right away; a save the primary store
// rejects goes to the backup store instead.
func (f *FileSystem) bootstrap(ctx context.Context, emptyStore bool) error {
	now := time.Now()
	var created []*types.Node

	ensure := func(p string) error {
		if n, ok := f.cache.Get(p); ok {
			if !n.IsDir() {
				return errors.NewError(errors.ErrCodeInitFailed, "reserved path is not a directory").
					WithPath(p).WithOperation(opInit)
			}
			return nil
		}
		n := f.newDir(p, now)
		f.cache.Set(n)
		created = append(created, n)
		return nil
	}

	if err := ensure(vpath.Root); err != nil {
		return err
	}
	for _, raw := range f.config.ReservedDirs {
		p, err := vpath.Clean(raw)
		if err != nil {
			return initFailed("invalid reserved directory", err)
		}
		for _, a := range append(vpath.Ancestors(p), p) {
			if err := ensure(a); err != nil {
				return err
			}
		}
	}

	if len(created) > 0 {
		f.logger.Debug("bootstrapped directories", zap.Int("created", len(created)))
	}
	if emptyStore {
		f.initialSave(ctx, created)
	}
	return nil
}

func (f *FileSystem) initialSave(ctx context.Context, nodes []*types.Node) {
	for _, n := range nodes {
		rec := types.NodeToRecord(n)
		err := f.store.Put(ctx, rec)
		f.recordHealth(health.ComponentStorage, err)
		if err == nil {
			f.cache.ClearDirtyIf(n.Path, n.Modified)
			continue
		}
		f.logger.Warn("initial save failed, writing to backup", zap.String("path", n.Path), zap.Error(err))
		if f.backup == nil {
			continue
		}
		err = f.backup.Put(rec)
		f.recordHealth(health.ComponentBackup, err)
		if err != nil {
			f.logger.Error("backup save failed", zap.String("path", n.Path), zap.Error(err))
			continue
		}
		f.sync.NoteBackup(n.Path)
		f.stats.update(func(s *Stats) { s.BackupSaves++ })
	}
}

// Flush writes every dirty node to storage now.
func (f *FileSystem) Flush(ctx context.Context) (writeback.SyncResult, error) {
	end, err := f.begin()
	if err != nil {
		return writeback.SyncResult{}, err
	}
	defer end()
	return f.sync.ForceSync(ctx), nil
}

// Shutdown stops the periodic write-back, flushes, and closes the store.
// Operations issued afterwards fail with NOT_INITIALIZED.
func (f *FileSystem) Shutdown(ctx context.Context) error {
	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()

	switch f.state {
	case stateNew:
		return errors.NotInitialized().WithOperation(opShutdown)
	case stateClosed:
		return nil
	}
	f.state = stateClosed

	f.sync.Stop()
	result := f.sync.ForceSync(ctx)
	if result.Failed > 0 {
		f.logger.Error("nodes left unsynced at shutdown",
			zap.Int("failed", result.Failed),
			zap.Strings("dirty", f.cache.DirtyPaths()))
	}
	if err := f.store.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeFSError, opShutdown)
	}
	f.logger.Info("filesystem shut down", zap.Int("synced", result.Synced))
	return nil
}

// Usage reports quota consumption.
func (f *FileSystem) Usage() (types.Usage, error) {
	end, err := f.begin()
	if err != nil {
		return types.Usage{}, err
	}
	defer end()
	return f.quota.usage(), nil
}

// CacheStats returns node cache statistics.
func (f *FileSystem) CacheStats() types.CacheStats {
	return f.cache.Stats()
}

// Stats returns operation counters.
func (f *FileSystem) Stats() Stats {
	return f.stats.snapshot()
}

// HomeDir returns the directory "~" resolves to.
func (f *FileSystem) HomeDir() string {
	return f.config.HomeDir
}

// begin admits an operation. The returned function must be called when the
// operation is done.
func (f *FileSystem) begin() (func(), error) {
	f.lifeMu.RLock()
	if f.state != stateReady {
		f.lifeMu.RUnlock()
		return nil, errors.NotInitialized()
	}
	return f.lifeMu.RUnlock, nil
}

// finish annotates err with the operation and records it.
func (f *FileSystem) finish(op string, start time.Time, size int64, err error) error {
	if err != nil {
		err = annotate(err, op)
		f.logger.Debug("operation failed", zap.String("op", op), zap.Error(err))
	}
	f.metrics.RecordOperation(op, time.Since(start), size, err)
	f.stats.record(op, size, err)
	return err
}

// shared runs fn with the tree held shared, as single-node mutations do.
func (f *FileSystem) shared(fn func() error) error {
	f.tree.RLock()
	defer f.tree.RUnlock()
	return fn()
}

// exclusive runs fn with the tree held exclusively, as subtree mutations do.
func (f *FileSystem) exclusive(fn func() error) error {
	f.tree.Lock()
	defer f.tree.Unlock()
	return fn()
}

// emit publishes committed mutations. Callers still hold the path locks of
// the mutation, so events for one path are delivered in commit order; the
// tree lock is already released so handlers may read the filesystem.
func (f *FileSystem) emit(evts ...events.Event) {
	now := time.Now()
	for _, e := range evts {
		if e.Type == "" {
			continue
		}
		e.Time = now
		f.events.Emit(e)
	}
}

// load reloads an evicted node from storage for the cache.
func (f *FileSystem) load(path string) (*types.Node, error) {
	rec, err := f.store.Get(context.Background(), path)
	if errors.IsNotFound(err) {
		f.recordHealth(health.ComponentStorage, nil)
		return nil, nil
	}
	f.recordHealth(health.ComponentStorage, err)
	if err != nil {
		return nil, err
	}
	return types.RecordToNode(rec, time.Now()), nil
}

// observeSync feeds sweep outcomes to metrics and health. Sweeps that
// touched nothing say nothing about storage.
func (f *FileSystem) observeSync(result writeback.SyncResult) {
	if f.metrics.Enabled() {
		f.metrics.RecordSync(result)
	}
	if result.Skipped {
		return
	}
	switch {
	case result.Failed > 0 || result.FailedDeletes > 0:
		f.recordHealth(health.ComponentStorage, errors.Errorf(errors.ErrCodeStorageWrite,
			"sync sweep failed %d writes and %d deletes", result.Failed, result.FailedDeletes))
	case result.Synced > 0 || result.Deleted > 0:
		f.recordHealth(health.ComponentStorage, nil)
	}
}

func (f *FileSystem) recordHealth(component string, err error) {
	if f.health == nil {
		return
	}
	if err != nil {
		f.health.RecordError(component, err)
		return
	}
	f.health.RecordSuccess(component)
}

func (f *FileSystem) newDir(p string, now time.Time) *types.Node {
	return &types.Node{
		Path:        p,
		Name:        vpath.Base(p),
		Kind:        types.KindDirectory,
		ParentPath:  vpath.Dir(p),
		Created:     now,
		Modified:    now,
		Accessed:    now,
		Permissions: f.config.DefaultDirPermissions,
		Dirty:       true,
	}
}

func (f *FileSystem) newFile(p string, content []byte, now time.Time) *types.Node {
	return &types.Node{
		Path:        p,
		Name:        vpath.Base(p),
		Kind:        types.KindFile,
		ParentPath:  vpath.Dir(p),
		Content:     content,
		Created:     now,
		Modified:    now,
		Accessed:    now,
		Permissions: f.config.DefaultFilePermissions,
		Size:        int64(len(content)),
		Dirty:       true,
	}
}

// dirNode returns the directory at p, failing with NOT_FOUND or
// NOT_DIRECTORY.
func (f *FileSystem) dirNode(p string) (*types.Node, error) {
	n, ok := f.cache.Get(p)
	if !ok {
		return nil, errors.NotFound(p)
	}
	if !n.IsDir() {
		return nil, errors.NotDirectory(p)
	}
	return n, nil
}

func initFailed(msg string, cause error) error {
	return errors.NewError(errors.ErrCodeInitFailed, msg).WithOperation(opInit).WithCause(cause)
}

// annotate stamps the operation name on engine errors and wraps anything
// else as FS_ERROR.
func annotate(err error, op string) error {
	if vfsErr, ok := err.(*errors.VFSError); ok {
		if vfsErr.Operation == "" {
			vfsErr.Operation = op
		}
		return vfsErr
	}
	return errors.Wrap(err, errors.ErrCodeFSError, op)
}
