// Package writeback reconciles the node cache with durable storage: it loads
// every persisted record at startup and periodically writes dirty nodes back.
package writeback

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/cache"
	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/backup"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// Config represents write-back configuration
type Config struct {
	// SyncInterval between automatic sweeps; zero disables the timer.
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// SyncResult summarizes one sweep.
type SyncResult struct {
	Synced         int           `json:"synced"`
	Failed         int           `json:"failed"`
	Deleted        int           `json:"deleted"`
	FailedDeletes  int           `json:"failed_deletes"`
	BackupsCleared int           `json:"backups_cleared"`
	Skipped        bool          `json:"skipped"`
	Duration       time.Duration `json:"duration"`
}

// LoadResult summarizes LoadFromStorage.
type LoadResult struct {
	Nodes    int   `json:"nodes"`
	Bytes    int64 `json:"bytes"`
	Restored int   `json:"restored"`
}

// Manager owns the dirty-set sweep. Sweeps never overlap: a timer tick
// that finds one running is skipped, ForceSync waits for it.
type Manager struct {
	cache  *cache.NodeCache
	store  storage.Adapter
	backup *backup.Store
	config Config
	logger *zap.Logger

	sweepMu sync.Mutex

	mu             sync.Mutex
	pendingDeletes map[string]struct{}
	backedUp       map[string]struct{}
	observer       func(SyncResult)
	started        bool
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewManager creates a manager. backupStore may be nil.
func NewManager(nodes *cache.NodeCache, store storage.Adapter, backupStore *backup.Store, config Config, logger *zap.Logger) *Manager {
	return &Manager{
		cache:          nodes,
		store:          store,
		backup:         backupStore,
		config:         config,
		logger:         utils.OrNop(logger).Named("writeback"),
		pendingDeletes: make(map[string]struct{}),
		backedUp:       make(map[string]struct{}),
	}
}

// SetObserver registers a function called after every completed sweep.
func (m *Manager) SetObserver(fn func(SyncResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// LoadFromStorage replaces the cache contents with every persisted record.
// Backup records that are newer than the primary copy, or missing from it,
// are merged in as dirty nodes so the next sweep writes them through.
// Records whose parent directory is missing are not loaded; orphaned
// primary records are queued for deletion.
func (m *Manager) LoadFromStorage(ctx context.Context) (LoadResult, error) {
	var result LoadResult

	records, err := m.store.GetAll(ctx)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeStorageRead, "load")
	}

	merged := make(map[string]*types.Node, len(records))
	now := time.Now()
	for _, rec := range records {
		merged[rec.Path] = types.RecordToNode(rec, now)
	}

	restored := m.mergeBackups(merged, now)
	paths, orphans := m.pruneOrphans(merged)
	restored -= orphans

	m.cache.Clear()
	for _, p := range paths {
		n := merged[p]
		m.cache.Set(n)
		result.Nodes++
		if !n.IsDir() {
			result.Bytes += n.Size
		}
	}
	result.Restored = restored

	m.logger.Info("loaded nodes from storage",
		zap.Int("nodes", result.Nodes),
		zap.Int("restored", restored),
		zap.String("bytes", utils.FormatBytes(result.Bytes)))
	return result, nil
}

func (m *Manager) mergeBackups(merged map[string]*types.Node, now time.Time) int {
	if m.backup == nil {
		return 0
	}
	records, err := m.backup.All()
	if err != nil {
		m.logger.Warn("backup store unreadable, skipping restore", zap.Error(err))
		return 0
	}

	restored := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	// records are sorted by path, so parents are merged before children
	for _, rec := range records {
		if current, ok := merged[rec.Path]; ok && current.Modified.UnixMilli() >= rec.Modified {
			if err := m.backup.Delete(rec.Path); err != nil {
				m.logger.Warn("failed to drop stale backup", zap.String("path", rec.Path), zap.Error(err))
			}
			continue
		}
		if !hasParentDir(merged, rec.Path, rec.ParentPath) {
			m.logger.Warn("backup record has no parent directory, skipping",
				zap.String("path", rec.Path), zap.String("parent", rec.ParentPath))
			continue
		}
		n := types.RecordToNode(rec, now)
		n.Dirty = true
		merged[rec.Path] = n
		m.backedUp[rec.Path] = struct{}{}
		restored++
	}
	return restored
}

// pruneOrphans removes nodes whose parent directory did not survive the
// merge and returns the remaining paths, sorted. Orphaned primary records
// are queued for deletion so they cannot reappear under a directory later
// created with the same name. The second result counts dropped nodes that
// came from the backup store.
func (m *Manager) pruneOrphans(merged map[string]*types.Node) ([]string, int) {
	all := make([]string, 0, len(merged))
	for p := range merged {
		all = append(all, p)
	}
	// a parent sorts before its children, so its fate is already decided
	sort.Strings(all)

	paths := all[:0]
	var orphaned []string
	fromBackup := 0
	for _, p := range all {
		n := merged[p]
		if hasParentDir(merged, p, n.ParentPath) {
			paths = append(paths, p)
			continue
		}
		delete(merged, p)
		if n.Dirty {
			fromBackup++
			m.dropBackup(p)
		}
		orphaned = append(orphaned, p)
		m.logger.Warn("record has no parent directory, dropping",
			zap.String("path", p), zap.String("parent", n.ParentPath))
	}
	if len(orphaned) > 0 {
		// a restored backup may shadow a primary record at the same path
		m.queueDeletes(orphaned...)
	}
	return paths, fromBackup
}

// hasParentDir reports whether path's parent is a directory in merged. The
// root has no parent and its children always have one: Init recreates it.
func hasParentDir(merged map[string]*types.Node, path, parent string) bool {
	if path == vpath.Root || parent == vpath.Root {
		return true
	}
	n, ok := merged[parent]
	return ok && n.IsDir()
}

// NoteBackup records that path has a copy in the backup store, to be removed
// once the node reaches primary storage.
func (m *Manager) NoteBackup(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backedUp[path] = struct{}{}
}

// SyncToStorage writes every dirty node through the adapter. If another
// sweep is running it returns immediately with Skipped set. Failures are
// logged and counted; failed nodes stay dirty for the next sweep.
func (m *Manager) SyncToStorage(ctx context.Context) SyncResult {
	if !m.sweepMu.TryLock() {
		return SyncResult{Skipped: true}
	}
	defer m.sweepMu.Unlock()
	return m.sweep(ctx)
}

// ForceSync runs a sweep now, waiting for an in-flight one to finish first.
func (m *Manager) ForceSync(ctx context.Context) SyncResult {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()
	return m.sweep(ctx)
}

func (m *Manager) sweep(ctx context.Context) SyncResult {
	start := time.Now()
	var result SyncResult

	for _, node := range m.cache.GetDirtyNodes() {
		if ctx.Err() != nil {
			result.Failed++
			continue
		}
		if err := m.store.Put(ctx, types.NodeToRecord(node)); err != nil {
			result.Failed++
			m.logger.Warn("sync failed, node stays dirty", zap.String("path", node.Path), zap.Error(err))
			continue
		}
		result.Synced++

		if !m.cache.ClearDirtyIf(node.Path, node.Modified) {
			m.logger.Debug("node changed during sync, still dirty", zap.String("path", node.Path))
			continue
		}
		if !m.cache.Has(node.Path) {
			// deleted while the write was in flight
			m.queueDeletes(node.Path)
			continue
		}
		if m.dropBackup(node.Path) {
			result.BackupsCleared++
		}
	}

	// deletions go after the puts so a moved subtree is written under its
	// new paths before the old records disappear
	m.retryDeletes(ctx, &result)

	result.Duration = time.Since(start)
	if result.Failed > 0 || result.FailedDeletes > 0 {
		m.logger.Warn("sync sweep incomplete",
			zap.Int("synced", result.Synced),
			zap.Int("failed", result.Failed),
			zap.Int("failed_deletes", result.FailedDeletes))
	} else if result.Synced > 0 || result.Deleted > 0 {
		m.logger.Debug("sync sweep completed",
			zap.Int("synced", result.Synced),
			zap.Int("deleted", result.Deleted),
			zap.Duration("duration", result.Duration))
	}

	m.mu.Lock()
	observer := m.observer
	m.mu.Unlock()
	if observer != nil {
		observer(result)
	}
	return result
}

// QueueDeletion schedules paths for removal by the next sweep, after that
// sweep's writes. A path recreated in the cache before then is not deleted.
func (m *Manager) QueueDeletion(paths ...string) {
	for _, p := range paths {
		m.dropBackup(p)
	}
	m.queueDeletes(paths...)
}

// PendingDeletes returns the queued deletions, sorted.
func (m *Manager) PendingDeletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pendingDeletes))
	for p := range m.pendingDeletes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) queueDeletes(paths ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		m.pendingDeletes[p] = struct{}{}
	}
}

func (m *Manager) retryDeletes(ctx context.Context, result *SyncResult) {
	pending := m.PendingDeletes()
	// children before parents, so a failed sweep never leaves a record
	// whose directory is already gone
	sort.SliceStable(pending, func(i, j int) bool {
		return vpath.Depth(pending[i]) > vpath.Depth(pending[j])
	})
	for _, p := range pending {
		// recreated since; the dirty sweep will overwrite the record
		if m.cache.Has(p) {
			m.mu.Lock()
			delete(m.pendingDeletes, p)
			m.mu.Unlock()
			continue
		}
		if err := m.store.Delete(ctx, p); err != nil {
			result.FailedDeletes++
			continue
		}
		m.mu.Lock()
		delete(m.pendingDeletes, p)
		m.mu.Unlock()
		result.Deleted++
	}
}

func (m *Manager) dropBackup(path string) bool {
	if m.backup == nil {
		return false
	}
	m.mu.Lock()
	_, tracked := m.backedUp[path]
	m.mu.Unlock()
	if !tracked {
		return false
	}
	if err := m.backup.Delete(path); err != nil {
		m.logger.Warn("failed to clear backup entry", zap.String("path", path), zap.Error(err))
		return false
	}
	m.mu.Lock()
	delete(m.backedUp, path)
	m.mu.Unlock()
	return true
}

// Start launches the periodic sweep.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.NewError(errors.ErrCodeFSError, "write-back manager already started")
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.syncLoop(m.config.SyncInterval, m.stopCh, m.doneCh)
	return nil
}

// Stop halts the periodic sweep and waits for an in-flight tick to return.
// Stopping a manager that is not running is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
}

// Running reports whether the periodic sweep is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Manager) syncLoop(interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	if interval <= 0 {
		<-stopCh
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.SyncToStorage(context.Background())
		}
	}
}
