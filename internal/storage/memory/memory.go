// Package memory is a map-backed storage adapter. Failure hooks let tests
// simulate an unavailable backend.
package memory

import (
	"context"
	"sync"

	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
)

// Hooks inject failures. A hook returning a non-nil error aborts the
// operation with that error before any state changes.
type Hooks struct {
	Init   func() error
	Get    func(path string) error
	Put    func(rec *types.Record) error
	Delete func(path string) error
	List   func() error
}

// Adapter is an in-memory storage.Adapter.
type Adapter struct {
	mu       sync.RWMutex
	records  map[string]*types.Record
	byParent map[string]map[string]struct{}
	hooks    Hooks

	puts    int
	deletes int
}

var _ storage.Adapter = (*Adapter)(nil)

// New creates an empty adapter.
func New() *Adapter {
	return &Adapter{
		records:  make(map[string]*types.Record),
		byParent: make(map[string]map[string]struct{}),
	}
}

// SetHooks replaces the failure hooks.
func (a *Adapter) SetHooks(h Hooks) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = h
}

// Init implements storage.Adapter.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.RLock()
	hook := a.hooks.Init
	a.mu.RUnlock()
	if hook != nil {
		return hook()
	}
	return nil
}

// Get implements storage.Adapter.
func (a *Adapter) Get(ctx context.Context, path string) (*types.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.hooks.Get != nil {
		if err := a.hooks.Get(path); err != nil {
			return nil, err
		}
	}
	rec, ok := a.records[path]
	if !ok {
		return nil, errors.NotFound(path).WithOperation("get")
	}
	return storage.CloneRecord(rec), nil
}

// Put implements storage.Adapter.
func (a *Adapter) Put(ctx context.Context, rec *types.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hooks.Put != nil {
		if err := a.hooks.Put(rec); err != nil {
			return err
		}
	}
	if old, ok := a.records[rec.Path]; ok && old.ParentPath != rec.ParentPath {
		a.unindex(old.ParentPath, rec.Path)
	}
	a.records[rec.Path] = storage.CloneRecord(rec)
	if rec.ParentPath != "" {
		set, ok := a.byParent[rec.ParentPath]
		if !ok {
			set = make(map[string]struct{})
			a.byParent[rec.ParentPath] = set
		}
		set[rec.Path] = struct{}{}
	}
	a.puts++
	return nil
}

// Delete implements storage.Adapter.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hooks.Delete != nil {
		if err := a.hooks.Delete(path); err != nil {
			return err
		}
	}
	if old, ok := a.records[path]; ok {
		a.unindex(old.ParentPath, path)
		delete(a.records, path)
	}
	a.deletes++
	return nil
}

// GetChildren implements storage.Adapter.
func (a *Adapter) GetChildren(ctx context.Context, parent string) ([]*types.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.hooks.List != nil {
		if err := a.hooks.List(); err != nil {
			return nil, err
		}
	}
	out := make([]*types.Record, 0, len(a.byParent[parent]))
	for p := range a.byParent[parent] {
		out = append(out, storage.CloneRecord(a.records[p]))
	}
	storage.SortRecords(out)
	return out, nil
}

// GetAll implements storage.Adapter.
func (a *Adapter) GetAll(ctx context.Context) ([]*types.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.hooks.List != nil {
		if err := a.hooks.List(); err != nil {
			return nil, err
		}
	}
	out := make([]*types.Record, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, storage.CloneRecord(rec))
	}
	storage.SortRecords(out)
	return out, nil
}

// Close implements storage.Adapter.
func (a *Adapter) Close() error {
	return nil
}

// Len returns the number of stored records.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Puts returns how many Put calls succeeded.
func (a *Adapter) Puts() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.puts
}

// Deletes returns how many Delete calls succeeded.
func (a *Adapter) Deletes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deletes
}

func (a *Adapter) unindex(parent, path string) {
	if set, ok := a.byParent[parent]; ok {
		delete(set, path)
		if len(set) == 0 {
			delete(a.byParent, parent)
		}
	}
}
