package vfs

import (
	"context"
	"time"

	"github.com/objectfs/webvfs/internal/txn"
	"github.com/objectfs/webvfs/pkg/types"
)

// Step builders. Each pairs a cache mutation with its exact inverse. When a
// sweep persisted the intermediate state before the undo ran, the inverse
// also schedules the storage side: a created node is queued for deletion and
// a restored node is marked dirty again.

// run executes steps as one transaction. Once started it runs to completion
// or rollback regardless of ctx.
func (f *FileSystem) run(ctx context.Context, steps ...txn.Step) error {
	tx := txn.New(f.logger)
	for _, s := range steps {
		if f.faults != nil {
			s = f.withFault(s)
		}
		if err := tx.Add(s); err != nil {
			return err
		}
	}
	if err := tx.Execute(context.WithoutCancel(ctx)); err != nil {
		f.stats.update(func(st *Stats) { st.Rollbacks++ })
		return err
	}
	return nil
}

func (f *FileSystem) withFault(s txn.Step) txn.Step {
	do := s.Do
	s.Do = func(ctx context.Context) error {
		if err := f.faults(s.Kind, s.Path); err != nil {
			return err
		}
		return do(ctx)
	}
	return s
}

func (f *FileSystem) createStep(kind txn.Kind, n *types.Node) txn.Step {
	return txn.Step{
		Kind: kind,
		Path: n.Path,
		Do: func(context.Context) error {
			f.cache.Set(n)
			return nil
		},
		Undo: func(context.Context) error {
			synced := !f.cache.IsDirty(n.Path)
			f.cache.Delete(n.Path)
			if synced {
				f.sync.QueueDeletion(n.Path)
			}
			return nil
		},
	}
}

func (f *FileSystem) replaceStep(prev, next *types.Node) txn.Step {
	return txn.Step{
		Kind: txn.KindModify,
		Path: next.Path,
		Do: func(context.Context) error {
			f.cache.Set(next)
			return nil
		},
		Undo: func(context.Context) error {
			f.restore(prev)
			return nil
		},
	}
}

func (f *FileSystem) deleteStep(kind txn.Kind, prev *types.Node) txn.Step {
	return txn.Step{
		Kind: kind,
		Path: prev.Path,
		Do: func(context.Context) error {
			f.cache.Delete(prev.Path)
			return nil
		},
		Undo: func(context.Context) error {
			f.cache.Set(prev)
			return nil
		},
	}
}

// touchParentStep bumps the modified time of dir, reading it when the step
// runs so concurrent writers in the same directory do not clobber each other.
// Undo reverts the bump only while it is still the latest one.
func (f *FileSystem) touchParentStep(dir string, now time.Time) txn.Step {
	var prevModified time.Time
	var prevDirty bool
	bump := func(n *types.Node) bool {
		prevModified, prevDirty = n.Modified, n.Dirty
		n.Modified = now
		n.Dirty = true
		return true
	}
	return txn.Step{
		Kind: txn.KindModify,
		Path: dir,
		Do: func(context.Context) error {
			n, err := f.dirNode(dir)
			if err != nil {
				return err
			}
			if !f.cache.Update(dir, bump) {
				// evicted again since the lookup
				bump(n)
				f.cache.Set(n)
			}
			return nil
		},
		Undo: func(context.Context) error {
			f.cache.Update(dir, func(n *types.Node) bool {
				if !n.Modified.Equal(now) {
					return false
				}
				n.Modified = prevModified
				// a sweep may have persisted the bump meanwhile
				n.Dirty = !n.Dirty || prevDirty
				return true
			})
			return nil
		},
	}
}

func (f *FileSystem) quotaStep(path string, delta int64) txn.Step {
	return txn.Step{
		Kind: txn.KindModify,
		Path: path,
		Do: func(context.Context) error {
			return f.quota.reserve(path, delta)
		},
		Undo: func(context.Context) error {
			f.quota.adjust(-delta)
			return nil
		},
	}
}

func (f *FileSystem) restore(prev *types.Node) {
	n := prev.Clone()
	if !f.cache.IsDirty(n.Path) {
		n.Dirty = true
	}
	f.cache.Set(n)
}
