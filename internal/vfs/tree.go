package vfs

import (
	"context"
	"time"

	"github.com/objectfs/webvfs/internal/events"
	"github.com/objectfs/webvfs/internal/txn"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// DeleteOptions controls Delete.
type DeleteOptions struct {
	// Recursive allows deleting a non-empty directory with its contents.
	Recursive bool
}

// CopyOptions controls Copy.
type CopyOptions struct {
	// Recursive allows copying a directory with its contents.
	Recursive bool
}

// Delete removes the node at path. Deleting a non-empty directory requires
// Recursive. The root cannot be deleted.
func (f *FileSystem) Delete(ctx context.Context, path string, opts DeleteOptions) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opDelete, start, 0, err) }()

	p, err := vpath.Clean(path)
	if err != nil {
		return err
	}
	if p == vpath.Root {
		return errors.InvalidMove(p, "cannot delete the root directory")
	}
	return f.remove(ctx, p, opts.Recursive)
}

// Move relocates the node at from, with its subtree, to to. The destination
// must not exist and must not lie inside the source.
func (f *FileSystem) Move(ctx context.Context, from, to string) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opMove, start, 0, err) }()

	src, dst, err := f.movePaths(from, to)
	if err != nil {
		return err
	}
	return f.move(ctx, src, dst)
}

// Rename gives the node at path a new name in the same directory.
func (f *FileSystem) Rename(ctx context.Context, path, newName string) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opRename, start, 0, err) }()

	if err := vpath.ValidateFilename(newName); err != nil {
		return err
	}
	p, err := vpath.Clean(path)
	if err != nil {
		return err
	}
	if p == vpath.Root {
		return errors.InvalidMove(p, "cannot rename the root directory")
	}
	src, dst, err := f.movePaths(p, vpath.Join(vpath.Dir(p), newName))
	if err != nil {
		return err
	}
	return f.move(ctx, src, dst)
}

// Copy duplicates the file at from to to, replacing a file already there.
// Directories are copied with their contents when Recursive is set; the
// destination must not exist then.
func (f *FileSystem) Copy(ctx context.Context, from, to string, opts CopyOptions) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	var size int64
	defer func() { err = f.finish(opCopy, start, size, err) }()

	src, err := vpath.Clean(from)
	if err != nil {
		return err
	}
	dst, err := vpath.Clean(to)
	if err != nil {
		return err
	}
	if src == dst {
		return errors.InvalidMove(dst, "source and destination are the same")
	}
	size, err = f.copy(ctx, src, dst, opts.Recursive)
	return err
}

func (f *FileSystem) movePaths(from, to string) (string, string, error) {
	src, err := vpath.Clean(from)
	if err != nil {
		return "", "", err
	}
	dst, err := vpath.Clean(to)
	if err != nil {
		return "", "", err
	}
	switch {
	case src == vpath.Root:
		return "", "", errors.InvalidMove(src, "cannot move the root directory")
	case dst == vpath.Root:
		return "", "", errors.Exists(dst)
	case src == dst:
		return "", "", errors.InvalidMove(dst, "source and destination are the same")
	case vpath.IsAncestor(src, dst):
		return "", "", errors.InvalidMove(dst, "destination is inside the source")
	}
	return src, dst, nil
}

// subtree returns the nodes of the tree rooted at p, parents before
// children. Evicted nodes are reloaded; vanished index entries are skipped.
func (f *FileSystem) subtree(root *types.Node) []*types.Node {
	nodes := []*types.Node{root}
	if !root.IsDir() {
		return nodes
	}
	deepestFirst := f.cache.Descendants(root.Path)
	for i := len(deepestFirst) - 1; i >= 0; i-- {
		if n, ok := f.cache.Get(deepestFirst[i]); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (f *FileSystem) remove(ctx context.Context, p string, recursive bool) error {
	release, err := f.locks.Acquire(ctx, p)
	if err != nil {
		return err
	}
	defer release()

	var evt events.Event
	err = f.exclusive(func() (err error) {
		evt, err = f.removeLocked(ctx, p, recursive)
		return err
	})
	if err != nil {
		return err
	}
	f.emit(evt)
	return nil
}

func (f *FileSystem) removeLocked(ctx context.Context, p string, recursive bool) (events.Event, error) {
	target, ok := f.cache.Get(p)
	if !ok {
		return events.Event{}, errors.NotFound(p)
	}
	if target.IsDir() && !recursive && len(f.cache.ChildPaths(p)) > 0 {
		return events.Event{}, errors.DirectoryNotEmpty(p)
	}

	doomed := f.subtree(target)
	var freed int64
	steps := make([]txn.Step, 0, len(doomed)+2)
	paths := make([]string, 0, len(doomed))
	for i := len(doomed) - 1; i >= 0; i-- {
		n := doomed[i]
		if !n.IsDir() {
			freed += n.Size
		}
		steps = append(steps, f.deleteStep(txn.KindDelete, n))
		paths = append(paths, n.Path)
	}
	steps = append(steps,
		f.quotaStep(p, -freed),
		f.touchParentStep(vpath.Dir(p), time.Now()))

	if err := f.run(ctx, steps...); err != nil {
		return events.Event{}, err
	}
	// records are removed by the next sweep, outside the tree lock
	f.sync.QueueDeletion(paths...)
	return events.Event{Type: events.Deleted, Path: p, Kind: target.Kind}, nil
}

func (f *FileSystem) move(ctx context.Context, from, to string) error {
	release, err := f.locks.AcquireAll(ctx, from, to)
	if err != nil {
		return err
	}
	defer release()

	var evt events.Event
	err = f.exclusive(func() (err error) {
		evt, err = f.moveLocked(ctx, from, to)
		return err
	})
	if err != nil {
		return err
	}
	f.emit(evt)
	return nil
}

func (f *FileSystem) moveLocked(ctx context.Context, from, to string) (events.Event, error) {
	src, ok := f.cache.Get(from)
	if !ok {
		return events.Event{}, errors.NotFound(from)
	}
	if f.cache.Has(to) {
		return events.Event{}, errors.Exists(to)
	}
	if _, err := f.dirNode(vpath.Dir(to)); err != nil {
		return events.Event{}, err
	}

	now := time.Now()
	nodes := f.subtree(src)
	steps := make([]txn.Step, 0, 2*len(nodes)+2)
	for _, n := range nodes {
		moved := n.Clone()
		moved.Path = vpath.Rebase(n.Path, from, to)
		moved.Name = vpath.Base(moved.Path)
		moved.ParentPath = vpath.Dir(moved.Path)
		moved.Dirty = true
		if n.Path == from {
			moved.Modified = now
		}
		steps = append(steps, f.createStep(txn.KindMove, moved))
	}
	oldPaths := make([]string, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		steps = append(steps, f.deleteStep(txn.KindMove, nodes[i]))
		oldPaths = append(oldPaths, nodes[i].Path)
	}
	steps = append(steps, f.touchParentStep(vpath.Dir(from), now))
	if vpath.Dir(to) != vpath.Dir(from) {
		steps = append(steps, f.touchParentStep(vpath.Dir(to), now))
	}

	if err := f.run(ctx, steps...); err != nil {
		return events.Event{}, err
	}
	// old records go after the new ones are written
	f.sync.QueueDeletion(oldPaths...)
	return events.Event{Type: events.Moved, From: from, To: to, Kind: src.Kind}, nil
}

func (f *FileSystem) copy(ctx context.Context, from, to string, recursive bool) (int64, error) {
	release, err := f.locks.AcquireAll(ctx, from, to)
	if err != nil {
		return 0, err
	}
	defer release()

	src, ok := f.cache.Get(from)
	if !ok {
		return 0, errors.NotFound(from)
	}
	var evt events.Event
	var size int64
	switch {
	case !src.IsDir():
		if to == vpath.Root {
			return 0, errors.IsDirectory(to)
		}
		size = src.Size
		err = f.shared(func() (err error) {
			evt, err = f.writeLocked(ctx, to, src.Content, modeReplace)
			return err
		})
	case !recursive:
		return 0, errors.IsDirectory(from)
	case vpath.IsAncestor(from, to):
		return 0, errors.InvalidMove(to, "destination is inside the source")
	default:
		err = f.exclusive(func() (err error) {
			evt, size, err = f.copyTreeLocked(ctx, src, to)
			return err
		})
	}
	if err != nil {
		return 0, err
	}
	f.emit(evt)
	return size, nil
}

func (f *FileSystem) copyTreeLocked(ctx context.Context, src *types.Node, to string) (events.Event, int64, error) {
	from := src.Path
	if f.cache.Has(to) {
		return events.Event{}, 0, errors.Exists(to)
	}
	if _, err := f.dirNode(vpath.Dir(to)); err != nil {
		return events.Event{}, 0, err
	}

	now := time.Now()
	nodes := f.subtree(src)
	var total int64
	copies := make([]txn.Step, 0, len(nodes))
	for _, n := range nodes {
		c := n.Clone()
		c.Path = vpath.Rebase(n.Path, from, to)
		c.Name = vpath.Base(c.Path)
		c.ParentPath = vpath.Dir(c.Path)
		c.Created = now
		c.Modified = now
		c.Accessed = now
		c.Dirty = true
		if !c.IsDir() {
			total += c.Size
		}
		copies = append(copies, f.createStep(txn.KindCreate, c))
	}
	steps := append([]txn.Step{f.quotaStep(to, total)}, copies...)
	steps = append(steps, f.touchParentStep(vpath.Dir(to), now))

	if err := f.run(ctx, steps...); err != nil {
		return events.Event{}, 0, err
	}
	return events.Event{Type: events.Created, Path: to, Kind: types.KindDirectory, Size: total}, total, nil
}
