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

type writeMode int

const (
	modeReplace writeMode = iota
	modeAppend
)

// MkdirOptions controls Mkdir.
type MkdirOptions struct {
	// Recursive creates missing ancestors.
	Recursive bool
}

// WriteFile creates or replaces the file at path.
func (f *FileSystem) WriteFile(ctx context.Context, path string, content []byte) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opWriteFile, start, int64(len(content)), err) }()

	p, err := f.filePath(path, int64(len(content)))
	if err != nil {
		return err
	}
	return f.write(ctx, p, content, modeReplace)
}

// AppendFile adds data to the end of the file at path, creating it when
// missing.
func (f *FileSystem) AppendFile(ctx context.Context, path string, data []byte) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opAppendFile, start, int64(len(data)), err) }()

	p, err := f.filePath(path, int64(len(data)))
	if err != nil {
		return err
	}
	return f.write(ctx, p, data, modeAppend)
}

// TouchFile updates the timestamps of path, creating an empty file when it
// does not exist.
func (f *FileSystem) TouchFile(ctx context.Context, path string) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opTouchFile, start, 0, err) }()

	p, err := vpath.Clean(path)
	if err != nil {
		return err
	}
	return f.touch(ctx, p)
}

// Mkdir creates a directory. It succeeds without change when the directory
// already exists and fails with EXISTS when a file is in the way.
func (f *FileSystem) Mkdir(ctx context.Context, path string, opts MkdirOptions) (err error) {
	end, err := f.begin()
	if err != nil {
		return err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opMkdir, start, 0, err) }()

	p, err := vpath.Clean(path)
	if err != nil {
		return err
	}
	return f.mkdir(ctx, p, opts.Recursive)
}

// filePath validates a write target and the size of the data.
func (f *FileSystem) filePath(path string, size int64) (string, error) {
	p, err := vpath.Clean(path)
	if err != nil {
		return "", err
	}
	if p == vpath.Root {
		return "", errors.IsDirectory(p)
	}
	if f.config.MaxFileSize > 0 && size > f.config.MaxFileSize {
		return "", errors.FileTooLarge(p, size, f.config.MaxFileSize)
	}
	return p, nil
}

func (f *FileSystem) write(ctx context.Context, p string, data []byte, mode writeMode) error {
	release, err := f.locks.Acquire(ctx, p)
	if err != nil {
		return err
	}
	defer release()

	var evt events.Event
	err = f.shared(func() (err error) {
		evt, err = f.writeLocked(ctx, p, data, mode)
		return err
	})
	if err != nil {
		return err
	}
	f.emit(evt)
	return nil
}

// writeLocked runs with p locked and the tree held.
func (f *FileSystem) writeLocked(ctx context.Context, p string, data []byte, mode writeMode) (events.Event, error) {
	parent := vpath.Dir(p)
	if _, err := f.dirNode(parent); err != nil {
		return events.Event{}, err
	}
	existing, exists := f.cache.Get(p)
	if exists && existing.IsDir() {
		return events.Event{}, errors.IsDirectory(p)
	}

	content := data
	var oldSize int64
	if exists {
		oldSize = existing.Size
		if mode == modeAppend {
			content = append(existing.Content, data...)
		}
	}
	newSize := int64(len(content))
	if f.config.MaxFileSize > 0 && newSize > f.config.MaxFileSize {
		return events.Event{}, errors.FileTooLarge(p, newSize, f.config.MaxFileSize)
	}

	now := time.Now()
	steps := []txn.Step{f.quotaStep(p, newSize-oldSize)}
	if exists {
		next := existing.Clone()
		next.Content = content
		next.Size = newSize
		next.Modified = now
		next.Accessed = now
		next.Dirty = true
		steps = append(steps, f.replaceStep(existing, next))
	} else {
		steps = append(steps, f.createStep(txn.KindCreate, f.newFile(p, content, now)))
	}
	steps = append(steps, f.touchParentStep(parent, now))

	if err := f.run(ctx, steps...); err != nil {
		return events.Event{}, err
	}
	if exists {
		return events.Event{Type: events.Changed, Path: p, Kind: types.KindFile, OldSize: oldSize, NewSize: newSize}, nil
	}
	return events.Event{Type: events.Created, Path: p, Kind: types.KindFile, Size: newSize}, nil
}

func (f *FileSystem) touch(ctx context.Context, p string) error {
	release, err := f.locks.Acquire(ctx, p)
	if err != nil {
		return err
	}
	defer release()

	var evt events.Event
	err = f.shared(func() (err error) {
		evt, err = f.touchLocked(ctx, p)
		return err
	})
	if err != nil {
		return err
	}
	f.emit(evt)
	return nil
}

func (f *FileSystem) touchLocked(ctx context.Context, p string) (events.Event, error) {
	existing, ok := f.cache.Get(p)
	if !ok {
		if p == vpath.Root {
			return events.Event{}, errors.NotFound(p)
		}
		return f.writeLocked(ctx, p, nil, modeReplace)
	}

	now := time.Now()
	next := existing.Clone()
	next.Modified = now
	next.Accessed = now
	next.Dirty = true
	if err := f.run(ctx, f.replaceStep(existing, next)); err != nil {
		return events.Event{}, err
	}
	return events.Event{Type: events.Changed, Path: p, Kind: existing.Kind, OldSize: existing.Size, NewSize: existing.Size}, nil
}

func (f *FileSystem) mkdir(ctx context.Context, p string, recursive bool) error {
	if p == vpath.Root {
		return nil
	}

	// Recursive creation also locks the ancestors it may create, so two
	// callers racing to create a shared ancestor are serialized.
	paths := []string{p}
	if recursive {
		paths = append(vpath.Ancestors(p), p)
	}
	release, err := f.locks.AcquireAll(ctx, paths...)
	if err != nil {
		return err
	}
	defer release()

	var evts []events.Event
	err = f.shared(func() (err error) {
		evts, err = f.mkdirLocked(ctx, p, recursive)
		return err
	})
	if err != nil {
		return err
	}
	f.emit(evts...)
	return nil
}

func (f *FileSystem) mkdirLocked(ctx context.Context, p string, recursive bool) ([]events.Event, error) {
	if existing, ok := f.cache.Get(p); ok {
		if existing.IsDir() {
			return nil, nil
		}
		return nil, errors.Exists(p)
	}

	var missing []string
	for _, a := range vpath.Ancestors(p) {
		n, ok := f.cache.Get(a)
		if !ok {
			if !recursive {
				return nil, errors.NotFound(vpath.Dir(p))
			}
			missing = append(missing, a)
			continue
		}
		if !n.IsDir() {
			return nil, errors.NotDirectory(a)
		}
	}
	missing = append(missing, p)

	now := time.Now()
	steps := make([]txn.Step, 0, len(missing)+1)
	evts := make([]events.Event, 0, len(missing))
	for _, m := range missing {
		steps = append(steps, f.createStep(txn.KindCreate, f.newDir(m, now)))
		evts = append(evts, events.Event{Type: events.Created, Path: m, Kind: types.KindDirectory})
	}
	steps = append(steps, f.touchParentStep(vpath.Dir(missing[0]), now))

	if err := f.run(ctx, steps...); err != nil {
		return nil, err
	}
	return evts, nil
}
