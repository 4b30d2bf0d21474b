package vfs

import (
	"context"
	"sort"
	"time"

	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// ReadFile returns the content of the file at path.
func (f *FileSystem) ReadFile(ctx context.Context, path string) (data []byte, err error) {
	end, err := f.begin()
	if err != nil {
		return nil, err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opReadFile, start, int64(len(data)), err) }()

	p, err := vpath.Clean(path)
	if err != nil {
		return nil, err
	}
	release, err := f.locks.Acquire(ctx, p)
	if err != nil {
		return nil, err
	}
	defer release()

	n, ok := f.cache.Get(p)
	if !ok {
		return nil, errors.NotFound(p)
	}
	if n.IsDir() {
		return nil, errors.IsDirectory(p)
	}
	if n.Content == nil {
		return []byte{}, nil
	}
	return n.Content, nil
}

// ReadDir lists a directory, directories first, then by name.
func (f *FileSystem) ReadDir(ctx context.Context, path string) (entries []types.FileInfo, err error) {
	end, err := f.begin()
	if err != nil {
		return nil, err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opReadDir, start, 0, err) }()

	p, err := vpath.Clean(path)
	if err != nil {
		return nil, err
	}
	return f.readDir(p)
}

func (f *FileSystem) readDir(p string) ([]types.FileInfo, error) {
	f.tree.RLock()
	defer f.tree.RUnlock()

	if _, err := f.dirNode(p); err != nil {
		return nil, err
	}
	children := f.cache.GetChildren(p)
	entries := make([]types.FileInfo, 0, len(children))
	for _, n := range children {
		entries = append(entries, n.Info())
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []types.FileInfo) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name < entries[j].Name
	})
}

// Stat returns the metadata of the node at path.
func (f *FileSystem) Stat(ctx context.Context, path string) (info types.FileInfo, err error) {
	end, err := f.begin()
	if err != nil {
		return types.FileInfo{}, err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opStat, start, 0, err) }()

	return f.stat(path)
}

func (f *FileSystem) stat(path string) (types.FileInfo, error) {
	p, err := vpath.Clean(path)
	if err != nil {
		return types.FileInfo{}, err
	}
	n, ok := f.cache.Get(p)
	if !ok {
		return types.FileInfo{}, errors.NotFound(p)
	}
	return n.Info(), nil
}

// Exists reports whether path names a node. Any error reads as false.
func (f *FileSystem) Exists(ctx context.Context, path string) bool {
	end, err := f.begin()
	if err != nil {
		return false
	}
	defer end()
	_, err = f.stat(path)
	return err == nil
}

// IsDirectory reports whether path names a directory. Any error reads as
// false.
func (f *FileSystem) IsDirectory(ctx context.Context, path string) bool {
	end, err := f.begin()
	if err != nil {
		return false
	}
	defer end()
	info, err := f.stat(path)
	return err == nil && info.IsDir()
}

// CanReadDirectory reports whether path can be listed. Any error reads as
// false.
func (f *FileSystem) CanReadDirectory(ctx context.Context, path string) bool {
	end, err := f.begin()
	if err != nil {
		return false
	}
	defer end()
	p, err := vpath.Clean(path)
	if err != nil {
		return false
	}
	_, err = f.readDir(p)
	return err == nil
}
