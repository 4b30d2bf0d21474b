package vfs

import (
	"context"
	"strings"
	"time"

	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// ResolveAndValidatePath resolves target against the working directory cwd,
// expanding "~", and validates the result.
func (f *FileSystem) ResolveAndValidatePath(cwd, target string) (resolved string, err error) {
	end, err := f.begin()
	if err != nil {
		return "", err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opResolve, start, 0, err) }()

	return f.resolve(cwd, target)
}

func (f *FileSystem) resolve(cwd, target string) (string, error) {
	if cwd == "" {
		cwd = vpath.Root
	}
	resolved := vpath.Resolve(cwd, target, f.config.HomeDir)
	if err := vpath.Validate(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// GetPathCompletions returns the entries that complete partial, typed
// relative to cwd. Each completion keeps the directory part exactly as
// typed; directories end with a separator. A partial naming nothing yields
// no completions.
func (f *FileSystem) GetPathCompletions(ctx context.Context, cwd, partial string) (completions []string, err error) {
	end, err := f.begin()
	if err != nil {
		return nil, err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opCompletions, start, 0, err) }()

	typedDir, prefix := "", partial
	if i := strings.LastIndex(partial, vpath.Separator); i >= 0 {
		typedDir, prefix = partial[:i+1], partial[i+1:]
	}

	dir, err := f.resolve(cwd, typedDir)
	if err != nil {
		return []string{}, nil
	}
	entries, err := f.readDir(dir)
	if err != nil {
		if errors.IsNotFound(err) || errors.HasCode(err, errors.ErrCodeNotDirectory) {
			return []string{}, nil
		}
		return nil, err
	}

	completions = make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		c := typedDir + e.Name
		if e.IsDir() {
			c += vpath.Separator
		}
		completions = append(completions, c)
	}
	return completions, nil
}

// GetDirectoryInfo totals the files, directories and bytes below path.
func (f *FileSystem) GetDirectoryInfo(ctx context.Context, path string) (info types.DirectoryInfo, err error) {
	end, err := f.begin()
	if err != nil {
		return types.DirectoryInfo{}, err
	}
	defer end()
	start := time.Now()
	defer func() { err = f.finish(opDirInfo, start, 0, err) }()

	p, err := vpath.Clean(path)
	if err != nil {
		return types.DirectoryInfo{}, err
	}

	f.tree.RLock()
	defer f.tree.RUnlock()

	dir, err := f.dirNode(p)
	if err != nil {
		return types.DirectoryInfo{}, err
	}
	info.Path = p
	for _, n := range f.subtree(dir)[1:] {
		if n.IsDir() {
			info.Directories++
			continue
		}
		info.Files++
		info.TotalSize += n.Size
	}
	return info, nil
}
