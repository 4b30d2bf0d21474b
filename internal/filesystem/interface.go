// Package filesystem defines the interface front ends use to drive the
// engine. The CLI and any embedding shell program depend on this interface
// rather than on the engine type, so they can be tested against a fake.
package filesystem

import (
	"context"

	"github.com/objectfs/webvfs/internal/vfs"
	"github.com/objectfs/webvfs/pkg/types"
)

// FilesystemInterface defines the operations a front end performs. Paths
// are absolute unless resolved through ResolveAndValidatePath first.
type FilesystemInterface interface {
	// File operations
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, content []byte) error
	AppendFile(ctx context.Context, path string, data []byte) error
	TouchFile(ctx context.Context, path string) error

	// Directory operations
	ReadDir(ctx context.Context, path string) ([]types.FileInfo, error)
	Mkdir(ctx context.Context, path string, opts vfs.MkdirOptions) error

	// File/directory manipulation
	Delete(ctx context.Context, path string, opts vfs.DeleteOptions) error
	Move(ctx context.Context, from, to string) error
	Rename(ctx context.Context, path, newName string) error
	Copy(ctx context.Context, from, to string, opts vfs.CopyOptions) error

	// Metadata operations
	Stat(ctx context.Context, path string) (types.FileInfo, error)
	Exists(ctx context.Context, path string) bool
	IsDirectory(ctx context.Context, path string) bool
	CanReadDirectory(ctx context.Context, path string) bool
	GetDirectoryInfo(ctx context.Context, path string) (types.DirectoryInfo, error)

	// Shell helpers
	ResolveAndValidatePath(cwd, target string) (string, error)
	GetPathCompletions(ctx context.Context, cwd, partial string) ([]string, error)
	HomeDir() string

	// Filesystem-level operations
	Usage() (types.Usage, error)
}

var _ FilesystemInterface = (*vfs.FileSystem)(nil)
