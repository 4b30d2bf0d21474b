package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/objectfs/webvfs/internal/storage/memory"
	"github.com/objectfs/webvfs/internal/vfs"
	"github.com/objectfs/webvfs/pkg/errors"
)

func newTestFS(t *testing.T) *vfs.FileSystem {
	t.Helper()
	cfg := vfs.DefaultConfig()
	cfg.SyncInterval = 0
	fs := vfs.New(memory.New(), cfg, zaptest.NewLogger(t))
	require.NoError(t, fs.Init(context.Background()))
	t.Cleanup(func() { _ = fs.Shutdown(context.Background()) })
	return fs
}

// runCmd executes one command line and returns its output.
func runCmd(t *testing.T, fs *vfs.FileSystem, opts options, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newCommands(fs, strings.NewReader(stdin), &out, opts).execute(context.Background(), args)
	return out.String(), err
}

func TestCommands_WriteCat(t *testing.T) {
	fs := newTestFS(t)

	_, err := runCmd(t, fs, options{}, "", "write", "notes.txt", "hello", "world")
	require.NoError(t, err)
	_, err = runCmd(t, fs, options{}, "second line\n", "append", "notes.txt")
	require.NoError(t, err)

	out, err := runCmd(t, fs, options{}, "", "cat", "~/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line\n", out)
}

func TestCommands_RelativeToCwd(t *testing.T) {
	fs := newTestFS(t)

	_, err := runCmd(t, fs, options{cwd: "/tmp"}, "", "touch", "a", "../var/b")
	require.NoError(t, err)
	assert.True(t, fs.Exists(context.Background(), "/tmp/a"))
	assert.True(t, fs.Exists(context.Background(), "/var/b"))

	out, err := runCmd(t, fs, options{cwd: "/tmp"}, "", "realpath", "../etc/./x")
	require.NoError(t, err)
	assert.Equal(t, "/etc/x\n", out)

	_, err = runCmd(t, fs, options{cwd: "/tmp/a"}, "", "ls")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotDirectory), "cwd must be a directory: %v", err)
}

func TestCommands_MkdirLsRm(t *testing.T) {
	fs := newTestFS(t)

	_, err := runCmd(t, fs, options{}, "", "mkdir", "/srv/www")
	assert.True(t, errors.IsNotFound(err))

	_, err = runCmd(t, fs, options{parents: true}, "", "mkdir", "/srv/www")
	require.NoError(t, err)
	_, err = runCmd(t, fs, options{}, "", "write", "/srv/www/index.html", "<h1>hi</h1>")
	require.NoError(t, err)
	_, err = runCmd(t, fs, options{}, "", "mkdir", "/srv/www/img")
	require.NoError(t, err)

	out, err := runCmd(t, fs, options{}, "", "ls", "/srv/www")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "img/"), "directories first: %q", lines[0])
	assert.True(t, strings.HasPrefix(lines[0], "drwxr-xr-x"))
	assert.True(t, strings.HasSuffix(lines[1], "index.html"))

	_, err = runCmd(t, fs, options{}, "", "rm", "/srv")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDirectoryNotEmpty))
	_, err = runCmd(t, fs, options{recursive: true}, "", "rm", "/srv")
	require.NoError(t, err)
	assert.False(t, fs.Exists(context.Background(), "/srv/www/index.html"))
}

func TestCommands_MvRenameCp(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	_, err := runCmd(t, fs, options{}, "", "write", "/tmp/a.txt", "x")
	require.NoError(t, err)

	_, err = runCmd(t, fs, options{}, "", "mv", "/tmp/a.txt", "/var/a.txt")
	require.NoError(t, err)
	_, err = runCmd(t, fs, options{}, "", "rename", "/var/a.txt", "b.txt")
	require.NoError(t, err)
	assert.True(t, fs.Exists(ctx, "/var/b.txt"))

	_, err = runCmd(t, fs, options{}, "", "cp", "/var", "/var2")
	assert.True(t, errors.HasCode(err, errors.ErrCodeIsDirectory))
	_, err = runCmd(t, fs, options{recursive: true}, "", "cp", "/var", "/var2")
	require.NoError(t, err)

	got, err := fs.ReadFile(ctx, "/var2/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(got))
}

func TestCommands_StatDuComplete(t *testing.T) {
	fs := newTestFS(t)

	_, err := runCmd(t, fs, options{}, "", "write", "/tmp/data.bin", "12345")
	require.NoError(t, err)
	_, err = runCmd(t, fs, options{}, "", "mkdir", "/tmp/dir")
	require.NoError(t, err)

	out, err := runCmd(t, fs, options{}, "", "stat", "/tmp/data.bin")
	require.NoError(t, err)
	assert.Contains(t, out, "/tmp/data.bin")
	assert.Contains(t, out, "file")
	assert.Contains(t, out, "rw-r--r--")

	out, err = runCmd(t, fs, options{}, "", "du", "/tmp")
	require.NoError(t, err)
	assert.Contains(t, out, "/tmp: 1 files, 1 directories, 6 B")
	assert.Contains(t, out, "quota: 6 B used of 100.0 MB")

	out, err = runCmd(t, fs, options{cwd: "/"}, "", "complete", "tmp/d")
	require.NoError(t, err)
	assert.Equal(t, "tmp/dir/\ntmp/data.bin\n", out, "directories first")
}

func TestCommands_Usage(t *testing.T) {
	fs := newTestFS(t)

	_, err := runCmd(t, fs, options{}, "")
	assert.EqualError(t, err, "no command given")

	_, err = runCmd(t, fs, options{}, "", "frobnicate")
	assert.EqualError(t, err, "unknown command: frobnicate")

	_, err = runCmd(t, fs, options{}, "", "mv", "/tmp")
	assert.EqualError(t, err, "usage: webvfs mv <from> <to>")

	_, err = runCmd(t, fs, options{}, "", "serve")
	assert.EqualError(t, err, "unknown command: serve", "serve is run by main")

	assert.Contains(t, commandHelp(), "mkdir [-p] <path>...")
	assert.Contains(t, commandHelp(), "serve [--address addr]")
}
