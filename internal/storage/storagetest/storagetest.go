// Package storagetest holds the behavior every storage.Adapter must share.
package storagetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/vpath"
)

// Dir builds a directory record.
func Dir(path, parent string) *types.Record {
	now := time.Now().UnixMilli()
	return &types.Record{
		Path:        path,
		Name:        vpath.Base(path),
		Kind:        types.KindDirectory,
		ParentPath:  parent,
		Created:     now,
		Modified:    now,
		Permissions: "rwxr-xr-x",
	}
}

// File builds a file record.
func File(path, parent string, content []byte) *types.Record {
	r := Dir(path, parent)
	r.Kind = types.KindFile
	r.Content = content
	r.Size = int64(len(content))
	r.Permissions = "rw-r--r--"
	return r
}

// Option adjusts Run for adapters with narrower guarantees.
type Option func(*options)

type options struct {
	parentFromPath bool
}

// ParentFromPath marks adapters that list children by path prefix, so a
// record cannot be moved under another parent without changing its path.
func ParentFromPath() Option {
	return func(o *options) { o.parentFromPath = true }
}

// Run exercises the Adapter contract against a fresh adapter per subtest.
func Run(t *testing.T, newAdapter func(t *testing.T) storage.Adapter, opts ...Option) {
	t.Helper()
	ctx := context.Background()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	open := func(t *testing.T) storage.Adapter {
		a := newAdapter(t)
		require.NoError(t, a.Init(ctx))
		t.Cleanup(func() { _ = a.Close() })
		return a
	}

	t.Run("GetMissing", func(t *testing.T) {
		a := open(t)
		_, err := a.Get(ctx, "/nope")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err), "got %v", err)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		a := open(t)
		rec := File("/a.txt", "/", []byte("hello"))
		require.NoError(t, a.Put(ctx, rec))

		got, err := a.Get(ctx, "/a.txt")
		require.NoError(t, err)
		assert.Equal(t, rec.Path, got.Path)
		assert.Equal(t, rec.Name, got.Name)
		assert.Equal(t, rec.Kind, got.Kind)
		assert.Equal(t, rec.ParentPath, got.ParentPath)
		assert.Equal(t, rec.Created, got.Created)
		assert.Equal(t, rec.Modified, got.Modified)
		assert.Equal(t, rec.Permissions, got.Permissions)
		assert.Equal(t, rec.Size, got.Size)
		assert.Equal(t, []byte("hello"), got.Content)
	})

	t.Run("LargeContent", func(t *testing.T) {
		a := open(t)
		content := bytes.Repeat([]byte("webvfs "), 4096)
		require.NoError(t, a.Put(ctx, File("/big.bin", "/", content)))

		got, err := a.Get(ctx, "/big.bin")
		require.NoError(t, err)
		assert.Equal(t, content, got.Content)
	})

	t.Run("PutReplaces", func(t *testing.T) {
		a := open(t)
		require.NoError(t, a.Put(ctx, File("/f", "/", []byte("one"))))
		require.NoError(t, a.Put(ctx, File("/f", "/", []byte("two"))))

		got, err := a.Get(ctx, "/f")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got.Content)

		all, err := a.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("ChildrenIndex", func(t *testing.T) {
		a := open(t)
		for _, rec := range []*types.Record{
			Dir("/", ""),
			Dir("/home", "/"),
			Dir("/home/user", "/home"),
			File("/home/user/a.txt", "/home/user", []byte("a")),
			File("/home/user/b.txt", "/home/user", []byte("b")),
			Dir("/tmp", "/"),
		} {
			require.NoError(t, a.Put(ctx, rec))
		}

		root, err := a.GetChildren(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, []string{"/home", "/tmp"}, paths(root))

		user, err := a.GetChildren(ctx, "/home/user")
		require.NoError(t, err)
		assert.Equal(t, []string{"/home/user/a.txt", "/home/user/b.txt"}, paths(user))

		none, err := a.GetChildren(ctx, "/tmp")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ReparentMovesIndexEntry", func(t *testing.T) {
		if o.parentFromPath {
			t.Skip("adapter derives parents from paths")
		}
		a := open(t)
		require.NoError(t, a.Put(ctx, Dir("/x", "/")))
		require.NoError(t, a.Put(ctx, Dir("/y", "/")))
		require.NoError(t, a.Put(ctx, File("/x/f", "/x", []byte("f"))))

		moved := File("/x/f", "/y", []byte("f"))
		require.NoError(t, a.Put(ctx, moved))

		x, err := a.GetChildren(ctx, "/x")
		require.NoError(t, err)
		assert.Empty(t, x)
		y, err := a.GetChildren(ctx, "/y")
		require.NoError(t, err)
		assert.Equal(t, []string{"/x/f"}, paths(y))
	})

	t.Run("Delete", func(t *testing.T) {
		a := open(t)
		require.NoError(t, a.Put(ctx, Dir("/d", "/")))
		require.NoError(t, a.Put(ctx, File("/d/f", "/d", []byte("f"))))

		require.NoError(t, a.Delete(ctx, "/d/f"))
		_, err := a.Get(ctx, "/d/f")
		assert.True(t, errors.IsNotFound(err))

		children, err := a.GetChildren(ctx, "/d")
		require.NoError(t, err)
		assert.Empty(t, children)

		// deleting a missing key is not an error
		assert.NoError(t, a.Delete(ctx, "/d/f"))
	})

	t.Run("GetAllSorted", func(t *testing.T) {
		a := open(t)
		require.NoError(t, a.Put(ctx, Dir("/b", "/")))
		require.NoError(t, a.Put(ctx, Dir("/", "")))
		require.NoError(t, a.Put(ctx, Dir("/a", "/")))
		require.NoError(t, a.Put(ctx, File("/a/z", "/a", nil)))

		all, err := a.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/", "/a", "/a/z", "/b"}, paths(all))
	})
}

func paths(recs []*types.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Path)
	}
	return out
}
