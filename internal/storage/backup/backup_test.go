package backup

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/internal/storage/storagetest"
	"github.com/objectfs/webvfs/pkg/errors"
)

func TestStore_PutGetDelete(t *testing.T) {
	s := NewMemory(nil)

	require.NoError(t, s.Put(storagetest.File("/home/user/a.txt", "/home/user", []byte("draft"))))
	got, err := s.Get("/home/user/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "draft", string(got.Content))

	require.NoError(t, s.Put(storagetest.File("/home/user/a.txt", "/home/user", []byte("final"))))
	got, err = s.Get("/home/user/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "final", string(got.Content))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete("/home/user/a.txt"))
	_, err = s.Get("/home/user/a.txt")
	assert.True(t, errors.IsNotFound(err))
	assert.NoError(t, s.Delete("/home/user/a.txt"))
}

func TestStore_AllSortedAndClear(t *testing.T) {
	s := NewMemory(nil)
	require.NoError(t, s.Put(storagetest.Dir("/tmp", "/")))
	require.NoError(t, s.Put(storagetest.Dir("/", "")))
	require.NoError(t, s.Put(storagetest.Dir("/home", "/")))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/", all[0].Path)
	assert.Equal(t, "/home", all[1].Path)
	assert.Equal(t, "/tmp", all[2].Path)

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Len())
}

func TestStore_SkipsCorruptFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, Config{Directory: "/bk"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Put(storagetest.File("/ok", "/", []byte("ok"))))
	require.NoError(t, afero.WriteFile(fs, "/bk/garbage.json", []byte("{not json"), 0o644))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "/ok", all[0].Path)
}

func TestStore_DetectsTamperedContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, Config{Directory: "/bk"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(storagetest.File("/f", "/", []byte("abc"))))

	file := s.filePath("/f")
	data, err := afero.ReadFile(fs, file)
	require.NoError(t, err)
	// "abc" is base64 "YWJj"; swap it for "xyz" ("eHl6")
	tampered := []byte(strings.Replace(string(data), "YWJj", "eHl6", 1))
	require.NoError(t, afero.WriteFile(fs, file, tampered, 0o644))

	_, err = s.Get("/f")
	assert.Equal(t, errors.ErrCodeStorageRead, errors.CodeOf(err))
}

func TestNew_RequiresDirectory(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), Config{}, nil)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}
