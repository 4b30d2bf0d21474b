// Package backup is the local fallback store written when the primary
// storage backend rejects a save. Each record is one JSON file named by the
// SHA-256 of its path, on any afero filesystem.
package backup

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

const fileSuffix = ".json"

// Config represents backup store configuration
type Config struct {
	Directory string `yaml:"directory" split_words:"true"`
}

// entry is the on-disk form.
type entry struct {
	Record   *types.Record `json:"record"`
	SavedAt  time.Time     `json:"saved_at"`
	Checksum string        `json:"checksum"`
}

// Store is a flat key-value store of records.
type Store struct {
	fs        afero.Fs
	directory string
	logger    *zap.Logger
	mu        sync.Mutex
}

// New creates a store rooted at directory on fs. A nil fs means the OS
// filesystem.
func New(fs afero.Fs, config Config, logger *zap.Logger) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if config.Directory == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "backup directory is required")
	}
	if err := fs.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, errors.NewError(errors.ErrCodeInitFailed, "create backup directory").
			WithPath(config.Directory).WithCause(err)
	}
	return &Store{
		fs:        fs,
		directory: config.Directory,
		logger:    utils.OrNop(logger).Named("backup"),
	}, nil
}

// NewMemory creates a store on an in-memory filesystem.
func NewMemory(logger *zap.Logger) *Store {
	s, err := New(afero.NewMemMapFs(), Config{Directory: "/backup"}, logger)
	if err != nil {
		panic("backup: in-memory store initialization failed: " + err.Error())
	}
	return s
}

// Put writes rec, replacing any earlier backup of the same path.
func (s *Store) Put(rec *types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(entry{
		Record:   rec,
		SavedAt:  time.Now(),
		Checksum: checksum(rec.Content),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "backup put")
	}

	target := s.filePath(rec.Path)
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "write backup").WithPath(rec.Path).WithCause(err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return errors.NewError(errors.ErrCodeStorageWrite, "commit backup").WithPath(rec.Path).WithCause(err)
	}
	return nil
}

// Get returns the backup of path, or a NOT_FOUND error.
func (s *Store) Get(path string) (*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(s.filePath(path))
	if os.IsNotExist(err) {
		return nil, errors.NotFound(path).WithOperation("backup get")
	}
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageRead, "read backup").WithPath(path).WithCause(err)
	}
	return rec, nil
}

// Delete removes the backup of path if there is one.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.filePath(path))
	if err != nil && !os.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeStorageWrite, "remove backup").WithPath(path).WithCause(err)
	}
	return nil
}

// All returns every readable backup, sorted by path. Corrupt files are
// logged and skipped.
func (s *Store) All() ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos, err := afero.ReadDir(s.fs, s.directory)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageRead, "list backups").WithCause(err)
	}

	var out []*types.Record
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), fileSuffix) {
			continue
		}
		rec, err := s.read(filepath.Join(s.directory, info.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable backup", zap.String("file", info.Name()), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Len returns the number of stored backups.
func (s *Store) Len() int {
	recs, err := s.All()
	if err != nil {
		return 0
	}
	return len(recs)
}

// Clear removes every backup.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos, err := afero.ReadDir(s.fs, s.directory)
	if err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "list backups").WithCause(err)
	}
	for _, info := range infos {
		if strings.HasSuffix(info.Name(), fileSuffix) {
			if err := s.fs.Remove(filepath.Join(s.directory, info.Name())); err != nil {
				return errors.NewError(errors.ErrCodeStorageWrite, "remove backup").WithCause(err)
			}
		}
	}
	return nil
}

func (s *Store) read(file string) (*types.Record, error) {
	data, err := afero.ReadFile(s.fs, file)
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	if e.Record == nil {
		return nil, fmt.Errorf("backup has no record")
	}
	if checksum(e.Record.Content) != e.Checksum {
		return nil, fmt.Errorf("checksum mismatch for %s", e.Record.Path)
	}
	return e.Record, nil
}

func (s *Store) filePath(path string) string {
	hash := sha256.Sum256([]byte(path))
	return filepath.Join(s.directory, fmt.Sprintf("%x", hash)+fileSuffix)
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}
