// Package bolt stores records in an embedded bbolt database.
//
// Layout:
//
//	nodes/<path>                 CBOR record (see internal/storage/codec)
//	by_parent/<parent>/<path>    empty value; one nested bucket per parent
package bolt

import (
	"context"
	"os"
	"path/filepath"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/codec"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

var (
	nodesBucket    = []byte("nodes")
	byParentBucket = []byte("by_parent")
)

// Config represents bolt backend configuration
type Config struct {
	Path        string        `yaml:"path" split_words:"true"`
	OpenTimeout time.Duration `yaml:"open_timeout" split_words:"true"`
	NoSync      bool          `yaml:"no_sync" split_words:"true"`
}

// Adapter is a bbolt-backed storage.Adapter.
type Adapter struct {
	config Config
	db     *bbolt.DB
	logger *zap.Logger
}

var _ storage.Adapter = (*Adapter)(nil)

// New creates an adapter; the database is opened by Init.
func New(config Config, logger *zap.Logger) *Adapter {
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = time.Second
	}
	return &Adapter{
		config: config,
		logger: utils.OrNop(logger).Named("bolt"),
	}
}

// Init opens the database file and creates the buckets.
func (a *Adapter) Init(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	if a.config.Path == "" {
		return errors.NewError(errors.ErrCodeInvalidConfig, "bolt path is required")
	}
	if dir := filepath.Dir(a.config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrCodeInitFailed, "bolt open")
		}
	}

	db, err := bbolt.Open(a.config.Path, 0o600, &bbolt.Options{Timeout: a.config.OpenTimeout})
	if err != nil {
		return errors.NewError(errors.ErrCodeInitFailed, "open bolt database").
			WithPath(a.config.Path).WithCause(err)
	}
	db.NoSync = a.config.NoSync

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(nodesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(byParentBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return errors.NewError(errors.ErrCodeInitFailed, "create bolt buckets").WithCause(err)
	}

	a.db = db
	a.logger.Info("bolt store opened", zap.String("path", a.config.Path))
	return nil
}

// Get implements storage.Adapter.
func (a *Adapter) Get(ctx context.Context, path string) (*types.Record, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var rec *types.Record
	err := a.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(nodesBucket).Get([]byte(path))
		if data == nil {
			return errors.NotFound(path).WithOperation("get")
		}
		var err error
		rec, err = codec.Unmarshal(data)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "get")
	}
	return rec, nil
}

// Put implements storage.Adapter.
func (a *Adapter) Put(ctx context.Context, rec *types.Record) error {
	if err := a.ready(); err != nil {
		return err
	}
	data, err := codec.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "put")
	}
	err = a.db.Update(func(tx *bbolt.Tx) error {
		nodes := tx.Bucket(nodesBucket)
		key := []byte(rec.Path)
		if old := nodes.Get(key); old != nil {
			prev, err := codec.Unmarshal(old)
			if err == nil && prev.ParentPath != rec.ParentPath {
				if err := unindex(tx, prev.ParentPath, rec.Path); err != nil {
					return err
				}
			}
		}
		if err := nodes.Put(key, data); err != nil {
			return err
		}
		if rec.ParentPath == "" {
			return nil
		}
		children, err := tx.Bucket(byParentBucket).CreateBucketIfNotExists([]byte(rec.ParentPath))
		if err != nil {
			return err
		}
		return children.Put(key, []byte{})
	})
	return errors.Wrap(err, errors.ErrCodeStorageWrite, "put")
}

// Delete implements storage.Adapter.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	if err := a.ready(); err != nil {
		return err
	}
	err := a.db.Update(func(tx *bbolt.Tx) error {
		nodes := tx.Bucket(nodesBucket)
		key := []byte(path)
		old := nodes.Get(key)
		if old == nil {
			return nil
		}
		if prev, err := codec.Unmarshal(old); err == nil {
			if err := unindex(tx, prev.ParentPath, path); err != nil {
				return err
			}
		}
		return nodes.Delete(key)
	})
	return errors.Wrap(err, errors.ErrCodeStorageWrite, "delete")
}

// GetChildren implements storage.Adapter.
func (a *Adapter) GetChildren(ctx context.Context, parent string) ([]*types.Record, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var out []*types.Record
	err := a.db.View(func(tx *bbolt.Tx) error {
		children := tx.Bucket(byParentBucket).Bucket([]byte(parent))
		if children == nil {
			return nil
		}
		nodes := tx.Bucket(nodesBucket)
		return children.ForEach(func(k, _ []byte) error {
			data := nodes.Get(k)
			if data == nil {
				a.logger.Warn("dangling parent index entry",
					zap.String("parent", parent), zap.ByteString("path", k))
				return nil
			}
			rec, err := codec.Unmarshal(data)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "get_children")
	}
	storage.SortRecords(out)
	return out, nil
}

// GetAll implements storage.Adapter.
func (a *Adapter) GetAll(ctx context.Context) ([]*types.Record, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var out []*types.Record
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(_, v []byte) error {
			rec, err := codec.Unmarshal(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "get_all")
	}
	storage.SortRecords(out)
	return out, nil
}

// Close implements storage.Adapter.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *Adapter) ready() error {
	if a.db == nil {
		return errors.NewError(errors.ErrCodeStorageRead, "bolt store is not open")
	}
	return nil
}

func unindex(tx *bbolt.Tx, parent, path string) error {
	if parent == "" {
		return nil
	}
	index := tx.Bucket(byParentBucket)
	children := index.Bucket([]byte(parent))
	if children == nil {
		return nil
	}
	if err := children.Delete([]byte(path)); err != nil {
		return err
	}
	if k, _ := children.Cursor().First(); k == nil {
		return index.DeleteBucket([]byte(parent))
	}
	return nil
}
