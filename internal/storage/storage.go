// Package storage defines the durable record store behind the node cache and
// a decorator that adds retries and circuit breaking to any implementation.
//
// Implementations live in subpackages: memory (tests and ephemeral use),
// bolt (embedded bbolt database) and s3 (object storage). The backup
// subpackage is the local fallback written when the primary store rejects
// the initial save.
package storage

import (
	"context"
	"sort"

	"github.com/objectfs/webvfs/pkg/types"
)

// Adapter persists records keyed by path, with a secondary index by parent
// path. Get returns a NOT_FOUND error for a missing key; Delete of a missing
// key succeeds. Put replaces any existing record and moves it in the parent
// index when its ParentPath changed.
type Adapter interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, path string) (*types.Record, error)
	Put(ctx context.Context, rec *types.Record) error
	Delete(ctx context.Context, path string) error
	GetChildren(ctx context.Context, parent string) ([]*types.Record, error)
	GetAll(ctx context.Context) ([]*types.Record, error)
	Close() error
}

// SortRecords orders records by path, so parents precede their children.
func SortRecords(recs []*types.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
}

// CloneRecord deep-copies rec.
func CloneRecord(rec *types.Record) *types.Record {
	if rec == nil {
		return nil
	}
	c := *rec
	if rec.Content != nil {
		c.Content = append([]byte(nil), rec.Content...)
	}
	return &c
}
