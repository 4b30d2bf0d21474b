package vfs

import (
	"sync"

	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
)

// quota is the running total of file bytes. It is only changed through
// transaction steps so it always matches the cached file sizes.
type quota struct {
	mu    sync.Mutex
	used  int64
	limit int64
}

func newQuota(limit int64) *quota {
	return &quota{limit: limit}
}

// reserve adds delta to the total, failing with QUOTA_EXCEEDED when a
// positive delta would cross the limit. A non-positive limit disables the
// check.
func (q *quota) reserve(path string, delta int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if delta > 0 && q.limit > 0 && q.used+delta > q.limit {
		return errors.QuotaExceeded(path, delta, q.limit-q.used)
	}
	q.used += delta
	return nil
}

// adjust changes the total unconditionally; used by undo steps.
func (q *quota) adjust(delta int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used += delta
}

func (q *quota) reset(used int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used = used
}

func (q *quota) usage() types.Usage {
	q.mu.Lock()
	defer q.mu.Unlock()
	u := types.Usage{Used: q.used, Limit: q.limit}
	if q.limit > 0 {
		u.Available = q.limit - q.used
		if u.Available < 0 {
			u.Available = 0
		}
	}
	return u
}
