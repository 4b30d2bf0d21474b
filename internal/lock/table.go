// Package lock provides per-path mutual exclusion for filesystem mutations.
//
// Each path owns a FIFO chain of tickets: an acquirer waits for the ticket in
// front of it to be released and then holds the path until it releases its
// own ticket. Paths are independent, so operations on unrelated paths never
// wait for each other.
package lock

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/pkg/utils"
)

// Release gives up a held path. Calling it more than once is a no-op.
type Release func()

type chain struct {
	tail    chan struct{}
	tickets int
}

// Table grants exclusive access to paths in arrival order.
type Table struct {
	mu     sync.Mutex
	chains map[string]*chain
	logger *zap.Logger

	// observe, when set, receives the time each acquisition spent queued.
	observe func(path string, waited time.Duration)
}

// NewTable creates an empty mutex table.
func NewTable(logger *zap.Logger) *Table {
	return &Table{
		chains: make(map[string]*chain),
		logger: utils.OrNop(logger).Named("lock"),
	}
}

// SetWaitObserver installs a callback reporting queue time per acquisition.
func (t *Table) SetWaitObserver(fn func(path string, waited time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observe = fn
}

// Acquire blocks until path is free or ctx is done. Waiters are served in
// the order they called Acquire.
func (t *Table) Acquire(ctx context.Context, path string) (Release, error) {
	ticket := make(chan struct{})

	t.mu.Lock()
	c, ok := t.chains[path]
	if !ok {
		c = &chain{}
		t.chains[path] = c
	}
	prev := c.tail
	c.tail = ticket
	c.tickets++
	observe := t.observe
	t.mu.Unlock()

	start := time.Now()
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain intact: our ticket is released as soon as the
			// holder in front of us lets go.
			go func() {
				<-prev
				t.release(path, ticket)
			}()
			t.logger.Debug("lock wait canceled", zap.String("path", path), zap.Error(ctx.Err()))
			return nil, ctx.Err()
		}
	}
	if observe != nil {
		observe(path, time.Since(start))
	}

	var once sync.Once
	return func() {
		once.Do(func() { t.release(path, ticket) })
	}, nil
}

// AcquireAll locks every distinct path in lexicographic order, so two callers
// naming the same paths in different orders cannot deadlock. On failure the
// locks taken so far are released.
func (t *Table) AcquireAll(ctx context.Context, paths ...string) (Release, error) {
	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	sort.Strings(unique)

	releases := make([]Release, 0, len(unique))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, p := range unique {
		r, err := t.Acquire(ctx, p)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, r)
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

// Held reports whether path is held or has waiters.
func (t *Table) Held(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.chains[path]
	return ok
}

// Len returns the number of paths that are held or awaited.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chains)
}

func (t *Table) release(path string, ticket chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	close(ticket)
	c, ok := t.chains[path]
	if !ok {
		return
	}
	c.tickets--
	if c.tickets == 0 {
		delete(t.chains, path)
	}
}
