package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AcquireRelease(t *testing.T) {
	tbl := NewTable(nil)

	release, err := tbl.Acquire(context.Background(), "/a")
	require.NoError(t, err)
	assert.True(t, tbl.Held("/a"))
	assert.False(t, tbl.Held("/b"))

	release()
	release() // second call is a no-op
	assert.False(t, tbl.Held("/a"))
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_IndependentPaths(t *testing.T) {
	tbl := NewTable(nil)

	ra, err := tbl.Acquire(context.Background(), "/a")
	require.NoError(t, err)
	defer ra()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rb, err := tbl.Acquire(ctx, "/b")
	require.NoError(t, err)
	rb()
}

func TestTable_FIFOOrder(t *testing.T) {
	tbl := NewTable(nil)
	first, err := tbl.Acquire(context.Background(), "/f")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := tbl.Acquire(context.Background(), "/f")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		// let goroutine i join the queue before i+1
		require.Eventually(t, func() bool {
			tbl.mu.Lock()
			defer tbl.mu.Unlock()
			return tbl.chains["/f"].tickets == i+2
		}, time.Second, time.Millisecond)
	}

	first()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_MutualExclusion(t *testing.T) {
	tbl := NewTable(nil)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := tbl.Acquire(context.Background(), "/shared")
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			r()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestTable_CancelWhileQueued(t *testing.T) {
	tbl := NewTable(nil)
	holder, err := tbl.Acquire(context.Background(), "/c")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = tbl.Acquire(ctx, "/c")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a third waiter behind the canceled one still gets the lock
	done := make(chan struct{})
	go func() {
		r, err := tbl.Acquire(context.Background(), "/c")
		if err == nil {
			r()
		}
		close(done)
	}()

	holder()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter behind a canceled acquisition never ran")
	}
	require.Eventually(t, func() bool { return tbl.Len() == 0 }, time.Second, time.Millisecond)
}

func TestTable_AcquireAllOrdersAndDedupes(t *testing.T) {
	tbl := NewTable(nil)

	release, err := tbl.AcquireAll(context.Background(), "/z", "/a", "/z", "/m")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())
	release()
	release()
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_AcquireAllOppositeOrdersDoNotDeadlock(t *testing.T) {
	tbl := NewTable(nil)
	var wg sync.WaitGroup
	var completed int32

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r, err := tbl.AcquireAll(context.Background(), "/x", "/y")
			if err == nil {
				atomic.AddInt32(&completed, 1)
				r()
			}
		}()
		go func() {
			defer wg.Done()
			r, err := tbl.AcquireAll(context.Background(), "/y", "/x")
			if err == nil {
				atomic.AddInt32(&completed, 1)
				r()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("AcquireAll deadlocked")
	}
	assert.Equal(t, int32(100), completed)
}

func TestTable_AcquireAllReleasesOnCancel(t *testing.T) {
	tbl := NewTable(nil)
	holder, err := tbl.Acquire(context.Background(), "/b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = tbl.AcquireAll(ctx, "/a", "/b")
	require.Error(t, err)

	// "/a" was taken first and must have been given back
	ra, err := tbl.Acquire(context.Background(), "/a")
	require.NoError(t, err)
	ra()
	holder()
}

func TestTable_WaitObserver(t *testing.T) {
	tbl := NewTable(nil)
	var observed int32
	tbl.SetWaitObserver(func(path string, waited time.Duration) {
		assert.Equal(t, "/o", path)
		atomic.AddInt32(&observed, 1)
	})

	r, err := tbl.Acquire(context.Background(), "/o")
	require.NoError(t, err)
	r()
	assert.Equal(t, int32(1), atomic.LoadInt32(&observed))
}
