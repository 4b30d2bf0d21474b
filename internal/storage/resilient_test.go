package storage_test

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/internal/circuit"
	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/memory"
	"github.com/objectfs/webvfs/internal/storage/storagetest"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/retry"
	"github.com/objectfs/webvfs/pkg/types"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestResilientContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return storage.NewResilient("memory", memory.New(), fastRetry(), circuit.Config{}, nil)
	})
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	failures := 2
	inner.SetHooks(memory.Hooks{
		Put: func(*types.Record) error {
			if failures > 0 {
				failures--
				return stderr.New("connection reset")
			}
			return nil
		},
	})

	r := storage.NewResilient("memory", inner, fastRetry(), circuit.Config{FailureThreshold: 10}, nil)
	require.NoError(t, r.Put(ctx, storagetest.File("/f", "/", []byte("x"))))
	assert.Equal(t, 1, inner.Len())
}

func TestResilient_NotFoundIsNotRetried(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	calls := 0
	inner.SetHooks(memory.Hooks{Get: func(string) error { calls++; return nil }})

	r := storage.NewResilient("memory", inner, fastRetry(), circuit.Config{}, nil)
	_, err := r.Get(ctx, "/missing")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, circuit.StateClosed, r.Breaker().GetState())
}

func TestResilient_ExhaustionAndBreaker(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	inner.SetHooks(memory.Hooks{Put: func(*types.Record) error { return stderr.New("down") }})

	r := storage.NewResilient("memory", inner, fastRetry(),
		circuit.Config{FailureThreshold: 3, Timeout: time.Minute}, nil)

	err := r.Put(ctx, storagetest.File("/f", "/", nil))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRetryExhausted, errors.CodeOf(err))
	assert.Equal(t, circuit.StateOpen, r.Breaker().GetState())

	err = r.Put(ctx, storagetest.File("/f", "/", nil))
	assert.True(t, stderr.Is(err, errors.NewError(errors.ErrCodeCircuitOpen, "")), "got %v", err)
}
