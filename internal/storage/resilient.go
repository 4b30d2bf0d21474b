package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/circuit"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/retry"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Resilient wraps an Adapter with retries and a circuit breaker. Errors that
// are not already classified are reported as STORAGE_READ or STORAGE_WRITE
// so the retry policy can recognize them.
type Resilient struct {
	inner   Adapter
	retryer *retry.Retryer
	breaker *circuit.CircuitBreaker
	logger  *zap.Logger
}

var _ Adapter = (*Resilient)(nil)

// NewResilient decorates inner. name labels the breaker in logs.
func NewResilient(name string, inner Adapter, retryCfg retry.Config, breakerCfg circuit.Config, logger *zap.Logger) *Resilient {
	logger = utils.OrNop(logger).Named("storage").With(zap.String("backend", name))

	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(name string, from, to circuit.State) {
			logger.Warn("storage circuit breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Debug("retrying storage operation",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}

	return &Resilient{
		inner:   inner,
		retryer: retry.New(retryCfg),
		breaker: circuit.NewCircuitBreaker(name, breakerCfg),
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (r *Resilient) Breaker() *circuit.CircuitBreaker {
	return r.breaker
}

// Init implements Adapter. Initialization is retried but bypasses the breaker.
func (r *Resilient) Init(ctx context.Context) error {
	return r.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return errors.Wrap(r.inner.Init(ctx), errors.ErrCodeStorageRead, "init")
	})
}

// Get implements Adapter.
func (r *Resilient) Get(ctx context.Context, path string) (*types.Record, error) {
	var rec *types.Record
	err := r.call(ctx, errors.ErrCodeStorageRead, "get", func(ctx context.Context) error {
		var err error
		rec, err = r.inner.Get(ctx, path)
		return err
	})
	return rec, err
}

// Put implements Adapter.
func (r *Resilient) Put(ctx context.Context, rec *types.Record) error {
	return r.call(ctx, errors.ErrCodeStorageWrite, "put", func(ctx context.Context) error {
		return r.inner.Put(ctx, rec)
	})
}

// Delete implements Adapter.
func (r *Resilient) Delete(ctx context.Context, path string) error {
	return r.call(ctx, errors.ErrCodeStorageWrite, "delete", func(ctx context.Context) error {
		return r.inner.Delete(ctx, path)
	})
}

// GetChildren implements Adapter.
func (r *Resilient) GetChildren(ctx context.Context, parent string) ([]*types.Record, error) {
	var recs []*types.Record
	err := r.call(ctx, errors.ErrCodeStorageRead, "get_children", func(ctx context.Context) error {
		var err error
		recs, err = r.inner.GetChildren(ctx, parent)
		return err
	})
	return recs, err
}

// GetAll implements Adapter.
func (r *Resilient) GetAll(ctx context.Context) ([]*types.Record, error) {
	var recs []*types.Record
	err := r.call(ctx, errors.ErrCodeStorageRead, "get_all", func(ctx context.Context) error {
		var err error
		recs, err = r.inner.GetAll(ctx)
		return err
	})
	return recs, err
}

// Close implements Adapter.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

// call runs fn through the breaker, retrying each attempt. An open breaker
// is not retried.
func (r *Resilient) call(ctx context.Context, code errors.ErrorCode, op string, fn func(context.Context) error) error {
	return r.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return r.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
			return errors.Wrap(fn(ctx), code, op)
		})
	})
}
