// Package txn runs a multi-step mutation as a unit: either every step takes
// effect, or the executed steps are undone in reverse order.
package txn

import (
	"context"
	stderr "errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Kind labels a step for logging.
type Kind string

const (
	KindCreate Kind = "create"
	KindDelete Kind = "delete"
	KindModify Kind = "modify"
	KindMove   Kind = "move"
)

// Step is one reversible mutation. Undo is only called if Do succeeded and
// may be nil for steps with nothing to reverse.
type Step struct {
	Kind Kind
	Path string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Transaction is an ordered list of steps executed at most once.
type Transaction struct {
	id     string
	logger *zap.Logger

	mu       sync.Mutex
	steps    []Step
	started  bool
	executed int
}

// New creates an empty transaction.
func New(logger *zap.Logger) *Transaction {
	id := uuid.NewString()
	return &Transaction{
		id:     id,
		logger: utils.OrNop(logger).Named("txn").With(zap.String("txn_id", id)),
	}
}

// ID returns the transaction identifier used in log lines.
func (t *Transaction) ID() string {
	return t.id
}

// Add appends a step. Steps cannot be added once Execute has been called.
func (t *Transaction) Add(step Step) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.NewError(errors.ErrCodeFSError, "cannot add step to a started transaction").
			WithPath(step.Path)
	}
	if step.Do == nil {
		return errors.NewError(errors.ErrCodeFSError, "transaction step has no action").
			WithPath(step.Path)
	}
	t.steps = append(t.steps, step)
	return nil
}

// Execute runs the steps in order. If a step fails, every step that already
// succeeded is undone in reverse order and the step's error is returned.
// Undo failures are logged and joined onto the returned error's chain without
// replacing it.
func (t *Transaction) Execute(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.NewError(errors.ErrCodeFSError, "transaction already executed")
	}
	t.started = true
	steps := t.steps
	t.mu.Unlock()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return t.fail(ctx, steps[:i], step, errors.Wrap(err, errors.ErrCodeFSError, string(step.Kind)))
		}
		if err := run(ctx, step.Do); err != nil {
			return t.fail(ctx, steps[:i], step, err)
		}
		t.mu.Lock()
		t.executed = i + 1
		t.mu.Unlock()
	}

	if len(steps) > 1 {
		t.logger.Debug("transaction committed", zap.Int("steps", len(steps)))
	}
	return nil
}

// Executed returns how many steps completed successfully.
func (t *Transaction) Executed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

// Len returns the number of steps.
func (t *Transaction) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

func (t *Transaction) fail(ctx context.Context, done []Step, failed Step, cause error) error {
	t.logger.Debug("transaction step failed, rolling back",
		zap.String("kind", string(failed.Kind)),
		zap.String("path", failed.Path),
		zap.Int("undo", len(done)),
		zap.Error(cause))

	// Undo must run even if the caller's context is already canceled.
	undoCtx := context.WithoutCancel(ctx)

	var undoErrs []error
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		if err := run(undoCtx, step.Undo); err != nil {
			t.logger.Error("rollback step failed",
				zap.String("kind", string(step.Kind)),
				zap.String("path", step.Path),
				zap.Error(err))
			undoErrs = append(undoErrs, fmt.Errorf("undo %s %s: %w", step.Kind, step.Path, err))
		}
	}

	t.mu.Lock()
	t.executed = 0
	t.mu.Unlock()

	if len(undoErrs) == 0 {
		return cause
	}
	return &RollbackError{Cause: cause, Undo: stderr.Join(undoErrs...)}
}

// RollbackError is returned when a step failed and some undo actions failed
// too. It unwraps to the original step error.
type RollbackError struct {
	Cause error
	Undo  error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback incomplete: %v)", e.Cause, e.Undo)
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf(errors.ErrCodeFSError, "transaction step panicked: %v", r)
		}
	}()
	return fn(ctx)
}
