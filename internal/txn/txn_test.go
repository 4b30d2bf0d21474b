package txn

import (
	"context"
	stderr "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/webvfs/pkg/errors"
)

// recorder builds steps that append to a shared log.
type recorder struct {
	log []string
}

func (r *recorder) step(name string, fail bool) Step {
	return Step{
		Kind: KindModify,
		Path: "/" + name,
		Do: func(context.Context) error {
			if fail {
				return errors.NewError(errors.ErrCodeFSError, name+" failed")
			}
			r.log = append(r.log, "do "+name)
			return nil
		},
		Undo: func(context.Context) error {
			r.log = append(r.log, "undo "+name)
			return nil
		},
	}
}

func TestTransaction_CommitsInOrder(t *testing.T) {
	rec := &recorder{}
	tx := New(nil)
	require.NoError(t, tx.Add(rec.step("a", false)))
	require.NoError(t, tx.Add(rec.step("b", false)))
	require.NoError(t, tx.Add(rec.step("c", false)))

	require.NoError(t, tx.Execute(context.Background()))
	assert.Equal(t, []string{"do a", "do b", "do c"}, rec.log)
	assert.Equal(t, 3, tx.Executed())
	assert.Equal(t, 3, tx.Len())
	assert.NotEmpty(t, tx.ID())
}

func TestTransaction_RollsBackInReverse(t *testing.T) {
	rec := &recorder{}
	tx := New(nil)
	require.NoError(t, tx.Add(rec.step("a", false)))
	require.NoError(t, tx.Add(rec.step("b", false)))
	require.NoError(t, tx.Add(rec.step("c", true)))
	require.NoError(t, tx.Add(rec.step("d", false)))

	err := tx.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c failed")
	assert.Equal(t, []string{"do a", "do b", "undo b", "undo a"}, rec.log)
	assert.Equal(t, 0, tx.Executed())
}

func TestTransaction_ExecuteOnce(t *testing.T) {
	tx := New(nil)
	require.NoError(t, tx.Execute(context.Background()))

	err := tx.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFSError, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "already executed")

	err = tx.Add(Step{Kind: KindCreate, Path: "/x", Do: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestTransaction_AddRejectsNilAction(t *testing.T) {
	tx := New(nil)
	assert.Error(t, tx.Add(Step{Kind: KindCreate, Path: "/x"}))
}

func TestTransaction_UndoFailureKeepsOriginalError(t *testing.T) {
	undoErr := stderr.New("disk on fire")
	stepErr := errors.NotFound("/b")

	tx := New(nil)
	require.NoError(t, tx.Add(Step{
		Kind: KindCreate,
		Path: "/a",
		Do:   func(context.Context) error { return nil },
		Undo: func(context.Context) error { return undoErr },
	}))
	require.NoError(t, tx.Add(Step{
		Kind: KindDelete,
		Path: "/b",
		Do:   func(context.Context) error { return stepErr },
	}))

	err := tx.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	var rbErr *RollbackError
	require.ErrorAs(t, err, &rbErr)
	assert.ErrorIs(t, rbErr.Undo, undoErr)
}

func TestTransaction_PanicIsStepFailure(t *testing.T) {
	rec := &recorder{}
	tx := New(nil)
	require.NoError(t, tx.Add(rec.step("a", false)))
	require.NoError(t, tx.Add(Step{
		Kind: KindMove,
		Path: "/boom",
		Do:   func(context.Context) error { panic("unexpected") },
	}))

	err := tx.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, []string{"do a", "undo a"}, rec.log)
}

func TestTransaction_CanceledContextRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	tx := New(nil)
	require.NoError(t, tx.Add(Step{
		Kind: KindCreate,
		Path: "/a",
		Do: func(context.Context) error {
			rec.log = append(rec.log, "do a")
			cancel()
			return nil
		},
		Undo: func(ctx context.Context) error {
			// undo runs with a live context
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rec.log = append(rec.log, "undo a")
			return nil
		},
	}))
	require.NoError(t, tx.Add(rec.step("b", false)))

	err := tx.Execute(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"do a", "undo a"}, rec.log)
}
