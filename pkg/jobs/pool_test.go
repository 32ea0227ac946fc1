package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEveryTaskOnceInOrder(t *testing.T) {
	var calls int32
	tasks := []Task{
		{Name: "a", Run: func(context.Context) error { atomic.AddInt32(&calls, 1); return nil }},
		{Name: "b", Run: func(context.Context) error { atomic.AddInt32(&calls, 1); return errors.New("boom") }},
		{Name: "c", Run: func(context.Context) error { atomic.AddInt32(&calls, 1); return nil }},
	}

	results := NewPool("test", PoolConfig{Workers: 2}).Run(context.Background(), tasks)

	require.Len(t, results, 3)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, "a", results[0].Name)
	assert.NoError(t, results[0].Err)
	assert.EqualError(t, results[1].Err, "boom")
	assert.NoError(t, results[2].Err)
}

func TestPoolRecoversPanics(t *testing.T) {
	tasks := []Task{
		{Name: "panics", Run: func(context.Context) error { panic("bad row") }},
		{Name: "ok", Run: func(context.Context) error { return nil }},
	}

	results := NewPool("test", PoolConfig{}).Run(context.Background(), tasks)

	var panicErr *PanicError
	require.ErrorAs(t, results[0].Err, &panicErr)
	assert.Equal(t, "bad row", panicErr.Value)
	assert.NoError(t, results[1].Err)
}

func TestPoolSkipsTasksAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks := []Task{
		{Name: "first", Run: func(context.Context) error { cancel(); return errors.New("fatal") }},
		{Name: "second", Run: func(context.Context) error { t.Fatal("must not run"); return nil }},
	}

	results := NewPool("test", PoolConfig{Workers: 1}).Run(ctx, tasks)

	assert.False(t, results[0].Skipped)
	assert.True(t, results[1].Skipped)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
	assert.Equal(t, time.Duration(0), results[1].Duration)
}
