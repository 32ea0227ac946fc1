package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a named unit of work executed exactly once by a Pool.
type Task struct {
	Name string
	Run  func(context.Context) error
}

// Result reports the outcome of a single task.
type Result struct {
	Name     string
	Err      error
	Skipped  bool
	Started  time.Time
	Duration time.Duration
}

// PanicError carries a recovered panic so one broken task cannot take down its siblings.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// PoolConfig configures worker pool behaviour.
type PoolConfig struct {
	Workers int
	Logger  *zap.Logger
}

// Pool runs a fixed batch of tasks over a bounded number of goroutines. Failed tasks are never retried.
type Pool struct {
	name    string
	workers int
	logger  *zap.Logger
}

// NewPool builds a pool. Workers below one run tasks sequentially.
func NewPool(name string, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{name: name, workers: cfg.Workers, logger: cfg.Logger}
}

// Run executes tasks and returns one Result per task in submission order. Tasks that had not started when
// ctx was cancelled are reported as skipped with the context error.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	workers := p.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = p.execute(ctx, tasks[i])
			}
		}()
	}

	for i := range tasks {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	p.logger.Debug("pool finished", zap.String("pool", p.name), zap.Int("tasks", len(tasks)), zap.Int("workers", workers))
	return results
}

func (p *Pool) execute(ctx context.Context, task Task) (res Result) {
	res.Name = task.Name
	if err := ctx.Err(); err != nil {
		res.Skipped = true
		res.Err = err
		return res
	}

	res.Started = time.Now()
	defer func() {
		res.Duration = time.Since(res.Started)
		if r := recover(); r != nil {
			res.Err = &PanicError{Value: r, Stack: debug.Stack()}
			p.logger.Error("task panicked", zap.String("pool", p.name), zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()

	res.Err = task.Run(ctx)
	return res
}
