package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"go.uber.org/zap"
)

func newPool(workers, tasks int, logger *zap.Logger) *pond.WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > tasks {
		workers = tasks
	}
	return pond.New(
		workers,
		tasks,
		pond.MinWorkers(1),
		pond.IdleTimeout(30*time.Second),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("worker pool panic recovered", zap.Any("panic", p))
		}),
	)
}

// RunAll executes specs concurrently, one whole run per task, and returns
// results in the order of specs. Runs share nothing mutable, so each result
// is identical to running its spec alone. The returned error joins every
// failed run's error; results of failed runs are still returned.
func (e *Engine) RunAll(ctx context.Context, specs []RunSpec) ([]*Result, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	results := make([]*Result, len(specs))
	errs := make([]error, len(specs))

	pool := newPool(e.workers, len(specs), e.logger)
	for i, spec := range specs {
		i, spec := i, spec
		pool.Submit(func() {
			defer func() {
				if p := recover(); p != nil {
					errs[i] = fmt.Errorf("run %d (%s) panicked: %v", i, spec.Name, p)
				}
			}()
			res, err := e.Run(ctx, spec)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("run %d (%s): %w", i, spec.Name, err)
			}
		})
	}
	pool.StopAndWait()
	return results, errors.Join(errs...)
}
