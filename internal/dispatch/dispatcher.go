package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/paramsweep/internal/monitoring"
)

// Runner executes one task and returns its run directory.
type Runner interface {
	Execute(ctx context.Context, t *Task) (string, error)
}

// Status of a finished task.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Result is the outcome of one task.
type Result struct {
	Task     *Task
	RunDir   string
	Status   string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Dispatcher runs tasks on a bounded number of workers. A failing task is
// recorded in its Result and never stops its siblings.
type Dispatcher struct {
	Runner   Runner
	Parallel int
	Metrics  *Metrics

	// OnResult, when set, is called once per finished task. Calls are
	// serialised.
	OnResult func(Result)
}

// Run executes tasks and returns their results in task order. The returned
// error is non-nil only when the dispatcher itself is misconfigured.
// Tasks not yet started when ctx is cancelled are reported as skipped.
func (d *Dispatcher) Run(ctx context.Context, tasks []*Task) ([]Result, error) {
	if d.Parallel < 1 {
		return nil, fmt.Errorf("parallel must be a positive integer, got %d", d.Parallel)
	}
	if d.Runner == nil {
		return nil, errors.New("dispatcher has no runner")
	}

	results := make([]Result, len(tasks))
	var (
		mu       sync.Mutex
		finished int
		failed   int
	)
	report := func(i int, r Result) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		finished++
		if r.Status != StatusOK {
			failed++
			monitoring.Logf("%s: %v", r.Task, r.Err)
		}
		if d.Metrics != nil {
			d.Metrics.RunsTotal.WithLabelValues(r.Status).Inc()
			if r.Status != StatusSkipped {
				d.Metrics.RunDuration.Observe(r.Duration.Seconds())
			}
		}
		if d.OnResult != nil {
			d.OnResult(r)
		}
		monitoring.Logf("progress: %d/%d runs finished (%d failed)", finished, len(tasks), failed)
	}

	var g errgroup.Group
	g.SetLimit(d.Parallel)
	for i, t := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				report(i, Result{
					Task:   t,
					Status: StatusSkipped,
					Err:    &TaskError{Index: t.Index, ID: t.ID, Stage: StageSkipped, Err: err},
				})
				return nil
			}

			if d.Metrics != nil {
				d.Metrics.InFlight.Inc()
				defer d.Metrics.InFlight.Dec()
			}
			start := time.Now()
			dir, err := d.Runner.Execute(ctx, t)
			r := Result{Task: t, RunDir: dir, Status: StatusOK, Started: start, Duration: time.Since(start)}
			if err != nil {
				var te *TaskError
				if !errors.As(err, &te) {
					err = &TaskError{Index: t.Index, ID: t.ID, RunDir: dir, Stage: StageSimulate, Err: err}
				}
				r.Status = StatusFailed
				r.Err = err
			}
			report(i, r)
			return nil
		})
	}
	// Workers never return errors; failures live in the results.
	_ = g.Wait()
	return results, nil
}

// Failed returns the results that did not finish successfully.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Status != StatusOK {
			out = append(out, r)
		}
	}
	return out
}
