package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner fails every task whose index is in fail and tracks peak
// concurrency.
type fakeRunner struct {
	fail map[int]bool

	active atomic.Int32
	peak   atomic.Int32
	mu     sync.Mutex
	ran    []int
}

func (f *fakeRunner) Execute(_ context.Context, t *Task) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.ran = append(f.ran, t.Index)
	f.mu.Unlock()

	dir := fmt.Sprintf("/save/run_%010d", t.Index)
	if f.fail[t.Index] {
		return dir, errors.New("simulation crashed")
	}
	return dir, nil
}

func makeTasks(n int) []*Task {
	tasks := make([]*Task, n)
	for i := range tasks {
		tasks[i] = &Task{Index: i, ID: uuid.New()}
	}
	return tasks
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	runner := &fakeRunner{fail: map[int]bool{1: true, 4: true}}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var seen []int
	d := &Dispatcher{
		Runner:   runner,
		Parallel: 3,
		Metrics:  metrics,
		OnResult: func(r Result) { seen = append(seen, r.Task.Index) },
	}
	tasks := makeTasks(8)

	results, err := d.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, r := range results {
		assert.Equal(t, i, r.Task.Index, "results are in task order")
		assert.Equal(t, fmt.Sprintf("/save/run_%010d", i), r.RunDir)
		if i == 1 || i == 4 {
			assert.Equal(t, StatusFailed, r.Status)
			var te *TaskError
			require.ErrorAs(t, r.Err, &te)
			assert.Equal(t, i, te.Index)
			assert.Equal(t, tasks[i].ID, te.ID)
			assert.Equal(t, r.RunDir, te.RunDir)
			continue
		}
		assert.Equal(t, StatusOK, r.Status)
		assert.NoError(t, r.Err)
	}

	assert.Len(t, runner.ran, 8, "siblings of failed tasks still run")
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, seen)
	assert.LessOrEqual(t, runner.peak.Load(), int32(3))
	assert.Len(t, Failed(results), 2)

	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(StatusOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(StatusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RunDuration))
}

func TestDispatcher_Sequential(t *testing.T) {
	runner := &fakeRunner{}
	d := &Dispatcher{Runner: runner, Parallel: 1}

	_, err := d.Run(context.Background(), makeTasks(4))
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.peak.Load())
	assert.Equal(t, []int{0, 1, 2, 3}, runner.ran)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	metrics := NewMetrics(nil)
	d := &Dispatcher{Runner: runner, Parallel: 2, Metrics: metrics}
	results, err := d.Run(ctx, makeTasks(3))
	require.NoError(t, err)

	assert.Empty(t, runner.ran)
	for _, r := range results {
		assert.Equal(t, StatusSkipped, r.Status)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(StatusSkipped)))
}

func TestDispatcher_InvalidConfig(t *testing.T) {
	_, err := (&Dispatcher{Runner: &fakeRunner{}, Parallel: 0}).Run(context.Background(), makeTasks(1))
	assert.Error(t, err)

	_, err = (&Dispatcher{Parallel: 1}).Run(context.Background(), makeTasks(1))
	assert.Error(t, err)
}

func TestDispatcher_NoTasks(t *testing.T) {
	results, err := (&Dispatcher{Runner: &fakeRunner{}, Parallel: 2}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
