package async_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescope/internal/pkg/async"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	pool := async.NewPool(3)

	var tasks []async.Task
	for i := 0; i < 10; i++ {
		i := i
		tasks = append(tasks, async.Task{
			Name: fmt.Sprintf("task-%d", i),
			Execute: func(ctx context.Context) (interface{}, error) {
				return i * 2, nil
			},
		})
	}

	results := pool.Execute(context.Background(), tasks)
	require.Len(t, results, 10)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("task-%d", i)
		require.Contains(t, results, name)
		assert.Equal(t, i*2, results[name].Data)
		assert.NoError(t, results[name].Err)
	}
}

func TestExecuteCarriesTaskErrors(t *testing.T) {
	pool := async.NewPool(2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []async.Task{
		{Name: "ok", Execute: func(ctx context.Context) (interface{}, error) { return "fine", nil }},
		{Name: "bad", Execute: func(ctx context.Context) (interface{}, error) { return nil, boom }},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results["ok"].Err)
	assert.ErrorIs(t, results["bad"].Err, boom)
}

func TestExecuteIsReusable(t *testing.T) {
	pool := async.NewPool(2)
	task := []async.Task{{
		Name:    "only",
		Execute: func(ctx context.Context) (interface{}, error) { return 1, nil },
	}}

	for i := 0; i < 3; i++ {
		results := pool.Execute(context.Background(), task)
		require.Len(t, results, 1)
	}
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	pool := async.NewPool(2)

	var active, peak int64
	var tasks []async.Task
	gate := make(chan struct{})
	for i := 0; i < 6; i++ {
		tasks = append(tasks, async.Task{
			Name: fmt.Sprintf("task-%d", i),
			Execute: func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt64(&active, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				<-gate
				atomic.AddInt64(&active, -1)
				return nil, nil
			},
		})
	}

	go func() {
		for i := 0; i < 6; i++ {
			gate <- struct{}{}
		}
	}()

	pool.Execute(context.Background(), tasks)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestExecuteStopsOnCancel(t *testing.T) {
	pool := async.NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())

	var ran int64
	tasks := []async.Task{
		{Name: "first", Execute: func(ctx context.Context) (interface{}, error) {
			atomic.AddInt64(&ran, 1)
			cancel()
			return nil, nil
		}},
		{Name: "second", Execute: func(ctx context.Context) (interface{}, error) {
			atomic.AddInt64(&ran, 1)
			return nil, nil
		}},
	}

	results := pool.Execute(ctx, tasks)
	assert.LessOrEqual(t, len(results), 1)
	assert.Equal(t, int64(1), atomic.LoadInt64(&ran), "no new tasks after cancellation")
}
