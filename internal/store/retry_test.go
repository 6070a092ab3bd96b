package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails a configurable number of calls before succeeding.
type flakyStore struct {
	failures int
	err      error

	queryCalls  int
	insertCalls int
	cmdCalls    int
}

func (f *flakyStore) Query(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	f.queryCalls++
	if f.queryCalls <= f.failures {
		return nil, f.err
	}
	return []Row{{"ok": int64(1)}}, nil
}

func (f *flakyStore) Command(ctx context.Context, sql string, params map[string]any) error {
	f.cmdCalls++
	if f.cmdCalls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) Insert(ctx context.Context, table string, rows []Row) error {
	f.insertCalls++
	if f.insertCalls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) Ping(ctx context.Context) error { return nil }
func (f *flakyStore) Close() error                   { return nil }

func TestInsertRetriesTransientFailures(t *testing.T) {
	transient := errors.New("read tcp 10.0.0.1:9000: connection reset by peer")
	next := &flakyStore{failures: 2, err: transient}

	var slept []time.Duration
	r := NewRetrier(next, WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	err := r.Insert(context.Background(), TableDailyStats, []Row{{"client_id": "site-1"}})
	require.NoError(t, err)
	assert.Equal(t, 3, next.insertCalls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, slept,
		"backoff must double starting from the base delay")
}

func TestInsertGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("i/o timeout")
	next := &flakyStore{failures: 10, err: transient}

	r := NewRetrier(next, WithSleep(func(time.Duration) {}))

	err := r.Insert(context.Background(), TableDailyStats, nil)
	require.Error(t, err)
	assert.Equal(t, 3, next.insertCalls, "default policy allows exactly three attempts")
}

func TestNonTransientErrorsAreNotRetried(t *testing.T) {
	fatal := errors.New("code: 62, message: syntax error")
	next := &flakyStore{failures: 10, err: fatal}

	var slept int
	r := NewRetrier(next, WithSleep(func(time.Duration) { slept++ }))

	err := r.Insert(context.Background(), TableDailyStats, nil)
	require.Error(t, err)
	assert.Equal(t, 1, next.insertCalls)
	assert.Zero(t, slept)
}

func TestQueriesAreNotRetriedByDefault(t *testing.T) {
	transient := errors.New("connection refused")
	next := &flakyStore{failures: 1, err: transient}

	r := NewRetrier(next, WithSleep(func(time.Duration) {}))

	_, err := r.Query(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
	assert.Equal(t, 1, next.queryCalls)

	// An explicit policy opts queries in.
	next = &flakyStore{failures: 1, err: transient}
	r = NewRetrier(next,
		WithQueryPolicy(Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		WithSleep(func(time.Duration) {}))

	rows, err := r.Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, next.queryCalls)
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	transient := errors.New("broken pipe")
	next := &flakyStore{failures: 10, err: transient}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetrier(next, WithSleep(func(time.Duration) {}))

	err := r.Insert(ctx, TableDailyStats, nil)
	require.Error(t, err)
	assert.Equal(t, 1, next.insertCalls, "no further attempts once the context is done")
}

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"io timeout", errors.New("read: i/o timeout"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"syntax error", errors.New("code: 62, syntax error"), false},
		{"auth failure", errors.New("code: 516, authentication failed"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsTransient(tc.err))
		})
	}
}
