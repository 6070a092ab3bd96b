package jobs_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitescope/internal/config"
	"sitescope/internal/jobs"
	"sitescope/internal/meta"
	"sitescope/internal/rollup"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

type clientListStore struct {
	clients []string
	err     error
}

func (s *clientListStore) Query(ctx context.Context, sql string, params map[string]any) ([]store.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	rows := make([]store.Row, len(s.clients))
	for i, id := range s.clients {
		rows[i] = store.Row{"client_id": id}
	}
	return rows, nil
}

// fakeBackfiller succeeds for every client except those listed in failing.
type fakeBackfiller struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   []string
}

func (f *fakeBackfiller) AggregateAll(ctx context.Context, clientID string, r timeframe.DateRange, force bool) rollup.AllResult {
	f.mu.Lock()
	f.calls = append(f.calls, clientID)
	f.mu.Unlock()

	if f.failing[clientID] {
		return rollup.AllResult{Success: false, Results: []rollup.Result{
			{Dimension: rollup.DimensionDaily, Success: false, Error: "store unavailable"},
		}}
	}
	return rollup.AllResult{Success: true, Results: []rollup.Result{
		{Dimension: rollup.DimensionDaily, Success: true, Rows: 1},
	}}
}

func (f *fakeBackfiller) FindAndFillGaps(ctx context.Context, clientID string, lookbackDays int) (rollup.GapReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, clientID)
	f.mu.Unlock()
	return rollup.GapReport{ClientID: clientID, Success: !f.failing[clientID]}, nil
}

// memoryLedger records started and finished runs.
type memoryLedger struct {
	mu       sync.Mutex
	started  []string
	finished map[string]error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{finished: make(map[string]error)}
}

func (l *memoryLedger) StartRun(jobName, clientID, startDate, endDate string) (*meta.JobRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, clientID)
	return &meta.JobRun{JobName: jobName, ClientID: clientID}, nil
}

func (l *memoryLedger) FinishRun(run *meta.JobRun, runErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished[run.ClientID] = runErr
}

func testConfig() *config.Config {
	return &config.Config{
		AggregationLookbackDays: 7,
		AggregationWorkers:      2,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestAggregationJobProcessesEveryActiveClient(t *testing.T) {
	backfiller := &fakeBackfiller{}
	ledger := newMemoryLedger()
	job := jobs.NewAggregationJob(
		&clientListStore{clients: []string{"site-1", "site-2", "site-3"}},
		backfiller, ledger, testLogger(), testConfig())

	batch, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, batch.Success)
	require.Len(t, batch.Tenants, 3)

	assert.ElementsMatch(t, []string{"site-1", "site-2", "site-3"}, backfiller.calls)
	assert.ElementsMatch(t, []string{"site-1", "site-2", "site-3"}, ledger.started)
	for _, id := range []string{"site-1", "site-2", "site-3"} {
		assert.NoError(t, ledger.finished[id])
	}
}

func TestAggregationJobIsolatesTenantFailures(t *testing.T) {
	backfiller := &fakeBackfiller{failing: map[string]bool{"site-2": true}}
	ledger := newMemoryLedger()
	job := jobs.NewAggregationJob(
		&clientListStore{clients: []string{"site-1", "site-2", "site-3"}},
		backfiller, ledger, testLogger(), testConfig())

	batch, err := job.Run(context.Background())
	require.NoError(t, err, "tenant failures are collected, not raised")
	assert.False(t, batch.Success)
	require.Len(t, batch.Tenants, 3, "a failing tenant never stops the others")

	byClient := map[string]jobs.TenantResult{}
	for _, tenant := range batch.Tenants {
		byClient[tenant.ClientID] = tenant
	}
	assert.True(t, byClient["site-1"].Success)
	assert.False(t, byClient["site-2"].Success)
	assert.Contains(t, byClient["site-2"].Error, "daily")
	assert.True(t, byClient["site-3"].Success)

	assert.Error(t, ledger.finished["site-2"])
	assert.NoError(t, ledger.finished["site-1"])
}

func TestAggregationJobWithNoActiveClients(t *testing.T) {
	job := jobs.NewAggregationJob(
		&clientListStore{}, &fakeBackfiller{}, nil, testLogger(), testConfig())

	batch, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, batch.Success)
	assert.Empty(t, batch.Tenants)
}

func TestAggregationJobPropagatesClientListError(t *testing.T) {
	job := jobs.NewAggregationJob(
		&clientListStore{err: context.DeadlineExceeded},
		&fakeBackfiller{}, nil, testLogger(), testConfig())

	_, err := job.Run(context.Background())
	assert.Error(t, err, "without a client list there is nothing sensible to report")
}

func TestMissingDataJobSweepsAllClients(t *testing.T) {
	backfiller := &fakeBackfiller{failing: map[string]bool{"site-2": true}}
	job := jobs.NewMissingDataJob(
		&clientListStore{clients: []string{"site-1", "site-2"}},
		backfiller, nil, testLogger(), testConfig())

	batch, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, batch.Success)
	require.Len(t, batch.Tenants, 2)
	assert.True(t, batch.Tenants[0].Success)
	assert.False(t, batch.Tenants[1].Success)
	require.NotNil(t, batch.Tenants[0].Gaps)
}
