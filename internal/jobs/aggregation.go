package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sitescope/internal/config"
	"sitescope/internal/meta"
	"sitescope/internal/pkg/async"
	"sitescope/internal/query"
	"sitescope/internal/rollup"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// Backfiller is the slice of the rollup aggregator the jobs need.
type Backfiller interface {
	AggregateAll(ctx context.Context, clientID string, r timeframe.DateRange, force bool) rollup.AllResult
	FindAndFillGaps(ctx context.Context, clientID string, lookbackDays int) (rollup.GapReport, error)
}

// Ledger records job runs for later inspection. A nil Ledger disables
// recording.
type Ledger interface {
	StartRun(jobName, clientID, startDate, endDate string) (*meta.JobRun, error)
	FinishRun(run *meta.JobRun, runErr error)
}

// TenantResult is the outcome of one job for one client.
type TenantResult struct {
	ClientID string            `json:"client_id"`
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Outcome  *rollup.AllResult `json:"outcome,omitempty"`
	Gaps     *rollup.GapReport `json:"gaps,omitempty"`
}

// BatchResult is the collected outcome of a job across all active clients.
// Success is false when any tenant failed, but every tenant is still
// attempted.
type BatchResult struct {
	Success bool           `json:"success"`
	Tenants []TenantResult `json:"tenants"`
}

// AggregationJob recomputes the rollup tables for every client that sent
// events within the lookback window.
type AggregationJob struct {
	store      store.Querier
	aggregator Backfiller
	ledger     Ledger
	logger     *slog.Logger
	cfg        *config.Config
	now        func() time.Time
}

func NewAggregationJob(st store.Querier, agg Backfiller, ledger Ledger, logger *slog.Logger, cfg *config.Config) *AggregationJob {
	return &AggregationJob{
		store:      st,
		aggregator: agg,
		ledger:     ledger,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// activeClients returns the distinct client IDs seen in raw events within
// the lookback window.
func activeClients(ctx context.Context, q store.Querier, lookbackDays int) ([]string, error) {
	sel := query.ActiveClients(lookbackDays)
	rows, err := q.Query(ctx, sel.SQL(), sel.Args())
	if err != nil {
		return nil, fmt.Errorf("list active clients: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := row.String("client_id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Run aggregates every active client over the configured lookback window.
// Clients are processed concurrently by a bounded pool, and one client's
// failure never stops the others.
func (j *AggregationJob) Run(ctx context.Context) (BatchResult, error) {
	lookback := j.cfg.AggregationLookbackDays
	clients, err := activeClients(ctx, j.store, lookback)
	if err != nil {
		return BatchResult{}, err
	}
	if len(clients) == 0 {
		j.logger.Debug("No active clients to aggregate")
		return BatchResult{Success: true}, nil
	}

	r := timeframe.NewRange(j.now().AddDate(0, 0, -lookback), j.now(), timeframe.Daily)
	j.logger.Info("Running daily aggregation",
		slog.Int("clients", len(clients)),
		slog.String("start_date", r.StartDate()),
		slog.String("end_date", r.EndDate()))

	tasks := make([]async.Task, 0, len(clients))
	for _, clientID := range clients {
		clientID := clientID
		tasks = append(tasks, async.Task{
			Name: clientID,
			Execute: func(ctx context.Context) (interface{}, error) {
				return j.aggregateClient(ctx, clientID, r), nil
			},
		})
	}

	pool := async.NewPool(j.cfg.AggregationWorkers)
	results := pool.Execute(ctx, tasks)

	batch := BatchResult{Success: true}
	for _, clientID := range clients {
		res, ok := results[clientID]
		if !ok || res.Err != nil {
			batch.Success = false
			batch.Tenants = append(batch.Tenants, TenantResult{
				ClientID: clientID,
				Error:    "aggregation did not complete",
			})
			continue
		}
		tenant := res.Data.(TenantResult)
		if !tenant.Success {
			batch.Success = false
		}
		batch.Tenants = append(batch.Tenants, tenant)
	}
	return batch, nil
}

func (j *AggregationJob) aggregateClient(ctx context.Context, clientID string, r timeframe.DateRange) TenantResult {
	var run *meta.JobRun
	if j.ledger != nil {
		var err error
		run, err = j.ledger.StartRun("daily_aggregation", clientID, r.StartDate(), r.EndDate())
		if err != nil {
			j.logger.Warn("Could not record job run", slog.String("client_id", clientID), slog.Any("error", err))
		}
	}

	outcome := j.aggregator.AggregateAll(ctx, clientID, r, false)
	tenant := TenantResult{ClientID: clientID, Success: outcome.Success, Outcome: &outcome}

	var runErr error
	if !outcome.Success {
		var failed []string
		for _, res := range outcome.Results {
			if !res.Success {
				failed = append(failed, string(res.Dimension))
			}
		}
		runErr = fmt.Errorf("aggregation failed for dimensions: %s", strings.Join(failed, ", "))
		tenant.Error = runErr.Error()
		j.logger.Error("Aggregation failed for client",
			slog.String("client_id", clientID),
			slog.Any("error", runErr))
	}
	if j.ledger != nil && run != nil {
		j.ledger.FinishRun(run, runErr)
	}
	return tenant
}

// MissingDataJob scans every active client for dates that have events but
// no daily rollup row, and backfills them.
type MissingDataJob struct {
	store      store.Querier
	aggregator Backfiller
	ledger     Ledger
	logger     *slog.Logger
	cfg        *config.Config
}

func NewMissingDataJob(st store.Querier, agg Backfiller, ledger Ledger, logger *slog.Logger, cfg *config.Config) *MissingDataJob {
	return &MissingDataJob{store: st, aggregator: agg, ledger: ledger, logger: logger, cfg: cfg}
}

func (j *MissingDataJob) Run(ctx context.Context) (BatchResult, error) {
	lookback := j.cfg.AggregationLookbackDays
	clients, err := activeClients(ctx, j.store, lookback)
	if err != nil {
		return BatchResult{}, err
	}

	batch := BatchResult{Success: true}
	for _, clientID := range clients {
		var run *meta.JobRun
		if j.ledger != nil {
			run, _ = j.ledger.StartRun("missing_data_check", clientID, "", "")
		}

		report, err := j.aggregator.FindAndFillGaps(ctx, clientID, lookback)
		tenant := TenantResult{ClientID: clientID, Success: err == nil && report.Success, Gaps: &report}
		if err != nil {
			tenant.Error = err.Error()
			j.logger.Error("Missing data check failed for client",
				slog.String("client_id", clientID),
				slog.Any("error", err))
		} else if !report.Success {
			tenant.Error = "backfill completed with failures"
		}
		if !tenant.Success {
			batch.Success = false
		}
		if j.ledger != nil && run != nil {
			j.ledger.FinishRun(run, err)
		}
		batch.Tenants = append(batch.Tenants, tenant)
	}
	return batch, nil
}
