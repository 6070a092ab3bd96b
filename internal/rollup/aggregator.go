// Package rollup maintains the derived statistics tables (daily, page,
// referrer) from the raw event stream, including forced recomputation and
// detection/backfill of missing date ranges.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sitescope/internal/pkg/async"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// Result reports the outcome of one dimension's aggregation. Failures are
// carried as data, not thrown: callers collect results across dimensions
// and tenants.
type Result struct {
	Dimension Dimension `json:"dimension"`
	Success   bool      `json:"success"`
	Skipped   bool      `json:"skipped,omitempty"`
	Message   string    `json:"message"`
	Rows      int       `json:"rows"`
	Error     string    `json:"error,omitempty"`
}

// Locker is the advisory-lock surface the aggregator needs; a nil Locker
// disables locking.
type Locker interface {
	Acquire(key string) (bool, error)
	Release(key string) error
}

// Aggregator computes rollup rows from raw events and writes them to the
// derived tables.
type Aggregator struct {
	store  store.Store
	locks  Locker
	logger *slog.Logger
	pool   *async.Pool
	now    func() time.Time
}

func NewAggregator(st store.Store, locks Locker, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  st,
		locks:  locks,
		logger: logger,
		pool:   async.NewPool(len(Dimensions())),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func lockKey(clientID string, r timeframe.DateRange, dim Dimension) string {
	return clientID + "|" + r.StartDate() + "|" + r.EndDate() + "|" + string(dim)
}

// Aggregate recomputes one dimension's rollup rows for a client and date
// range. With force, existing rows in the window are deleted before the
// insert (in that order); without force it relies on the replacing table
// engine to collapse recomputed rows. A concurrently held advisory lock
// makes the call a no-op rather than an error.
func (a *Aggregator) Aggregate(ctx context.Context, dim Dimension, clientID string, r timeframe.DateRange, force bool) Result {
	spec, err := specFor(dim)
	if err != nil {
		return Result{Dimension: dim, Message: "invalid dimension", Error: err.Error()}
	}

	if a.locks != nil {
		key := lockKey(clientID, r, dim)
		acquired, lockErr := a.locks.Acquire(key)
		if lockErr != nil {
			return Result{Dimension: dim, Message: "failed to acquire aggregation lock", Error: lockErr.Error()}
		}
		if !acquired {
			a.logger.Debug("Aggregation range locked by another runner",
				slog.String("client_id", clientID),
				slog.String("dimension", string(dim)))
			return Result{Dimension: dim, Success: true, Skipped: true, Message: "aggregation already in progress for this range"}
		}
		defer func() {
			if releaseErr := a.locks.Release(key); releaseErr != nil {
				a.logger.Warn("Failed to release aggregation lock", slog.Any("error", releaseErr))
			}
		}()
	}

	computeQuery := spec.selectFn(clientID, r)
	rows, err := a.store.Query(ctx, computeQuery.SQL(), computeQuery.Args())
	if err != nil {
		return Result{Dimension: dim, Message: "failed to compute rollup rows", Error: err.Error()}
	}

	if force {
		// Delete must complete before the insert so fresh rows never land
		// in a not-yet-cleared window.
		if err := a.store.Command(ctx, deleteSQL(spec.table), deleteArgs(clientID, r)); err != nil {
			return Result{Dimension: dim, Message: "failed to clear existing rollup rows", Error: err.Error()}
		}
	}

	if len(rows) == 0 {
		return Result{Dimension: dim, Success: true, Message: "no events in range"}
	}

	computedAt := a.now()
	inserts := make([]store.Row, len(rows))
	for i, row := range rows {
		inserts[i] = spec.rowFn(clientID, computedAt, row)
	}

	if err := a.store.Insert(ctx, spec.table, inserts); err != nil {
		return Result{Dimension: dim, Message: "failed to write rollup rows", Error: err.Error()}
	}

	a.logger.Info("Aggregated rollup dimension",
		slog.String("client_id", clientID),
		slog.String("dimension", string(dim)),
		slog.String("start", r.StartDate()),
		slog.String("end", r.EndDate()),
		slog.Bool("force", force),
		slog.Int("rows", len(inserts)))

	return Result{
		Dimension: dim,
		Success:   true,
		Message:   fmt.Sprintf("aggregated %s for %s..%s", dim, r.StartDate(), r.EndDate()),
		Rows:      len(inserts),
	}
}

// AllResult collects per-dimension outcomes; Success is true only when
// every dimension succeeded.
type AllResult struct {
	Success bool     `json:"success"`
	Results []Result `json:"results"`
}

// AggregateAll runs every dimension concurrently. One dimension failing
// does not cancel its siblings; all results are collected and returned
// together.
func (a *Aggregator) AggregateAll(ctx context.Context, clientID string, r timeframe.DateRange, force bool) AllResult {
	tasks := make([]async.Task, 0, len(Dimensions()))
	for _, dim := range Dimensions() {
		dim := dim
		tasks = append(tasks, async.Task{
			Name: string(dim),
			Execute: func(ctx context.Context) (interface{}, error) {
				return a.Aggregate(ctx, dim, clientID, r, force), nil
			},
		})
	}

	executed := a.pool.Execute(ctx, tasks)

	all := AllResult{Success: true}
	for _, dim := range Dimensions() {
		taskResult, ok := executed[string(dim)]
		if !ok {
			// Cancelled before this dimension ran.
			all.Success = false
			all.Results = append(all.Results, Result{
				Dimension: dim,
				Message:   "aggregation cancelled",
				Error:     context.Canceled.Error(),
			})
			continue
		}
		result := taskResult.Data.(Result)
		if !result.Success {
			all.Success = false
		}
		all.Results = append(all.Results, result)
	}
	return all
}
