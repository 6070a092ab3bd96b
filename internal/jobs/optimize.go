package jobs

import (
	"context"
	"log/slog"

	"sitescope/internal/store"
)

// OptimizationJob forces background merges on the rollup tables so that
// replaced rows from repeated aggregations are compacted away.
type OptimizationJob struct {
	store  store.Execer
	logger *slog.Logger
}

func NewOptimizationJob(st store.Execer, logger *slog.Logger) *OptimizationJob {
	return &OptimizationJob{store: st, logger: logger}
}

// Run optimizes each rollup table in turn. A failure on one table is
// logged and the remaining tables are still attempted.
func (j *OptimizationJob) Run(ctx context.Context) error {
	var lastErr error
	for _, table := range store.RollupTables() {
		if err := store.Optimize(ctx, j.store, table); err != nil {
			j.logger.Error("Table optimization failed",
				slog.String("table", table),
				slog.Any("error", err))
			lastErr = err
			continue
		}
		j.logger.Debug("Table optimized", slog.String("table", table))
	}
	return lastErr
}
