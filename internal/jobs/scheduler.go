package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitescope/internal/config"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	aggregationJob  *AggregationJob
	missingDataJob  *MissingDataJob
	optimizationJob *OptimizationJob

	// Tickers for each job type
	aggregationTicker *time.Ticker
	missingTicker     *time.Ticker
	optimizeTicker    *time.Ticker
}

func NewScheduler(aggregation *AggregationJob, missing *MissingDataJob, optimize *OptimizationJob, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	return &Scheduler{
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		enabled:         cfg.SchedulerEnabled,
		isRunning:       false,
		cfg:             cfg,
		aggregationJob:  aggregation,
		missingDataJob:  missing,
		optimizationJob: optimize,
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func(ctx context.Context) error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startAggregationJob()
	s.startMissingDataJob()
	s.startOptimizationJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startAggregationJob() {
	interval := s.cfg.JobInterval()
	s.logger.Info("Starting aggregation job", slog.Duration("interval", interval))
	s.aggregationTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.logger.Info("Running initial aggregation...")
		s.executeJobSafely("daily_aggregation", s.runAggregation)

		for {
			select {
			case <-s.aggregationTicker.C:
				s.executeJobSafely("daily_aggregation", s.runAggregation)
			case <-s.ctx.Done():
				s.logger.Info("Aggregation job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startMissingDataJob() {
	// Gaps appear rarely, so a daily sweep is enough.
	interval := 24 * time.Hour
	s.logger.Info("Starting missing data job", slog.Duration("interval", interval))
	s.missingTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.missingTicker.C:
				s.executeJobSafely("missing_data_check", s.runMissingDataCheck)
			case <-s.ctx.Done():
				s.logger.Info("Missing data job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startOptimizationJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting optimization job", slog.Duration("interval", interval))
	s.optimizeTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.optimizeTicker.C:
				s.executeJobSafely("database_optimization", s.optimizationJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Optimization job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) runAggregation(ctx context.Context) error {
	_, err := s.aggregationJob.Run(ctx)
	return err
}

func (s *Scheduler) runMissingDataCheck(ctx context.Context) error {
	_, err := s.missingDataJob.Run(ctx)
	return err
}

// Stop halts all background jobs
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.aggregationTicker != nil {
		s.aggregationTicker.Stop()
	}
	if s.missingTicker != nil {
		s.missingTicker.Stop()
	}
	if s.optimizeTicker != nil {
		s.optimizeTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
