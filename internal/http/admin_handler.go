package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"sitescope/internal/config"
	"sitescope/internal/jobs"
	"sitescope/internal/meta"
	"sitescope/internal/rollup"
	"sitescope/internal/timeframe"
)

// AdminHandler exposes manual triggers for the background jobs and the
// job run history.
type AdminHandler struct {
	aggregator      *rollup.Aggregator
	aggregationJob  *jobs.AggregationJob
	missingDataJob  *jobs.MissingDataJob
	optimizationJob *jobs.OptimizationJob
	ledger          *meta.DB
	cfg             *config.Config
	logger          *slog.Logger
}

func NewAdminHandler(
	aggregator *rollup.Aggregator,
	aggregation *jobs.AggregationJob,
	missing *jobs.MissingDataJob,
	optimize *jobs.OptimizationJob,
	ledger *meta.DB,
	cfg *config.Config,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		aggregator:      aggregator,
		aggregationJob:  aggregation,
		missingDataJob:  missing,
		optimizationJob: optimize,
		ledger:          ledger,
		cfg:             cfg,
		logger:          logger,
	}
}

type aggregateRequest struct {
	ClientID  string `json:"client_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Dimension string `json:"dimension"`
	Force     bool   `json:"force"`
}

// TriggerAggregation recomputes rollups. With a client_id and date range
// it aggregates that one client; without a body it runs the full
// scheduled job across all active clients.
func (h *AdminHandler) TriggerAggregation(c *fiber.Ctx) error {
	var req aggregateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}

	if req.ClientID == "" {
		batch, err := h.aggregationJob.Run(c.Context())
		if err != nil {
			h.logger.Error("Manual aggregation run failed", slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(batch)
	}

	r, err := timeframe.Parse(req.StartDate, req.EndDate, timeframe.Daily)
	if err != nil {
		return badRequest(c, err)
	}

	if req.Dimension != "" {
		dim := rollup.Dimension(req.Dimension)
		if !lo.Contains(rollup.Dimensions(), dim) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown dimension: " + req.Dimension})
		}
		return c.JSON(h.aggregator.Aggregate(c.Context(), dim, req.ClientID, r, req.Force))
	}
	return c.JSON(h.aggregator.AggregateAll(c.Context(), req.ClientID, r, req.Force))
}

type backfillRequest struct {
	ClientID     string `json:"client_id"`
	LookbackDays int    `json:"lookback_days"`
}

// TriggerBackfill scans for missing rollup dates and fills them. With a
// client_id it checks that one client; without it sweeps all active
// clients.
func (h *AdminHandler) TriggerBackfill(c *fiber.Ctx) error {
	var req backfillRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = h.cfg.AggregationLookbackDays
	}

	if req.ClientID != "" {
		report, err := h.aggregator.FindAndFillGaps(c.Context(), req.ClientID, req.LookbackDays)
		if err != nil {
			h.logger.Error("Manual backfill failed", slog.String("client_id", req.ClientID), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(report)
	}

	batch, err := h.missingDataJob.Run(c.Context())
	if err != nil {
		h.logger.Error("Manual backfill sweep failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(batch)
}

// TriggerOptimization forces merges on the rollup tables.
func (h *AdminHandler) TriggerOptimization(c *fiber.Ctx) error {
	if err := h.optimizationJob.Run(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"success": true})
}

// ListJobRuns returns the most recent job run records.
func (h *AdminHandler) ListJobRuns(c *fiber.Ctx) error {
	limit := parseLimit(c)
	if limit == 0 {
		limit = 50
	}
	runs, err := h.ledger.RecentRuns(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"runs": runs})
}
