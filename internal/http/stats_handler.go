package http

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"sitescope/internal/analytics"
	"sitescope/internal/store"
	"sitescope/internal/timeframe"
)

// StatsHandler serves the read-side analytics endpoints.
type StatsHandler struct {
	store  store.Querier
	logger *slog.Logger
}

func NewStatsHandler(st store.Querier, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{store: st, logger: logger}
}

// parseRange reads start_date, end_date and granularity query params. It
// defaults to the last 7 days at daily granularity.
func parseRange(c *fiber.Ctx) (timeframe.DateRange, error) {
	g, err := timeframe.ParseGranularity(c.Query("granularity"))
	if err != nil {
		return timeframe.DateRange{}, err
	}

	start := c.Query("start_date")
	end := c.Query("end_date")
	if start == "" && end == "" {
		return timeframe.LastDays(7, g), nil
	}
	return timeframe.Parse(start, end, g)
}

func parseLimit(c *fiber.Ctx) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		return 0
	}
	return limit
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

func (h *StatsHandler) internalError(c *fiber.Ctx, what string, err error) error {
	h.logger.Error("Stats query failed", slog.String("query", what), slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "query failed"})
}

// GetTimeSeries returns pageviews, visitors and session metrics per
// bucket, with every bucket in the range present even when empty.
func (h *StatsHandler) GetTimeSeries(c *fiber.Ctx) error {
	r, err := parseRange(c)
	if err != nil {
		return badRequest(c, err)
	}
	clientID := c.Params("clientID")

	series, err := analytics.TimeSeries(c.Context(), h.store, clientID, r)
	if err != nil {
		return h.internalError(c, "timeseries", err)
	}
	return c.JSON(fiber.Map{
		"client_id":   clientID,
		"start_date":  r.StartDate(),
		"end_date":    r.EndDate(),
		"granularity": string(r.Granularity),
		"series":      series,
	})
}

// GetTopDimension returns the top values for one breakdown dimension.
func (h *StatsHandler) GetTopDimension(c *fiber.Ctx) error {
	r, err := parseRange(c)
	if err != nil {
		return badRequest(c, err)
	}
	clientID := c.Params("clientID")
	dimension := c.Params("dimension")
	limit := parseLimit(c)
	ctx := c.Context()

	var (
		result any
	)
	switch dimension {
	case "referrers":
		result, err = analytics.GetTopReferrers(ctx, h.store, clientID, r, limit)
	case "pages":
		result, err = analytics.GetTopPages(ctx, h.store, clientID, r, limit)
	case "entry-pages":
		result, err = analytics.GetTopEntryPages(ctx, h.store, clientID, r, limit)
	case "exit-pages":
		result, err = analytics.GetTopExitPages(ctx, h.store, clientID, r, limit)
	case "browsers":
		result, err = analytics.GetDeviceBreakdown(ctx, h.store, clientID, r, "browser_name", limit)
	case "devices":
		result, err = analytics.GetDeviceBreakdown(ctx, h.store, clientID, r, "device_type", limit)
	case "operating-systems":
		result, err = analytics.GetTopOperatingSystems(ctx, h.store, clientID, r, limit)
	case "countries":
		result, err = analytics.GetTopCountries(ctx, h.store, clientID, r, limit)
	case "utm-sources":
		result, err = analytics.GetUTMBreakdown(ctx, h.store, clientID, r, "utm_source", limit)
	case "utm-mediums":
		result, err = analytics.GetUTMBreakdown(ctx, h.store, clientID, r, "utm_medium", limit)
	case "utm-campaigns":
		result, err = analytics.GetUTMBreakdown(ctx, h.store, clientID, r, "utm_campaign", limit)
	case "custom-events":
		result, err = analytics.GetCustomEvents(ctx, h.store, clientID, r, limit)
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown dimension: " + dimension})
	}
	if err != nil {
		return h.internalError(c, dimension, err)
	}
	return c.JSON(fiber.Map{
		"client_id": clientID,
		"dimension": dimension,
		"results":   result,
	})
}

// GetPerformance returns averaged web vitals for the range.
func (h *StatsHandler) GetPerformance(c *fiber.Ctx) error {
	r, err := parseRange(c)
	if err != nil {
		return badRequest(c, err)
	}
	clientID := c.Params("clientID")

	report, err := analytics.GetPerformanceSummary(c.Context(), h.store, clientID, r)
	if err != nil {
		return h.internalError(c, "performance", err)
	}
	return c.JSON(report)
}

// GetErrors returns error type counts, or full occurrences when the
// type query param narrows to one error type.
func (h *StatsHandler) GetErrors(c *fiber.Ctx) error {
	r, err := parseRange(c)
	if err != nil {
		return badRequest(c, err)
	}
	clientID := c.Params("clientID")
	limit := parseLimit(c)

	if errorType := c.Query("type"); errorType != "" {
		details, err := analytics.GetErrorDetails(c.Context(), h.store, clientID, r, errorType, limit)
		if err != nil {
			return h.internalError(c, "error_details", err)
		}
		return c.JSON(fiber.Map{"client_id": clientID, "type": errorType, "errors": details})
	}

	types, err := analytics.GetErrorTypes(c.Context(), h.store, clientID, r, limit)
	if err != nil {
		return h.internalError(c, "error_types", err)
	}
	return c.JSON(fiber.Map{"client_id": clientID, "errors": types})
}
