package http

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts all endpoints on the fiber app.
func RegisterRoutes(app *fiber.App, stats *StatsHandler, admin *AdminHandler, health *HealthHandler) {
	app.Get("/health", health.Get)

	api := app.Group("/api/v1")

	websites := api.Group("/websites/:clientID")
	websites.Get("/timeseries", stats.GetTimeSeries)
	websites.Get("/top/:dimension", stats.GetTopDimension)
	websites.Get("/performance", stats.GetPerformance)
	websites.Get("/errors", stats.GetErrors)

	adminGroup := api.Group("/admin")
	adminGroup.Post("/jobs/aggregate", admin.TriggerAggregation)
	adminGroup.Post("/jobs/backfill", admin.TriggerBackfill)
	adminGroup.Post("/jobs/optimize", admin.TriggerOptimization)
	adminGroup.Get("/jobs/runs", admin.ListJobRuns)
}
