package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"sitescope/internal/store"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthHandler reports liveness and columnar store connectivity.
type HealthHandler struct {
	store  store.Store
	logger *slog.Logger
}

func NewHealthHandler(st store.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: st, logger: logger}
}

func (h *HealthHandler) Get(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := h.store.Ping(c.Context()); err != nil {
		dbStatus = "error"
		h.logger.Error("Store ping failed", slog.Any("error", err))
	}

	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		DBStatus:  dbStatus,
	}
	if dbStatus != "ok" {
		health.Status = "degraded"
	}
	return c.JSON(health)
}
