package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/infrastructure/cache"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/sysinfo"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type HealthHandler struct {
	db     *gorm.DB
	redis  redis.UniversalClient
	logger *logger.Logger
}

func NewHealthHandler(database *gorm.DB, redisClient redis.UniversalClient, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{db: database, redis: redisClient, logger: logger}
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthReport struct {
	Status   string            `json:"status"`
	Database componentStatus   `json:"database"`
	Redis    componentStatus   `json:"redis"`
	Host     sysinfo.HostStats `json:"host"`
}

// Health answers 503 when the database is down. A missing Redis client
// (in-memory broker) is reported as disabled, not as a failure.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx := c.Context()
	report := healthReport{
		Status:   "ok",
		Database: componentStatus{Status: "ok"},
		Redis:    componentStatus{Status: "ok"},
		Host:     sysinfo.Collect(ctx),
	}

	if err := db.Ping(ctx, h.db); err != nil {
		h.logger.Warnw("health_database_failed", "error", err)
		report.Status = "unavailable"
		report.Database = componentStatus{Status: "down", Error: err.Error()}
	}

	if h.redis == nil {
		report.Redis.Status = "disabled"
	} else if err := cache.HealthCheck(ctx, h.redis); err != nil {
		h.logger.Warnw("health_redis_failed", "error", err)
		if report.Status == "ok" {
			report.Status = "degraded"
		}
		report.Redis = componentStatus{Status: "down", Error: err.Error()}
	}

	if report.Status == "unavailable" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.Error(fiber.StatusServiceUnavailable, report.Status, report))
	}
	return c.JSON(dto.Success(fiber.StatusOK, report.Status, report))
}
