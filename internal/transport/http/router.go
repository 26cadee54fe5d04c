package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/app"
	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/transport/http/handlers"
	httpmw "github.com/opspanel/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	DB       *gorm.DB
	Redis    redis.UniversalClient
	Logger   *logger.Logger
	Config   *config.Config
	Metrics  *metrics.Metrics
	Services *app.Container
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	svc := cfg.Services

	// Initialize handlers
	connectionHandler := handlers.NewConnectionHandler(svc.Connections, svc.Audit, cfg.Logger)
	hostHandler := handlers.NewHostHandler(svc.Hosts, svc.Audit, cfg.Logger)
	backupHandler := handlers.NewBackupHandler(svc.Backups, svc.Audit, cfg.Logger)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications, cfg.Logger)
	playbookHandler := handlers.NewPlaybookHandler(svc.Playbooks, cfg.Logger)
	scheduleHandler := handlers.NewScheduleHandler(svc.Schedules, svc.Audit, cfg.Logger)
	auditHandler := handlers.NewAuditHandler(svc.Audit, cfg.Logger)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis, cfg.Logger)

	app.Get("/health", healthHandler.Health)
	if cfg.Metrics != nil && cfg.Config.Metrics.Enabled {
		app.Get(cfg.Config.Metrics.Path, adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	// API v1 routes
	api := app.Group("/api/v1")

	// Runner callback, authenticated with the callback token.
	callback := api.Group("/callbacks", httpmw.CallbackAuth(cfg.Config), httpmw.TenantScope())
	callback.Post("/playbooks/:execution_id/results", playbookHandler.RecordResults)

	adminAuth := httpmw.AdminAuth(cfg.Config)
	tenant := httpmw.TenantScope()

	// Connection routes
	redisConns := api.Group("/connections/redis", adminAuth, tenant)
	redisConns.Post("/", connectionHandler.CreateRedis)
	redisConns.Get("/", connectionHandler.ListRedis)
	redisConns.Get("/:id", connectionHandler.GetRedis)
	redisConns.Put("/:id", connectionHandler.UpdateRedis)
	redisConns.Delete("/:id", connectionHandler.DeleteRedis)
	redisConns.Post("/:id/test", connectionHandler.TestRedis)

	databaseConns := api.Group("/connections/database", adminAuth, tenant)
	databaseConns.Post("/", connectionHandler.CreateDatabase)
	databaseConns.Get("/", connectionHandler.ListDatabases)
	databaseConns.Get("/:id", connectionHandler.GetDatabase)
	databaseConns.Put("/:id", connectionHandler.UpdateDatabase)
	databaseConns.Delete("/:id", connectionHandler.DeleteDatabase)
	databaseConns.Post("/:id/test", connectionHandler.TestDatabase)

	// Host routes
	hosts := api.Group("/hosts", adminAuth, tenant)
	hosts.Post("/", hostHandler.CreateHost)
	hosts.Get("/", hostHandler.ListHosts)
	hosts.Get("/:id", hostHandler.GetHost)
	hosts.Delete("/:id", hostHandler.DeleteHost)

	// Backup routes
	backups := api.Group("/backups", adminAuth, tenant)
	backups.Get("/", backupHandler.ListBackups)
	backups.Post("/", backupHandler.CreateManual)
	backups.Delete("/:id", backupHandler.DeleteBackup)

	// Notification routes
	notifications := api.Group("/notifications", adminAuth, tenant)
	notifications.Get("/", notificationHandler.ListNotifications)
	notifications.Post("/:id/read", notificationHandler.MarkRead)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)

	// Playbook routes
	playbooks := api.Group("/playbooks", adminAuth, tenant)
	playbooks.Post("/", playbookHandler.CreateExecution)
	playbooks.Get("/", playbookHandler.ListExecutions)
	playbooks.Get("/:execution_id", playbookHandler.GetExecution)

	// Schedule routes
	schedules := api.Group("/schedules", adminAuth, tenant)
	schedules.Get("/", scheduleHandler.ListSchedules)
	schedules.Put("/:name/enabled", scheduleHandler.SetEnabled)
	schedules.Post("/:name/run", scheduleHandler.RunNow)

	// Task routes
	tasks := api.Group("/tasks", adminAuth, tenant)
	tasks.Get("/queues", scheduleHandler.QueueLengths)
	tasks.Post("/:id/revoke", scheduleHandler.RevokeTask)

	// Audit routes
	api.Get("/audit-logs", adminAuth, tenant, auditHandler.ListAuditLogs)
}
