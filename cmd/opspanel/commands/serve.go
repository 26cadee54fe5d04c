package commands

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opspanel/backend/internal/app"
	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	transporthttp "github.com/opspanel/backend/internal/transport/http"
	"github.com/opspanel/backend/internal/transport/http/dto"
	httpmw "github.com/opspanel/backend/internal/transport/http/middleware"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

type requestIDKey struct{}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := openProcess(ctx, "api", true)
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.log

	container, err := app.Build(app.Options{
		Config:  rt.cfg,
		DB:      rt.db,
		Redis:   rt.redisClient(),
		Metrics: rt.metrics,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	server := newFiberApp(rt.cfg, log)
	transporthttp.SetupRoutes(server, transporthttp.RouterConfig{
		DB:       rt.db,
		Redis:    rt.redisClient(),
		Logger:   log,
		Config:   rt.cfg,
		Metrics:  rt.metrics,
		Services: container,
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(rt.cfg.Server.Address())
	}()
	log.Infow("server_started", "address", rt.cfg.Server.Address())

	select {
	case err := <-listenErr:
		return errors.Wrap(err, "server failed to start")
	case <-ctx.Done():
	}

	log.Infow("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorw("server_forced_shutdown", "error", err)
	}
	log.Infow("server_exited")
	return nil
}

func newFiberApp(cfg *config.Config, log *logger.Logger) *fiber.App {
	server := fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ErrorHandler:          globalErrorHandler(log),
		DisableStartupMessage: true,
	})

	server.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	allowedOrigins := "*"
	if len(cfg.Auth.AllowedOrigins) > 0 {
		allowedOrigins = strings.Join(cfg.Auth.AllowedOrigins, ",")
	}
	server.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: strings.Join([]string{
			"Origin", "Content-Type", "Accept", "Authorization",
			httpmw.HeaderAdminToken, httpmw.HeaderCallbackToken, httpmw.HeaderTenantID,
		}, ", "),
		AllowMethods: "GET, POST, HEAD, PUT, DELETE, PATCH",
	}))

	server.Use(func(c *fiber.Ctx) error {
		hdr := cfg.Features.RequestIDHeader
		var reqID string
		if hdr != "" {
			reqID = c.Get(hdr)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey{}, reqID))
		if hdr != "" {
			c.Set(hdr, reqID)
		}
		return c.Next()
	})

	if cfg.Features.EnableRequestLogging {
		server.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			routePath := ""
			if c.Route() != nil {
				routePath = c.Route().Path
			}
			log.Infow("http_access",
				"method", c.Method(),
				"path", c.Path(),
				"route", routePath,
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", c.IP(),
				"tenant_id", c.Get(httpmw.HeaderTenantID),
				"request_id", c.Locals("request_id"),
				"req_bytes", len(c.Request().Body()),
				"resp_bytes", len(c.Response().Body()),
			)
			return err
		})
	}

	return server
}

func globalErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code < fiber.StatusInternalServerError {
			log.Warnw("request_failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err.Error(),
				"request_id", c.Locals("request_id"),
			)
			return c.Status(code).JSON(dto.Error(code, err.Error(), nil))
		}

		log.Errorw("request_error",
			"method", c.Method(),
			"path", c.Path(),
			"status", code,
			"error", err.Error(),
			"request_id", c.Locals("request_id"),
		)
		return c.Status(code).JSON(dto.Error(code, "internal server error", nil))
	}
}
