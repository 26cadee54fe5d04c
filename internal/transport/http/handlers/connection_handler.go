package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type ConnectionHandler struct {
	service ports.ConnectionService
	audit   ports.AuditService
	logger  *logger.Logger
}

func NewConnectionHandler(service ports.ConnectionService, audit ports.AuditService, logger *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{service: service, audit: audit, logger: logger}
}

func (h *ConnectionHandler) CreateRedis(c *fiber.Ctx) error {
	var req dto.RedisConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("redis_connection_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("redis_connection_create_validation_failed", "details", errs)
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	h.logger.Infow("redis_connection_create_request", "tenant_id", tenant, "name", req.Name, "host", req.Host)
	conn, err := h.service.CreateRedis(c.Context(), tenant, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "redis_connection_create_failed", err, "tenant_id", tenant, "name", req.Name)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionConnectionCreate, domain.ResourceTypeRedisConnection, &conn.ID,
		domain.JSONB{"name": conn.Name, "host": conn.Host}))
	h.logger.Infow("redis_connection_create_success", "tenant_id", tenant, "id", conn.ID)
	return c.Status(fiber.StatusCreated).JSON(dto.Success(fiber.StatusCreated, "redis connection created", dto.RedisConnectionToResponse(conn)))
}

func (h *ConnectionHandler) ListRedis(c *fiber.Ctx) error {
	tenant := tenantID(c)
	page := pageRequest(c)
	conns, total, err := h.service.ListRedis(c.Context(), tenant, page)
	if err != nil {
		return respondError(c, h.logger, "redis_connection_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, dto.RedisConnectionsToResponse(conns), page, total)
}

func (h *ConnectionHandler) GetRedis(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	conn, err := h.service.GetRedis(c.Context(), tenantID(c), id)
	if err != nil {
		return respondError(c, h.logger, "redis_connection_get_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "ok", dto.RedisConnectionToResponse(conn)))
}

func (h *ConnectionHandler) UpdateRedis(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	var req dto.RedisConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	conn, err := h.service.UpdateRedis(c.Context(), tenant, id, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "redis_connection_update_failed", err, "tenant_id", tenant, "id", id)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionConnectionUpdate, domain.ResourceTypeRedisConnection, &conn.ID,
		domain.JSONB{"name": conn.Name, "password_changed": req.Password != ""}))
	return c.JSON(dto.Success(fiber.StatusOK, "redis connection updated", dto.RedisConnectionToResponse(conn)))
}

func (h *ConnectionHandler) DeleteRedis(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	tenant := tenantID(c)
	if err := h.service.DeleteRedis(c.Context(), tenant, id); err != nil {
		return respondError(c, h.logger, "redis_connection_delete_failed", err, "tenant_id", tenant, "id", id)
	}
	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionConnectionDelete, domain.ResourceTypeRedisConnection, &id, nil))
	h.logger.Infow("redis_connection_delete_success", "tenant_id", tenant, "id", id)
	return c.JSON(dto.Success(fiber.StatusOK, "redis connection deleted", nil))
}

func (h *ConnectionHandler) TestRedis(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	latency, err := h.service.TestRedis(c.Context(), tenantID(c), id)
	if err != nil {
		return respondError(c, h.logger, "redis_connection_test_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "connection ok", dto.ConnectionTestResponse{OK: true, LatencyMS: latency.Milliseconds()}))
}

func (h *ConnectionHandler) CreateDatabase(c *fiber.Ctx) error {
	var req dto.DatabaseConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("database_connection_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("database_connection_create_validation_failed", "details", errs)
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	h.logger.Infow("database_connection_create_request", "tenant_id", tenant, "name", req.Name, "db_type", req.DBType)
	conn, err := h.service.CreateDatabase(c.Context(), tenant, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "database_connection_create_failed", err, "tenant_id", tenant, "name", req.Name)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionConnectionCreate, domain.ResourceTypeDatabaseConnection, &conn.ID,
		domain.JSONB{"name": conn.Name, "db_type": string(conn.DBType)}))
	return c.Status(fiber.StatusCreated).JSON(dto.Success(fiber.StatusCreated, "database connection created", dto.DatabaseConnectionToResponse(conn)))
}

func (h *ConnectionHandler) ListDatabases(c *fiber.Ctx) error {
	tenant := tenantID(c)
	page := pageRequest(c)
	conns, total, err := h.service.ListDatabases(c.Context(), tenant, page)
	if err != nil {
		return respondError(c, h.logger, "database_connection_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, dto.DatabaseConnectionsToResponse(conns), page, total)
}

func (h *ConnectionHandler) GetDatabase(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	conn, err := h.service.GetDatabase(c.Context(), tenantID(c), id)
	if err != nil {
		return respondError(c, h.logger, "database_connection_get_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "ok", dto.DatabaseConnectionToResponse(conn)))
}

func (h *ConnectionHandler) UpdateDatabase(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	var req dto.DatabaseConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	conn, err := h.service.UpdateDatabase(c.Context(), tenant, id, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "database_connection_update_failed", err, "tenant_id", tenant, "id", id)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionConnectionUpdate, domain.ResourceTypeDatabaseConnection, &conn.ID,
		domain.JSONB{"name": conn.Name, "password_changed": req.Password != ""}))
	return c.JSON(dto.Success(fiber.StatusOK, "database connection updated", dto.DatabaseConnectionToResponse(conn)))
}

func (h *ConnectionHandler) DeleteDatabase(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	tenant := tenantID(c)
	if err := h.service.DeleteDatabase(c.Context(), tenant, id); err != nil {
		return respondError(c, h.logger, "database_connection_delete_failed", err, "tenant_id", tenant, "id", id)
	}
	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionConnectionDelete, domain.ResourceTypeDatabaseConnection, &id, nil))
	return c.JSON(dto.Success(fiber.StatusOK, "database connection deleted", nil))
}

func (h *ConnectionHandler) TestDatabase(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid connection id", nil)
	}
	latency, err := h.service.TestDatabase(c.Context(), tenantID(c), id)
	if err != nil {
		return respondError(c, h.logger, "database_connection_test_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "connection ok", dto.ConnectionTestResponse{OK: true, LatencyMS: latency.Milliseconds()}))
}
