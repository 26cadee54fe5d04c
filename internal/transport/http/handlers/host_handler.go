package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type HostHandler struct {
	service ports.HostService
	audit   ports.AuditService
	logger  *logger.Logger
}

func NewHostHandler(service ports.HostService, audit ports.AuditService, logger *logger.Logger) *HostHandler {
	return &HostHandler{service: service, audit: audit, logger: logger}
}

func (h *HostHandler) CreateHost(c *fiber.Ctx) error {
	var req dto.CreateHostRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("host_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("host_create_validation_failed", "details", errs)
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	h.logger.Infow("host_create_request", "tenant_id", tenant, "name", req.Name, "address", req.Address)
	host, err := h.service.CreateHost(c.Context(), tenant, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "host_create_failed", err, "tenant_id", tenant, "name", req.Name)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionHostCreate, domain.ResourceTypeHost, &host.ID,
		domain.JSONB{"name": host.Name, "address": host.Address}))
	h.logger.Infow("host_create_success", "tenant_id", tenant, "id", host.ID)
	return c.Status(fiber.StatusCreated).JSON(dto.Success(fiber.StatusCreated, "host created", host))
}

func (h *HostHandler) ListHosts(c *fiber.Ctx) error {
	tenant := tenantID(c)
	page := pageRequest(c)
	hosts, total, err := h.service.ListHosts(c.Context(), tenant, page)
	if err != nil {
		return respondError(c, h.logger, "host_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, hosts, page, total)
}

func (h *HostHandler) GetHost(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid host id", nil)
	}
	host, err := h.service.GetHost(c.Context(), tenantID(c), id)
	if err != nil {
		return respondError(c, h.logger, "host_get_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "ok", host))
}

func (h *HostHandler) DeleteHost(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid host id", nil)
	}
	tenant := tenantID(c)
	if err := h.service.DeleteHost(c.Context(), tenant, id); err != nil {
		return respondError(c, h.logger, "host_delete_failed", err, "tenant_id", tenant, "id", id)
	}
	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionHostDelete, domain.ResourceTypeHost, &id, nil))
	return c.JSON(dto.Success(fiber.StatusOK, "host deleted", nil))
}
