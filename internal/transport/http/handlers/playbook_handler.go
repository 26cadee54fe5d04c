package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type PlaybookHandler struct {
	service ports.PlaybookService
	logger  *logger.Logger
}

func NewPlaybookHandler(service ports.PlaybookService, logger *logger.Logger) *PlaybookHandler {
	return &PlaybookHandler{service: service, logger: logger}
}

func (h *PlaybookHandler) CreateExecution(c *fiber.Ctx) error {
	var req dto.CreatePlaybookRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("playbook_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	h.logger.Infow("playbook_create_request", "tenant_id", tenant, "playbook", req.Playbook)
	exec, err := h.service.CreateExecution(c.Context(), tenant, req.ToInput(actor(c)))
	if err != nil {
		return respondError(c, h.logger, "playbook_create_failed", err, "tenant_id", tenant, "playbook", req.Playbook)
	}

	h.logger.Infow("playbook_create_success", "tenant_id", tenant, "execution_id", exec.ExecutionID)
	return c.Status(fiber.StatusAccepted).JSON(dto.Success(fiber.StatusAccepted, "playbook execution queued", exec))
}

func (h *PlaybookHandler) ListExecutions(c *fiber.Ctx) error {
	tenant := tenantID(c)
	page := pageRequest(c)
	items, total, err := h.service.ListExecutions(c.Context(), tenant, page)
	if err != nil {
		return respondError(c, h.logger, "playbook_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, items, page, total)
}

func (h *PlaybookHandler) GetExecution(c *fiber.Ctx) error {
	executionID := c.Params("execution_id")
	exec, err := h.service.GetExecution(c.Context(), tenantID(c), executionID)
	if err != nil {
		return respondError(c, h.logger, "playbook_get_failed", err, "execution_id", executionID)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "ok", exec))
}

// RecordResults is the runner callback. Counters are added atomically so
// concurrent callbacks for one execution never lose an update.
func (h *PlaybookHandler) RecordResults(c *fiber.Ctx) error {
	executionID := c.Params("execution_id")
	var req dto.PlaybookResultRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	exec, err := h.service.RecordResults(c.Context(), tenant, executionID, req.ToInput())
	if err != nil {
		return respondError(c, h.logger, "playbook_callback_failed", err, "tenant_id", tenant, "execution_id", executionID)
	}
	h.logger.Debugw("playbook_callback_applied", "execution_id", executionID, "status", exec.Status)
	return c.JSON(dto.Success(fiber.StatusOK, "results recorded", exec))
}
