package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type ScheduleHandler struct {
	service ports.ScheduleService
	audit   ports.AuditService
	logger  *logger.Logger
}

func NewScheduleHandler(service ports.ScheduleService, audit ports.AuditService, logger *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, audit: audit, logger: logger}
}

func (h *ScheduleHandler) ListSchedules(c *fiber.Ctx) error {
	views, err := h.service.ListSchedules(c.Context())
	if err != nil {
		return respondError(c, h.logger, "schedule_list_failed", err)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "ok", views))
}

func (h *ScheduleHandler) SetEnabled(c *fiber.Ctx) error {
	name := c.Params("name")
	var req dto.ToggleScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		return badRequest(c, "validation failed", errs)
	}

	view, err := h.service.SetEnabled(c.Context(), name, *req.Enabled)
	if err != nil {
		return respondError(c, h.logger, "schedule_toggle_failed", err, "name", name)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionScheduleToggle, domain.ResourceTypeScheduledTask, nil,
		domain.JSONB{"name": name, "enabled": *req.Enabled}))
	h.logger.Infow("schedule_toggle_success", "name", name, "enabled", *req.Enabled)
	return c.JSON(dto.Success(fiber.StatusOK, "schedule updated", view))
}

func (h *ScheduleHandler) RunNow(c *fiber.Ctx) error {
	name := c.Params("name")
	inv, err := h.service.RunNow(c.Context(), name)
	if err != nil {
		return respondError(c, h.logger, "schedule_run_now_failed", err, "name", name)
	}

	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionTaskRun, domain.ResourceTypeScheduledTask, nil,
		domain.JSONB{"name": name, "invocation_id": inv.ID, "task": inv.Task}))
	h.logger.Infow("schedule_run_now_success", "name", name, "invocation_id", inv.ID)
	return c.Status(fiber.StatusAccepted).JSON(dto.Success(fiber.StatusAccepted, "task queued", inv))
}

func (h *ScheduleHandler) RevokeTask(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Revoke(c.Context(), id); err != nil {
		return respondError(c, h.logger, "task_revoke_failed", err, "invocation_id", id)
	}
	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionTaskRevoke, domain.ResourceTypeScheduledTask, nil,
		domain.JSONB{"invocation_id": id}))
	return c.JSON(dto.Success(fiber.StatusOK, "task revoked", nil))
}

func (h *ScheduleHandler) QueueLengths(c *fiber.Ctx) error {
	lengths, err := h.service.QueueLengths(c.Context())
	if err != nil {
		return respondError(c, h.logger, "queue_lengths_failed", err)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "ok", lengths))
}
