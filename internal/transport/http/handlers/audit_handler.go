package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

type AuditHandler struct {
	service ports.AuditService
	logger  *logger.Logger
}

func NewAuditHandler(service ports.AuditService, logger *logger.Logger) *AuditHandler {
	return &AuditHandler{service: service, logger: logger}
}

func (h *AuditHandler) ListAuditLogs(c *fiber.Ctx) error {
	tenant := tenantID(c)
	page := pageRequest(c)
	logs, total, err := h.service.ListAuditLogs(c.Context(), tenant, page)
	if err != nil {
		return respondError(c, h.logger, "audit_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, logs, page, total)
}
