package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type NotificationHandler struct {
	service ports.NotificationService
	logger  *logger.Logger
}

func NewNotificationHandler(service ports.NotificationService, logger *logger.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	filter := ports.NotificationFilter{UnreadOnly: c.QueryBool("unread", false)}
	if userID := c.QueryInt("user_id", 0); userID > 0 {
		uid := uint(userID)
		filter.UserID = &uid
	}

	tenant := tenantID(c)
	page := pageRequest(c)
	items, total, err := h.service.ListNotifications(c.Context(), tenant, filter, page)
	if err != nil {
		return respondError(c, h.logger, "notification_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, items, page, total)
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid notification id", nil)
	}
	if err := h.service.MarkRead(c.Context(), tenantID(c), id); err != nil {
		return respondError(c, h.logger, "notification_mark_read_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "notification marked as read", nil))
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid notification id", nil)
	}
	if err := h.service.DeleteNotification(c.Context(), tenantID(c), id); err != nil {
		return respondError(c, h.logger, "notification_delete_failed", err, "id", id)
	}
	return c.JSON(dto.Success(fiber.StatusOK, "notification deleted", nil))
}
