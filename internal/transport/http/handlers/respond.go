package handlers

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/core/services"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
	httpmw "github.com/opspanel/backend/internal/transport/http/middleware"
)

const HeaderActor = "X-Actor"

var invalidInput = []error{
	services.ErrConnectionInvalidInput,
	services.ErrHostInvalidInput,
	services.ErrBackupInvalidInput,
	services.ErrPlaybookInvalidInput,
	services.ErrScheduleInvalidInput,
	services.ErrNotificationInvalidInput,
	domain.ErrTenantMissing,
}

// StatusFor maps an error kind to the HTTP status the API answers with.
func StatusFor(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrTenantScope):
		return fiber.StatusForbidden
	case errors.IsAny(err, invalidInput...):
		return fiber.StatusBadRequest
	case domain.IsKind(err, domain.ErrDataIntegrity):
		return fiber.StatusConflict
	case domain.IsKind(err, domain.ErrTransient):
		return fiber.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTaskExecution):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError logs event and writes the error envelope. Internal errors
// are not echoed to the client.
func respondError(c *fiber.Ctx, log *logger.Logger, event string, err error, keysAndValues ...interface{}) error {
	status := StatusFor(err)
	kv := append(keysAndValues, "error", err, "kind", domain.Kind(err), "status", status)
	message := err.Error()
	if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
		log.Errorw(event, kv...)
		message = "internal server error"
	} else {
		log.Warnw(event, kv...)
	}
	return c.Status(status).JSON(dto.Error(status, message, nil))
}

func badRequest(c *fiber.Ctx, message string, details []string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.Error(fiber.StatusBadRequest, message, details))
}

func parseID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func pageRequest(c *fiber.Ctx) ports.PageRequest {
	return ports.PageRequest{
		Page:    c.QueryInt("page", 1),
		PerPage: c.QueryInt("per_page", ports.DefaultPerPage),
	}.Normalize()
}

func paginated(c *fiber.Ctx, items interface{}, page ports.PageRequest, total int64) error {
	return c.JSON(dto.Paginated(items, page.Page, page.PerPage, total))
}

func actor(c *fiber.Ctx) string {
	if a := c.Get(HeaderActor); a != "" {
		return a
	}
	return "admin"
}

func tenantID(c *fiber.Ctx) uint {
	return httpmw.TenantID(c)
}

func auditEntry(c *fiber.Ctx, action, resourceType string, resourceID *uint, details domain.JSONB) ports.AuditEntry {
	if details == nil {
		details = domain.JSONB{}
	}
	details["actor"] = actor(c)
	return ports.AuditEntry{
		TenantID:     tenantID(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IPAddress:    c.IP(),
	}
}
