package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

type BackupHandler struct {
	service ports.BackupService
	audit   ports.AuditService
	logger  *logger.Logger
}

func NewBackupHandler(service ports.BackupService, audit ports.AuditService, logger *logger.Logger) *BackupHandler {
	return &BackupHandler{service: service, audit: audit, logger: logger}
}

func (h *BackupHandler) ListBackups(c *fiber.Ctx) error {
	category, status := c.Query("category"), c.Query("status")
	if !dto.ValidBackupCategory(category) {
		return badRequest(c, "invalid category", []string{"category must be one of: database, network"})
	}
	if !dto.ValidBackupStatus(status) {
		return badRequest(c, "invalid status", []string{"status must be one of: success, failed, deleted"})
	}

	tenant := tenantID(c)
	page := pageRequest(c)
	filter := ports.BackupFilter{
		Category: domain.BackupCategory(category),
		Status:   domain.BackupStatus(status),
	}
	records, total, err := h.service.ListBackups(c.Context(), tenant, filter, page)
	if err != nil {
		return respondError(c, h.logger, "backup_list_failed", err, "tenant_id", tenant)
	}
	return paginated(c, records, page, total)
}

// CreateManual runs the backup inline; the response carries the record
// whether it succeeded or not.
func (h *BackupHandler) CreateManual(c *fiber.Ctx) error {
	var req dto.ManualBackupRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("backup_create_body_parse_failed", "error", err)
		return badRequest(c, "invalid request body", nil)
	}
	if errs := req.Validate(); len(errs) > 0 {
		return badRequest(c, "validation failed", errs)
	}

	tenant := tenantID(c)
	h.logger.Infow("backup_create_request", "tenant_id", tenant, "connection_id", req.ConnectionID, "host_id", req.HostID)
	record, err := h.service.CreateManual(c.Context(), tenant, ports.ManualBackupInput{
		ConnectionID: req.ConnectionID,
		HostID:       req.HostID,
		RemotePath:   req.RemotePath,
		CreatedBy:    actor(c),
	})
	if record != nil {
		h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionBackupCreate, domain.ResourceTypeBackup, &record.ID,
			domain.JSONB{"filename": record.Filename, "status": string(record.Status)}))
	}
	if err != nil && record != nil {
		status := StatusFor(err)
		h.logger.Warnw("backup_create_failed", "tenant_id", tenant, "id", record.ID, "error", err)
		return c.Status(status).JSON(dto.Error(status, "backup failed", record))
	}
	if err != nil {
		return respondError(c, h.logger, "backup_create_failed", err, "tenant_id", tenant)
	}

	h.logger.Infow("backup_create_success", "tenant_id", tenant, "id", record.ID, "filename", record.Filename)
	return c.Status(fiber.StatusCreated).JSON(dto.Success(fiber.StatusCreated, "backup created", record))
}

func (h *BackupHandler) DeleteBackup(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "invalid backup id", nil)
	}
	tenant := tenantID(c)
	if err := h.service.DeleteBackup(c.Context(), tenant, id); err != nil {
		return respondError(c, h.logger, "backup_delete_failed", err, "tenant_id", tenant, "id", id)
	}
	h.audit.Record(c.Context(), auditEntry(c, domain.AuditActionBackupDelete, domain.ResourceTypeBackup, &id, nil))
	return c.JSON(dto.Success(fiber.StatusOK, "backup deleted", nil))
}
