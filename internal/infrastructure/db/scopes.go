package db

import (
	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
)

// tenantScope is applied to every query against a tenant-owned table.
func tenantScope(tenantID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

func paginate(page ports.PageRequest) func(*gorm.DB) *gorm.DB {
	p := page.Normalize()
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PerPage)
	}
}

func requireTenant(tenantID uint) error {
	if tenantID == 0 {
		return errors.WithStack(domain.ErrTenantMissing)
	}
	return nil
}

func translateReadErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.MarkNotFound(errors.Newf("%s: not found", what))
	}
	return domain.MarkTransient(errors.Wrapf(err, "read %s", what))
}

func translateWriteErr(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrapf(domain.ErrDuplicateName, "%s", what)
	}
	return domain.MarkTransient(errors.Wrapf(err, "write %s", what))
}
