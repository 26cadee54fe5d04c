package db

import (
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/logger"
)

// Migration is one reversible schema step. DownRevision names the step it
// builds on; the first step has an empty DownRevision.
type Migration struct {
	Revision     string
	DownRevision string
	Description  string
	Up           func(tx *gorm.DB) error
	Down         func(tx *gorm.DB) error
}

type schemaMigration struct {
	Revision  string    `gorm:"primaryKey;size:64"`
	AppliedAt time.Time `gorm:"not null"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

func createTables(models ...interface{}) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return tx.Migrator().AutoMigrate(models...)
	}
}

func dropTables(models ...interface{}) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		for i := len(models) - 1; i >= 0; i-- {
			if err := tx.Migrator().DropTable(models[i]); err != nil {
				return err
			}
		}
		return nil
	}
}

var migrations = []Migration{
	{
		Revision:    "0001_inventory",
		Description: "hosts and connection inventories",
		Up:          createTables(&domain.Host{}, &domain.RedisConnection{}, &domain.DatabaseConnection{}),
		Down:        dropTables(&domain.Host{}, &domain.RedisConnection{}, &domain.DatabaseConnection{}),
	},
	{
		Revision:     "0002_backups",
		DownRevision: "0001_inventory",
		Description:  "backup policies and records",
		Up:           createTables(&domain.BackupPolicy{}, &domain.BackupRecord{}),
		Down:         dropTables(&domain.BackupPolicy{}, &domain.BackupRecord{}),
	},
	{
		Revision:     "0003_notifications_audit",
		DownRevision: "0002_backups",
		Description:  "system notifications and audit logs",
		Up:           createTables(&domain.SystemNotification{}, &domain.AuditLog{}),
		Down:         dropTables(&domain.SystemNotification{}, &domain.AuditLog{}),
	},
	{
		Revision:     "0004_playbook_executions",
		DownRevision: "0003_notifications_audit",
		Description:  "ansible playbook executions",
		Up:           createTables(&domain.PlaybookExecution{}),
		Down:         dropTables(&domain.PlaybookExecution{}),
	},
	{
		Revision:     "0005_probes",
		DownRevision: "0004_playbook_executions",
		Description:  "network and host probes with results",
		Up: createTables(
			&domain.NetworkProbe{}, &domain.NetworkProbeResult{},
			&domain.HostProbe{}, &domain.HostProbeResult{},
		),
		Down: dropTables(
			&domain.NetworkProbe{}, &domain.NetworkProbeResult{},
			&domain.HostProbe{}, &domain.HostProbeResult{},
		),
	},
	{
		Revision:     "0006_retention_indexes",
		DownRevision: "0005_probes",
		Description:  "composite indexes used by retention sweeps",
		Up: func(tx *gorm.DB) error {
			for _, stmt := range retentionIndexes {
				if err := tx.Exec("CREATE INDEX " + stmt.name + " ON " + stmt.table + " (tenant_id, created_at)").Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			for _, stmt := range retentionIndexes {
				if err := tx.Migrator().DropIndex(stmt.table, stmt.name); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

var retentionIndexes = []struct{ table, name string }{
	{"network_probe_results", "idx_network_probe_results_tenant_created"},
	{"host_probe_results", "idx_host_probe_results_tenant_created"},
	{"audit_logs", "idx_audit_logs_tenant_created"},
}

// orderedMigrations walks the revision chain from the root, rejecting forks,
// gaps and duplicates.
func orderedMigrations(all []Migration) ([]Migration, error) {
	byParent := make(map[string]Migration, len(all))
	seen := make(map[string]bool, len(all))
	for _, m := range all {
		if m.Revision == "" || m.Up == nil || m.Down == nil {
			return nil, errors.Newf("migration %q is incomplete", m.Revision)
		}
		if seen[m.Revision] {
			return nil, errors.Newf("duplicate migration revision %q", m.Revision)
		}
		seen[m.Revision] = true
		if other, ok := byParent[m.DownRevision]; ok {
			return nil, errors.Newf("migrations %q and %q share down revision %q", other.Revision, m.Revision, m.DownRevision)
		}
		byParent[m.DownRevision] = m
	}

	ordered := make([]Migration, 0, len(all))
	parent := ""
	for {
		m, ok := byParent[parent]
		if !ok {
			break
		}
		ordered = append(ordered, m)
		parent = m.Revision
	}
	if len(ordered) != len(all) {
		return nil, errors.Newf("migration chain is broken after %q", parent)
	}
	return ordered, nil
}

func appliedRevisions(db *gorm.DB) (map[string]bool, error) {
	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return nil, err
	}
	var rows []schemaMigration
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(rows))
	for _, r := range rows {
		applied[r.Revision] = true
	}
	return applied, nil
}

// RunMigrations applies every pending step in chain order, each in its own
// transaction.
func RunMigrations(db *gorm.DB, log *logger.Logger) error {
	ordered, err := orderedMigrations(migrations)
	if err != nil {
		return err
	}
	applied, err := appliedRevisions(db)
	if err != nil {
		return errors.Wrap(err, "read schema_migrations")
	}

	for _, m := range ordered {
		if applied[m.Revision] {
			continue
		}
		if m.DownRevision != "" && !applied[m.DownRevision] {
			return errors.Newf("migration %q requires %q", m.Revision, m.DownRevision)
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{Revision: m.Revision, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			log.Errorw("migration_up_failed", "revision", m.Revision, "error", err)
			return errors.Wrapf(err, "apply migration %s", m.Revision)
		}
		applied[m.Revision] = true
		log.Infow("migration_up_ok", "revision", m.Revision, "description", m.Description)
	}
	return nil
}

// Rollback reverts the last steps applied, newest first.
func Rollback(db *gorm.DB, steps int, log *logger.Logger) error {
	ordered, err := orderedMigrations(migrations)
	if err != nil {
		return err
	}
	applied, err := appliedRevisions(db)
	if err != nil {
		return errors.Wrap(err, "read schema_migrations")
	}

	for i := len(ordered) - 1; i >= 0 && steps > 0; i-- {
		m := ordered[i]
		if !applied[m.Revision] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Down(tx); err != nil {
				return err
			}
			return tx.Delete(&schemaMigration{}, "revision = ?", m.Revision).Error
		})
		if err != nil {
			log.Errorw("migration_down_failed", "revision", m.Revision, "error", err)
			return errors.Wrapf(err, "revert migration %s", m.Revision)
		}
		log.Infow("migration_down_ok", "revision", m.Revision)
		steps--
	}
	return nil
}

// CurrentRevision returns the newest applied revision or "" on an empty schema.
func CurrentRevision(db *gorm.DB) (string, error) {
	ordered, err := orderedMigrations(migrations)
	if err != nil {
		return "", err
	}
	applied, err := appliedRevisions(db)
	if err != nil {
		return "", err
	}
	current := ""
	for _, m := range ordered {
		if applied[m.Revision] {
			current = m.Revision
		}
	}
	return current, nil
}
