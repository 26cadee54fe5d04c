package services

import (
	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/domain"
)

// Connection errors
var (
	ErrConnectionInvalidInput = domain.NewSentinel("connection: invalid input", domain.ErrDataIntegrity)
	ErrConnectionDisabled     = domain.NewSentinel("connection: profile is disabled", domain.ErrTaskExecution)
	ErrConnectionTestFailed   = domain.NewSentinel("connection: test failed", domain.ErrTaskExecution)
)

// Host errors
var (
	ErrHostInvalidInput = domain.NewSentinel("host: invalid input", domain.ErrDataIntegrity)
)

// Backup errors
var (
	ErrBackupInvalidInput = domain.NewSentinel("backup: invalid input", domain.ErrDataIntegrity)
	ErrBackupFailed       = domain.NewSentinel("backup: creation failed", domain.ErrTaskExecution)
)

// Playbook errors
var (
	ErrPlaybookInvalidInput = domain.NewSentinel("playbook: invalid input", domain.ErrDataIntegrity)
	ErrPlaybookNotRunnable  = domain.NewSentinel("playbook: execution is not pending", domain.ErrDataIntegrity)
)

// Cleanup errors
var (
	ErrCleanupInvalidRetention = domain.NewSentinel("cleanup: retention out of range", domain.ErrTaskExecution)
)

// Encryption errors
var (
	ErrEncryptionFailed = errors.New("encryption: failed to encrypt data")
	ErrDecryptionFailed = errors.New("encryption: failed to decrypt data")
)

var ErrScheduleInvalidInput = domain.NewSentinel("schedule: invocation id is required", domain.ErrDataIntegrity)
