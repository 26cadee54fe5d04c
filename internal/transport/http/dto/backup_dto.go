package dto

import "github.com/opspanel/backend/internal/domain"

type ManualBackupRequest struct {
	ConnectionID *uint  `json:"connection_id,omitempty"`
	HostID       *uint  `json:"host_id,omitempty"`
	RemotePath   string `json:"remote_path,omitempty"`
}

func (r *ManualBackupRequest) Validate() []string {
	var errors []string

	switch {
	case r.ConnectionID == nil && r.HostID == nil:
		errors = append(errors, "connection_id or host_id is required")
	case r.ConnectionID != nil && r.HostID != nil:
		errors = append(errors, "connection_id and host_id are mutually exclusive")
	case r.HostID != nil && r.RemotePath == "":
		errors = append(errors, "remote_path is required for network backups")
	}

	return errors
}

// ValidBackupCategory accepts the empty string as "any".
func ValidBackupCategory(c string) bool {
	switch domain.BackupCategory(c) {
	case "", domain.BackupCategoryDatabase, domain.BackupCategoryNetwork:
		return true
	}
	return false
}

func ValidBackupStatus(s string) bool {
	switch domain.BackupStatus(s) {
	case "", domain.BackupStatusSuccess, domain.BackupStatusFailed, domain.BackupStatusDeleted:
		return true
	}
	return false
}
