package dto

import (
	"strings"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
)

type CreatePlaybookRequest struct {
	Playbook   string            `json:"playbook"`
	Limit      string            `json:"limit,omitempty"`
	ExtraVars  map[string]string `json:"extra_vars,omitempty"`
	TotalTasks int               `json:"total_tasks"`
}

func (r *CreatePlaybookRequest) Validate() []string {
	var errors []string

	if strings.TrimSpace(r.Playbook) == "" {
		errors = append(errors, "playbook is required")
	} else if strings.Contains(r.Playbook, "..") {
		errors = append(errors, "playbook must not contain '..'")
	}
	if r.TotalTasks < 0 {
		errors = append(errors, "total_tasks must not be negative")
	}

	return errors
}

func (r *CreatePlaybookRequest) ToInput(createdBy string) ports.CreatePlaybookInput {
	return ports.CreatePlaybookInput{
		Playbook:   r.Playbook,
		Limit:      r.Limit,
		ExtraVars:  r.ExtraVars,
		TotalTasks: r.TotalTasks,
		CreatedBy:  createdBy,
	}
}

// PlaybookResultRequest is posted by the runner callback with counters to
// add and, on the last call, the final status.
type PlaybookResultRequest struct {
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	Changed      int    `json:"changed"`
	Status       string `json:"status,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (r *PlaybookResultRequest) Validate() []string {
	var errors []string

	if r.Completed < 0 || r.Failed < 0 || r.Skipped < 0 || r.Changed < 0 {
		errors = append(errors, "counters must not be negative")
	}
	switch domain.ExecutionStatus(r.Status) {
	case "", domain.ExecutionStatusRunning, domain.ExecutionStatusSuccess,
		domain.ExecutionStatusFailed, domain.ExecutionStatusTimeout:
	default:
		errors = append(errors, "status must be one of: running, success, failed, timeout")
	}

	return errors
}

func (r *PlaybookResultRequest) ToInput() ports.PlaybookResultInput {
	return ports.PlaybookResultInput{
		Delta: domain.ProgressDelta{
			Completed: r.Completed,
			Failed:    r.Failed,
			Skipped:   r.Skipped,
			Changed:   r.Changed,
		},
		Status:       domain.ExecutionStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
	}
}
