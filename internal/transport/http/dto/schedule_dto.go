package dto

type ToggleScheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r *ToggleScheduleRequest) Validate() []string {
	if r.Enabled == nil {
		return []string{"enabled is required"}
	}
	return nil
}
