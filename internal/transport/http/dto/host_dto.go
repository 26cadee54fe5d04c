package dto

import "github.com/opspanel/backend/internal/core/ports"

type CreateHostRequest struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	SSHPort    int    `json:"ssh_port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

func (r *CreateHostRequest) Validate() []string {
	var errors []string

	if r.Name == "" {
		errors = append(errors, "name is required")
	}
	if r.Address == "" {
		errors = append(errors, "address is required")
	}
	if r.SSHPort < 0 || r.SSHPort > 65535 {
		errors = append(errors, "ssh_port must be between 1 and 65535")
	}
	if r.Username == "" {
		errors = append(errors, "username is required")
	}
	if r.Password == "" && r.PrivateKey == "" {
		errors = append(errors, "either password or private_key is required")
	}

	return errors
}

func (r *CreateHostRequest) ToInput() ports.CreateHostInput {
	return ports.CreateHostInput{
		Name:     r.Name,
		Address:  r.Address,
		SSHPort:  r.SSHPort,
		User:     r.Username,
		Password: r.Password,
		SSHKey:   r.PrivateKey,
	}
}
