package dto

import (
	"time"

	"github.com/opspanel/backend/internal/core/ports"
	"github.com/opspanel/backend/internal/domain"
)

type RedisConnectionRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	DBIndex     int    `json:"db_index"`
	Password    string `json:"password,omitempty"`
	Status      string `json:"status"`
	Timeout     int    `json:"timeout"`
	Description string `json:"description,omitempty"`
}

func (r *RedisConnectionRequest) Validate() []string {
	var errors []string

	if r.Name == "" {
		errors = append(errors, "name is required")
	}
	if r.Host == "" {
		errors = append(errors, "host is required")
	}
	if r.Port < 0 || r.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}
	if r.DBIndex < 0 || r.DBIndex > 15 {
		errors = append(errors, "db_index must be between 0 and 15")
	}
	if r.Timeout < 0 {
		errors = append(errors, "timeout must not be negative")
	}
	errors = append(errors, validateStatus(r.Status)...)

	return errors
}

func (r *RedisConnectionRequest) ToInput() ports.RedisConnectionInput {
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return ports.RedisConnectionInput{
		Name:        r.Name,
		Host:        r.Host,
		Port:        port,
		DBIndex:     r.DBIndex,
		Password:    r.Password,
		Status:      connectionStatus(r.Status),
		Timeout:     r.Timeout,
		Description: r.Description,
	}
}

type DatabaseConnectionRequest struct {
	Name         string `json:"name"`
	DBType       string `json:"db_type"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DatabaseName string `json:"database_name"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	Status       string `json:"status"`
	Timeout      int    `json:"timeout"`
	Description  string `json:"description,omitempty"`
}

func (r *DatabaseConnectionRequest) Validate() []string {
	var errors []string

	if r.Name == "" {
		errors = append(errors, "name is required")
	}
	if r.DBType != string(domain.DatabaseTypePostgres) && r.DBType != string(domain.DatabaseTypeMySQL) {
		errors = append(errors, "db_type must be one of: postgres, mysql")
	}
	if r.Host == "" {
		errors = append(errors, "host is required")
	}
	if r.Port < 0 || r.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}
	if r.DatabaseName == "" {
		errors = append(errors, "database_name is required")
	}
	if r.Username == "" {
		errors = append(errors, "username is required")
	}
	if r.Timeout < 0 {
		errors = append(errors, "timeout must not be negative")
	}
	errors = append(errors, validateStatus(r.Status)...)

	return errors
}

func (r *DatabaseConnectionRequest) ToInput() ports.DatabaseConnectionInput {
	port := r.Port
	if port == 0 {
		if r.DBType == string(domain.DatabaseTypeMySQL) {
			port = 3306
		} else {
			port = 5432
		}
	}
	return ports.DatabaseConnectionInput{
		Name:         r.Name,
		DBType:       domain.DatabaseType(r.DBType),
		Host:         r.Host,
		Port:         port,
		DatabaseName: r.DatabaseName,
		Username:     r.Username,
		Password:     r.Password,
		Status:       connectionStatus(r.Status),
		Timeout:      r.Timeout,
		Description:  r.Description,
	}
}

func validateStatus(status string) []string {
	switch status {
	case "", string(domain.ConnectionStatusEnabled), string(domain.ConnectionStatusDisabled):
		return nil
	default:
		return []string{"status must be one of: enabled, disabled"}
	}
}

func connectionStatus(status string) domain.ConnectionStatus {
	if status == "" {
		return domain.ConnectionStatusEnabled
	}
	return domain.ConnectionStatus(status)
}

// Connection responses report whether a password is stored, never the
// password itself.
type RedisConnectionResponse struct {
	ID          uint                    `json:"id"`
	Name        string                  `json:"name"`
	Host        string                  `json:"host"`
	Port        int                     `json:"port"`
	DBIndex     int                     `json:"db_index"`
	HasPassword bool                    `json:"has_password"`
	Status      domain.ConnectionStatus `json:"status"`
	Timeout     int                     `json:"timeout"`
	Description string                  `json:"description,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func RedisConnectionToResponse(conn *domain.RedisConnection) RedisConnectionResponse {
	return RedisConnectionResponse{
		ID:          conn.ID,
		Name:        conn.Name,
		Host:        conn.Host,
		Port:        conn.Port,
		DBIndex:     conn.DBIndex,
		HasPassword: conn.Password != "",
		Status:      conn.Status,
		Timeout:     conn.Timeout,
		Description: conn.Description,
		CreatedAt:   conn.CreatedAt,
		UpdatedAt:   conn.UpdatedAt,
	}
}

func RedisConnectionsToResponse(conns []domain.RedisConnection) []RedisConnectionResponse {
	responses := make([]RedisConnectionResponse, len(conns))
	for i := range conns {
		responses[i] = RedisConnectionToResponse(&conns[i])
	}
	return responses
}

type DatabaseConnectionResponse struct {
	ID           uint                    `json:"id"`
	Name         string                  `json:"name"`
	DBType       domain.DatabaseType     `json:"db_type"`
	Host         string                  `json:"host"`
	Port         int                     `json:"port"`
	DatabaseName string                  `json:"database_name"`
	Username     string                  `json:"username"`
	HasPassword  bool                    `json:"has_password"`
	Status       domain.ConnectionStatus `json:"status"`
	Timeout      int                     `json:"timeout"`
	Description  string                  `json:"description,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

func DatabaseConnectionToResponse(conn *domain.DatabaseConnection) DatabaseConnectionResponse {
	return DatabaseConnectionResponse{
		ID:           conn.ID,
		Name:         conn.Name,
		DBType:       conn.DBType,
		Host:         conn.Host,
		Port:         conn.Port,
		DatabaseName: conn.DatabaseName,
		Username:     conn.Username,
		HasPassword:  conn.Password != "",
		Status:       conn.Status,
		Timeout:      conn.Timeout,
		Description:  conn.Description,
		CreatedAt:    conn.CreatedAt,
		UpdatedAt:    conn.UpdatedAt,
	}
}

func DatabaseConnectionsToResponse(conns []domain.DatabaseConnection) []DatabaseConnectionResponse {
	responses := make([]DatabaseConnectionResponse, len(conns))
	for i := range conns {
		responses[i] = DatabaseConnectionToResponse(&conns[i])
	}
	return responses
}

type ConnectionTestResponse struct {
	OK        bool  `json:"ok"`
	LatencyMS int64 `json:"latency_ms"`
}
