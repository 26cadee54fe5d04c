package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opspanel/backend/internal/app"
	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/domain"
	"github.com/opspanel/backend/internal/infrastructure/db"
	"github.com/opspanel/backend/internal/infrastructure/logger"
	"github.com/opspanel/backend/internal/infrastructure/metrics"
	"github.com/opspanel/backend/internal/infrastructure/queue"
	httpmw "github.com/opspanel/backend/internal/transport/http/middleware"
)

const (
	adminKey      = "admin-key"
	callbackToken = "callback-token"
)

type apiFixture struct {
	app    *fiber.App
	broker *queue.MemoryBroker
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.NewNop()

	gdb, err := db.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), log)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.RunMigrations(gdb, log))

	cfg := &config.Config{
		Auth:      config.AuthConfig{AdminAPIKey: adminKey, CallbackToken: callbackToken},
		Security:  config.SecurityConfig{EncryptionKey: "router-test-key-0123456789abcdef"},
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
		Worker:    config.WorkerConfig{Queues: []string{domain.QueueAnsible, domain.QueueMaintenance}},
		Metrics:   config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	broker := queue.NewMemoryBroker()
	m := metrics.New()
	container, err := app.Build(app.Options{Config: cfg, DB: gdb, Logger: log, Metrics: m, Broker: broker})
	require.NoError(t, err)

	fiberApp := fiber.New()
	SetupRoutes(fiberApp, RouterConfig{
		DB:       gdb,
		Logger:   log,
		Config:   cfg,
		Metrics:  m,
		Services: container,
	})
	return &apiFixture{app: fiberApp, broker: broker}
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func (f *apiFixture) do(t *testing.T, method, path string, tenant uint, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(httpmw.HeaderAdminToken, adminKey)
	if tenant != 0 {
		req.Header.Set(httpmw.HeaderTenantID, fmt.Sprint(tenant))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

func TestAPIRequiresAdminKeyAndTenant(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, "GET", "/api/v1/hosts", 1, nil, httpmw.HeaderAdminToken, "wrong")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.Equal(t, fiber.StatusUnauthorized, env.Code)

	status, env = f.do(t, "GET", "/api/v1/hosts", 0, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "tenant is required", env.Message)
}

func TestRedisConnectionLifecycle(t *testing.T) {
	f := newAPI(t)
	body := map[string]interface{}{"name": "cache", "host": "10.0.0.5", "password": "hunter2"}

	status, env := f.do(t, "POST", "/api/v1/connections/redis", 1, body)
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	assert.NotContains(t, string(env.Data), "hunter2")
	var created struct {
		ID          uint   `json:"id"`
		Port        int    `json:"port"`
		HasPassword bool   `json:"has_password"`
		Status      string `json:"status"`
	}
	decode(t, env.Data, &created)
	assert.True(t, created.HasPassword)
	assert.Equal(t, 6379, created.Port)
	assert.Equal(t, "enabled", created.Status)

	status, _ = f.do(t, "POST", "/api/v1/connections/redis", 1, body)
	assert.Equal(t, fiber.StatusConflict, status)

	// Same name in another tenant is fine; the first tenant's row is invisible there.
	status, _ = f.do(t, "POST", "/api/v1/connections/redis", 2, body)
	assert.Equal(t, fiber.StatusCreated, status)
	status, _ = f.do(t, "GET", fmt.Sprintf("/api/v1/connections/redis/%d", created.ID), 2, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, env = f.do(t, "GET", "/api/v1/connections/redis?page=1&per_page=10", 1, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.NotContains(t, string(env.Data), "hunter2")
	var page struct {
		Items      []map[string]interface{} `json:"items"`
		Pagination struct {
			Page    int   `json:"page"`
			PerPage int   `json:"per_page"`
			Total   int64 `json:"total"`
			Pages   int64 `json:"pages"`
		} `json:"pagination"`
	}
	decode(t, env.Data, &page)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Pagination.Total)
	assert.Equal(t, int64(1), page.Pagination.Pages)
	assert.Equal(t, 10, page.Pagination.PerPage)

	status, env = f.do(t, "POST", "/api/v1/connections/redis", 1, map[string]interface{}{"name": "", "db_index": 20})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation failed", env.Message)

	status, _ = f.do(t, "DELETE", fmt.Sprintf("/api/v1/connections/redis/%d", created.ID), 1, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, env = f.do(t, "GET", "/api/v1/audit-logs", 1, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(env.Data), domain.AuditActionConnectionCreate)
	assert.Contains(t, string(env.Data), domain.AuditActionConnectionDelete)
	assert.NotContains(t, string(env.Data), "hunter2")
}

func TestPlaybookCreateAndCallback(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, "POST", "/api/v1/playbooks", 3, map[string]interface{}{"playbook": "site.yml", "total_tasks": 2})
	require.Equal(t, fiber.StatusAccepted, status, env.Message)
	var exec domain.PlaybookExecution
	decode(t, env.Data, &exec)
	assert.Equal(t, domain.ExecutionStatusPending, exec.Status)

	status, env = f.do(t, "GET", "/api/v1/tasks/queues", 3, nil)
	require.Equal(t, fiber.StatusOK, status)
	var lengths map[string]int64
	decode(t, env.Data, &lengths)
	assert.Equal(t, int64(1), lengths[domain.QueueAnsible])

	path := "/api/v1/callbacks/playbooks/" + exec.ExecutionID + "/results"

	// Admin key alone is not accepted on the callback route.
	status, _ = f.do(t, "POST", path, 3, map[string]interface{}{"completed": 1})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, env = f.do(t, "POST", path, 3, map[string]interface{}{"completed": 1, "changed": 1, "status": "running"},
		httpmw.HeaderCallbackToken, callbackToken)
	require.Equal(t, fiber.StatusOK, status, env.Message)

	status, env = f.do(t, "POST", path, 3, map[string]interface{}{"completed": 1, "status": "success"},
		httpmw.HeaderCallbackToken, callbackToken)
	require.Equal(t, fiber.StatusOK, status, env.Message)
	decode(t, env.Data, &exec)
	assert.Equal(t, domain.ExecutionStatusSuccess, exec.Status)
	assert.Equal(t, 2, exec.CompletedTasks)
	assert.Equal(t, 1, exec.ChangedTasks)

	status, _ = f.do(t, "POST", path, 3, map[string]interface{}{"failed": 1, "status": "failed"},
		httpmw.HeaderCallbackToken, callbackToken)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = f.do(t, "GET", "/api/v1/playbooks/"+exec.ExecutionID, 4, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = f.do(t, "POST", "/api/v1/playbooks", 3, map[string]interface{}{"playbook": "../../etc/shadow"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestScheduleRoutes(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, "GET", "/api/v1/schedules", 1, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(env.Data), "cleanup-audit-logs")

	status, env = f.do(t, "PUT", "/api/v1/schedules/cleanup-audit-logs/enabled", 1, map[string]interface{}{"enabled": false})
	require.Equal(t, fiber.StatusOK, status, env.Message)
	var view struct {
		Enabled   bool    `json:"enabled"`
		NextRunAt *string `json:"next_run_at"`
	}
	decode(t, env.Data, &view)
	assert.False(t, view.Enabled)
	assert.Nil(t, view.NextRunAt)

	status, _ = f.do(t, "PUT", "/api/v1/schedules/nope/enabled", 1, map[string]interface{}{"enabled": true})
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = f.do(t, "PUT", "/api/v1/schedules/cleanup-audit-logs/enabled", 1, map[string]interface{}{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	// Disabled definitions can still be run by hand.
	status, env = f.do(t, "POST", "/api/v1/schedules/cleanup-audit-logs/run", 1, nil)
	require.Equal(t, fiber.StatusAccepted, status, env.Message)
	var inv domain.TaskInvocation
	decode(t, env.Data, &inv)
	assert.Equal(t, domain.TaskCleanupAuditLogs, inv.Task)
	assert.Equal(t, domain.OriginAPI, inv.Origin)

	status, _ = f.do(t, "POST", "/api/v1/tasks/"+inv.ID+"/revoke", 1, nil)
	assert.Equal(t, fiber.StatusOK, status)
	revoked, err := f.broker.IsRevoked(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestBackupAndNotificationErrors(t *testing.T) {
	f := newAPI(t)

	status, _ := f.do(t, "DELETE", "/api/v1/backups/99", 1, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = f.do(t, "DELETE", "/api/v1/backups/abc", 1, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.do(t, "GET", "/api/v1/backups?category=tape", 1, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, env := f.do(t, "GET", "/api/v1/backups?category=database&status=success", 1, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = f.do(t, "POST", "/api/v1/backups", 1, map[string]interface{}{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = f.do(t, "POST", "/api/v1/notifications/5/read", 1, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPI(t)

	status, env := f.do(t, "GET", "/health", 0, nil)
	require.Equal(t, fiber.StatusOK, status)
	var report struct {
		Status string `json:"status"`
		Redis  struct {
			Status string `json:"status"`
		} `json:"redis"`
	}
	decode(t, env.Data, &report)
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "disabled", report.Redis.Status)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
