package middleware

import (
	"crypto/subtle"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/opspanel/backend/internal/config"
	"github.com/opspanel/backend/internal/transport/http/dto"
)

const (
	HeaderAdminToken    = "X-Admin-Token"
	HeaderCallbackToken = "X-Callback-Token"
	HeaderTenantID      = "X-Tenant-ID"

	localTenantID = "tenant_id"
)

func bearerToken(c *fiber.Ctx, header string) string {
	if token := c.Get(header); token != "" {
		return token
	}
	const prefix = "Bearer "
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.Error(fiber.StatusUnauthorized, "unauthorized", nil))
}

// AdminAuth is a no-op when no admin key is configured.
func AdminAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := cfg.Auth.AdminAPIKey
		if apiKey == "" {
			return c.Next()
		}
		if !tokenMatches(bearerToken(c, HeaderAdminToken), apiKey) {
			return unauthorized(c)
		}
		return c.Next()
	}
}

// CallbackAuth guards the runner result callback. Without a dedicated
// callback token the admin key is accepted instead.
func CallbackAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := cfg.Auth.CallbackToken
		header := HeaderCallbackToken
		if token == "" {
			token = cfg.Auth.AdminAPIKey
			header = HeaderAdminToken
		}
		if token == "" {
			return c.Next()
		}
		if !tokenMatches(bearerToken(c, header), token) {
			return unauthorized(c)
		}
		return c.Next()
	}
}

// TenantScope requires a positive X-Tenant-ID and stores it for handlers.
func TenantScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(HeaderTenantID)
		if raw == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.Error(fiber.StatusBadRequest, "tenant is required", []string{HeaderTenantID + " header is missing"}))
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(dto.Error(fiber.StatusBadRequest, "invalid tenant", []string{HeaderTenantID + " must be a positive integer"}))
		}
		c.Locals(localTenantID, uint(id))
		return c.Next()
	}
}

// TenantID returns the tenant stored by TenantScope, or 0 outside it.
func TenantID(c *fiber.Ctx) uint {
	id, _ := c.Locals(localTenantID).(uint)
	return id
}
