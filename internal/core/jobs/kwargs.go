package jobs

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/opspanel/backend/internal/domain"
)

// ErrBadKwarg is returned when a kwarg is present but cannot be read as the
// expected type. Malformed kwargs fail the invocation, they never panic.
var ErrBadKwarg = domain.NewSentinel("jobs: bad kwarg", domain.ErrTaskExecution)

// Kwargs arrive as float64 when decoded from the broker's JSON, as int from
// a YAML schedule and as string from hand-built invocations.
func intKwarg(kwargs map[string]interface{}, key string, fallback int) (int, error) {
	v, ok := kwargs[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint:
		return int(n), nil
	case float64:
		if math.Abs(n) > math.MaxInt32 {
			return 0, errors.Wrapf(ErrBadKwarg, "%s=%v is out of range", key, n)
		}
		if n != math.Trunc(n) {
			return 0, errors.Wrapf(ErrBadKwarg, "%s=%v is not a whole number", key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errors.Wrapf(ErrBadKwarg, "%s=%v", key, n)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, errors.Wrapf(ErrBadKwarg, "%s=%q", key, n)
		}
		return i, nil
	}
	return 0, errors.Wrapf(ErrBadKwarg, "%s has type %T", key, v)
}

func boundedKwarg(kwargs map[string]interface{}, key string, fallback, max int) (int, error) {
	n, err := intKwarg(kwargs, key, fallback)
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > max {
		return 0, errors.Wrapf(ErrBadKwarg, "%s must be within 1..%d, got %d", key, max, n)
	}
	return n, nil
}

// tenantKwarg returns nil when the invocation covers every tenant.
func tenantKwarg(kwargs map[string]interface{}) (*uint, error) {
	if _, ok := kwargs["tenant_id"]; !ok {
		return nil, nil
	}
	n, err := intKwarg(kwargs, "tenant_id", 0)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, errors.Wrapf(ErrBadKwarg, "tenant_id must be positive, got %d", n)
	}
	id := uint(n)
	return &id, nil
}

func stringKwarg(kwargs map[string]interface{}, key string) (string, error) {
	v, ok := kwargs[key]
	if !ok {
		return "", errors.Wrapf(ErrBadKwarg, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.Wrapf(ErrBadKwarg, "%s must be a non-empty string", key)
	}
	return s, nil
}

var ErrMissingTenant = errors.Wrap(ErrBadKwarg, "tenant_id is required")
