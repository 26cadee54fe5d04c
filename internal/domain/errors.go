package domain

import "github.com/cockroachdb/errors"

// Error kinds. Ad-hoc errors are marked with one of these; package level
// sentinels are declared with NewSentinel so they keep their own identity.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient infrastructure error")
	ErrTaskExecution = errors.New("task execution error")
	ErrDataIntegrity = errors.New("data integrity error")
	ErrNotFound      = errors.New("not found")
)

var (
	ErrTenantScope   = NewSentinel("tenant: scope violation", ErrDataIntegrity)
	ErrTenantMissing = NewSentinel("tenant: id is required", ErrDataIntegrity)
	ErrDuplicateName = NewSentinel("name already exists in tenant", ErrDataIntegrity)
	ErrInvalidStatus = NewSentinel("invalid status transition", ErrDataIntegrity)
)

// sentinelKinds is written only from package-level var initialisers.
var sentinelKinds = map[error]error{}

// NewSentinel declares a sentinel error belonging to kind without marking
// it, so errors.Is still tells two sentinels of one kind apart.
func NewSentinel(msg string, kind error) error {
	err := errors.New(msg)
	sentinelKinds[err] = kind
	return err
}

func MarkConfiguration(err error) error { return errors.Mark(err, ErrConfiguration) }
func MarkTransient(err error) error     { return errors.Mark(err, ErrTransient) }
func MarkTaskExecution(err error) error { return errors.Mark(err, ErrTaskExecution) }
func MarkNotFound(err error) error      { return errors.Mark(err, ErrNotFound) }

// IsKind reports whether err is marked with kind or wraps a sentinel
// declared with that kind.
func IsKind(err, kind error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, kind) {
		return true
	}
	for sentinel, k := range sentinelKinds {
		if k == kind && errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Kind names the taxonomy bucket of err for logs and metrics labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrConfiguration):
		return "configuration"
	case IsKind(err, ErrTransient):
		return "transient"
	case IsKind(err, ErrDataIntegrity):
		return "data_integrity"
	case IsKind(err, ErrNotFound):
		return "not_found"
	case IsKind(err, ErrTaskExecution):
		return "task_execution"
	default:
		return "internal"
	}
}
