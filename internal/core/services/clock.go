package services

import "time"

// Clock is injected so retention and schedule checks can be tested at fixed
// instants. Implementations return UTC.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

func uintPtr(v uint) *uint { return &v }

// tenantTargets resolves the tenants a sweep covers: one when the caller
// pinned it, otherwise every tenant that has rows.
func tenantTargets(only *uint, all func() ([]uint, error)) ([]uint, error) {
	if only != nil {
		return []uint{*only}, nil
	}
	return all()
}
