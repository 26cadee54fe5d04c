package sysinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectReportsMemory(t *testing.T) {
	stats := Collect(context.Background())
	assert.NotZero(t, stats.CollectedAt)
	assert.LessOrEqual(t, stats.RAMUsed, stats.RAMTotal)
	assert.GreaterOrEqual(t, stats.RAMUsage, 0.0)
}
