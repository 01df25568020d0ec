package telemetry_test

import (
	"testing"

	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/robalyx/bgcheck/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestManagerDisabledWithoutDSN(t *testing.T) {
	t.Parallel()

	manager := telemetry.NewManager(&config.Telemetry{}, "test", zaptest.NewLogger(t))
	assert.False(t, manager.Enabled())

	manager.Stop(t.Context())
}
