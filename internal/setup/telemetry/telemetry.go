package telemetry

import (
	"context"

	"github.com/robalyx/bgcheck/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
)

// DefaultServiceName is reported with spans when none is configured.
const DefaultServiceName = "bgcheck"

// Manager owns the tracing exporter lifecycle.
type Manager struct {
	enabled bool
	logger  *zap.Logger
}

// NewManager configures the uptrace exporter when a DSN is set.
// Without a DSN the global no-op tracer provider stays in place.
func NewManager(cfg *config.Telemetry, version string, logger *zap.Logger) *Manager {
	manager := &Manager{logger: logger.Named("telemetry")}
	if cfg.UptraceDSN == "" {
		return manager
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(serviceName),
		uptrace.WithServiceVersion(version),
	)

	manager.enabled = true
	manager.logger.Info("Tracing enabled", zap.String("service", serviceName))

	return manager
}

// Enabled reports whether spans are exported.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Stop flushes pending spans.
func (m *Manager) Stop(ctx context.Context) {
	if !m.enabled {
		return
	}

	if err := uptrace.Shutdown(ctx); err != nil {
		m.logger.Warn("Failed to flush traces", zap.Error(err))
	}
}
