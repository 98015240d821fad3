package execution

import (
	"context"
	"io"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the clock used for run times and timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithTelemetry records one vertex per job execution.
func WithTelemetry(telemetry ports.Telemetry) Option {
	return func(m *Manager) {
		m.telemetry = telemetry
	}
}

// WithConfig sets the retry, timeout and polling settings.
func WithConfig(cfg domain.SchedulerConfig) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string) {}
func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(error) {}

type nopTelemetry struct{}

func (nopTelemetry) Record(ctx context.Context, _ string, _ ...ports.VertexOption) (context.Context, ports.Vertex) {
	return ctx, nopVertex{}
}

func (nopTelemetry) Close() error { return nil }

type nopVertex struct{}

func (nopVertex) Stdout() io.Writer { return io.Discard }
func (nopVertex) Stderr() io.Writer { return io.Discard }
func (nopVertex) Log(domain.LogLevel, string) {}
func (nopVertex) Complete(error) {}
func (nopVertex) Cached() {}
