package testsupport

import (
	"path/filepath"
	"testing"

	"drift/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, applies any provided options, and creates the
// base directory tree.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ConfigDir = filepath.Join(base, "config")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.RuntimeDir = filepath.Join(base, "run")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithEventBuffers overrides the event bus ring and replay sizes.
func WithEventBuffers(bufferSize, replayOnSubscribe int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Events.BufferSize = bufferSize
		b.cfg.Events.ReplayOnSubscribe = replayOnSubscribe
	}
}

// WithSubscriberQueue overrides the per-subscriber queue capacity.
func WithSubscriberQueue(capacity int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Events.SubscriberQueue = capacity
	}
}

// WithSupervisorTiming shortens supervision timing for tests that exercise
// restarts.
func WithSupervisorTiming(stopTimeoutSeconds, backoffBaseSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Supervisor.StopTimeoutSeconds = stopTimeoutSeconds
		b.cfg.Supervisor.BackoffBaseSeconds = backoffBaseSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
