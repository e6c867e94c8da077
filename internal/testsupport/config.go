package testsupport

import (
	"path/filepath"
	"testing"

	"spritebatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options. Remote
// publishing and notifications are disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "results", "from_recursive_upload")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Detector.Endpoint = "http://127.0.0.1:0/predict-annotated/"
	cfgVal.Detector.RequestTimeoutSeconds = 5
	cfgVal.Publish.Enabled = false
	cfgVal.Notifications.Enabled = false

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

// WithEndpoint points the detector at the supplied URL, typically a
// FakeDetector.
func WithEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Detector.Endpoint = url
	}
}

// WithBatch overrides batch size and worker count.
func WithBatch(size, workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Size = size
		b.cfg.Batch.Workers = workers
	}
}

// WithoutLedger disables run history.
func WithoutLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
