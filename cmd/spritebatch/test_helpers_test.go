package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"spritebatch/internal/config"
	"spritebatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	detector   *testsupport.FakeDetector
	root       string
}

func setupCLITestEnv(t *testing.T, images int, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	fd := testsupport.NewFakeDetector(t)
	opts = append([]testsupport.ConfigOption{testsupport.WithEndpoint(fd.URL()), testsupport.WithBatch(2, 1)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)

	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, key := range []string{"SPRITEBATCH_ENDPOINT", "SPRITEBATCH_OUTPUT_DIR", "SUPABASE_URL", "SUPABASE_KEY", "SUPABASE_BUCKET", "AMQP_URL"} {
		t.Setenv(key, "")
	}
	t.Chdir(base)

	configPath := filepath.Join(base, "spritebatch.toml")
	writeTestConfig(t, configPath, cfg)

	root := filepath.Join(base, "images")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir images: %v", err)
	}
	testsupport.WriteImages(t, root, images)

	return &cliTestEnv{cfg: cfg, configPath: configPath, detector: fd, root: root}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
