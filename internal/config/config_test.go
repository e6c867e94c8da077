package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"spritebatch/internal/config"
	"spritebatch/internal/services"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SPRITEBATCH_ENDPOINT", "")
	t.Setenv("SPRITEBATCH_OUTPUT_DIR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "spritebatch")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected absolute output dir, got %q", cfg.Paths.OutputDir)
	}
	if !strings.HasSuffix(cfg.Paths.OutputDir, filepath.Join("results", "from_recursive_upload")) {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Detector.Endpoint != "http://127.0.0.1:8000/predict-annotated/" {
		t.Fatalf("unexpected endpoint: %q", cfg.Detector.Endpoint)
	}
	if cfg.Detector.FieldName != "files" {
		t.Fatalf("unexpected field name: %q", cfg.Detector.FieldName)
	}
	if cfg.Batch.Size != 100 {
		t.Fatalf("unexpected batch size: %d", cfg.Batch.Size)
	}
	if cfg.Batch.Workers != 1 {
		t.Fatalf("unexpected worker count: %d", cfg.Batch.Workers)
	}
	if got := strings.Join(cfg.Batch.Extensions, ","); got != ".jpg,.jpeg,.png" {
		t.Fatalf("unexpected extensions: %s", got)
	}
	if cfg.Batch.MarkerDir != "sprites_detected" {
		t.Fatalf("unexpected marker dir: %q", cfg.Batch.MarkerDir)
	}
	if cfg.RequestTimeout() != 10*time.Minute {
		t.Fatalf("unexpected request timeout: %s", cfg.RequestTimeout())
	}
	if cfg.LedgerPath() != filepath.Join(wantState, "spritebatch.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.LedgerPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if _, err := os.Stat(cfg.Paths.OutputDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected output dir to be left uncreated, stat err=%v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "spritebatch.toml")
	t.Setenv("SPRITEBATCH_ENDPOINT", "")

	type payload struct {
		Detector struct {
			Endpoint              string `toml:"endpoint"`
			RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
		} `toml:"detector"`
		Batch struct {
			Size       int      `toml:"size"`
			Workers    int      `toml:"workers"`
			Extensions []string `toml:"extensions"`
		} `toml:"batch"`
		Paths struct {
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
	}
	custom := payload{}
	custom.Detector.Endpoint = "https://detector.example.com/predict-annotated/"
	custom.Detector.RequestTimeoutSeconds = 30
	custom.Batch.Size = 25
	custom.Batch.Workers = 3
	custom.Batch.Extensions = []string{"JPG", ".png", "jpg", " "}
	custom.Paths.OutputDir = filepath.Join(tempDir, "out")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.LoadWithEnvFile(configPath, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Detector.Endpoint != "https://detector.example.com/predict-annotated/" {
		t.Fatalf("expected endpoint override, got %q", cfg.Detector.Endpoint)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.RequestTimeout())
	}
	if cfg.Batch.Size != 25 || cfg.Batch.Workers != 3 {
		t.Fatalf("unexpected batch settings: %+v", cfg.Batch)
	}
	if got := strings.Join(cfg.Batch.Extensions, ","); got != ".jpg,.png" {
		t.Fatalf("expected normalized extensions, got %s", got)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempDir, "out") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
}

func TestEnvOverridesAndDotEnvFallback(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	contents := strings.Join([]string{
		"SPRITEBATCH_ENDPOINT=http://dotenv.local:9000/predict-annotated/",
		"SUPABASE_URL=https://project.supabase.co/",
		"SUPABASE_KEY=dotenv-key",
		"AMQP_URL=amqp://dotenv:5672/",
	}, "\n")
	if err := os.WriteFile(envPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SPRITEBATCH_ENDPOINT", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("SUPABASE_KEY", "process-key")

	cfg, _, _, err := config.LoadWithEnvFile(filepath.Join(tempDir, "missing.toml"), envPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Detector.Endpoint != "http://dotenv.local:9000/predict-annotated/" {
		t.Errorf("expected endpoint from .env, got %q", cfg.Detector.Endpoint)
	}
	if cfg.Publish.URL != "https://project.supabase.co" {
		t.Errorf("expected trimmed supabase url from .env, got %q", cfg.Publish.URL)
	}
	if cfg.Publish.APIKey != "process-key" {
		t.Errorf("expected process env to win over .env, got %q", cfg.Publish.APIKey)
	}
	if cfg.Notifications.AMQPURL != "amqp://dotenv:5672/" {
		t.Errorf("expected amqp url from .env, got %q", cfg.Notifications.AMQPURL)
	}
	if os.Getenv("SUPABASE_URL") != "" {
		t.Error("expected .env values to stay out of the process environment")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "sprites_detected") {
		t.Fatalf("sample config missing marker dir: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Batch.Size != 100 {
		t.Fatalf("expected sample batch size 100, got %d", cfg.Batch.Size)
	}

	t.Setenv("SPRITEBATCH_ENDPOINT", "")
	t.Setenv("SUPABASE_KEY", "")
	t.Setenv("AMQP_URL", "")
	if _, _, _, err := config.LoadWithEnvFile(path, ""); err != nil {
		t.Fatalf("expected sample to load cleanly: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Batch.Size = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for non-positive batch size")
	}
	if !errors.Is(err, services.ErrInvalidBatchSize) {
		t.Fatalf("expected invalid batch size marker, got %v", err)
	}

	cfg = config.Default()
	cfg.Detector.Endpoint = "ftp://example.com/upload"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http endpoint")
	}

	cfg = config.Default()
	cfg.Detector.RequestTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}

	cfg = config.Default()
	cfg.Batch.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero workers")
	}

	cfg = config.Default()
	cfg.Batch.MarkerDir = "a/b"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for nested marker dir")
	}

	cfg = config.Default()
	cfg.Publish.Enabled = true
	cfg.Publish.URL = "https://project.supabase.co"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when publish enabled without api key")
	}

	cfg = config.Default()
	cfg.Notifications.Enabled = true
	cfg.Notifications.AMQPURL = "http://broker"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-amqp notification url")
	}

	cfg = config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log format")
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestNormalizeExtensions(t *testing.T) {
	got := config.NormalizeExtensions([]string{"PNG", ".Jpg", "", ".", "png", "jpeg"})
	want := []string{".png", ".jpg", ".jpeg"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("NormalizeExtensions = %v, want %v", got, want)
	}
}
