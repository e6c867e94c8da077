package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spritebatch/internal/config"
	"spritebatch/internal/logging"
	"spritebatch/internal/services"
)

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "warn"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Debug("debug reaches the file only", logging.String("k", "v"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("expected one json record, got %q: %v", content, err)
	}
	if record["msg"] != "debug reaches the file only" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["level"] != "debug" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if record["k"] != "v" {
		t.Fatalf("expected attribute in file record, got %v", record)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "INFO") || !strings.Contains(buf.String(), "message without caller") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller")

	if !strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestConsoleHeaderCarriesRunAndBatch(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "3f2a9c1d-aaaa-bbbb")
	ctx = services.WithBatchIndex(ctx, 2)
	ctx = services.WithStage(ctx, "upload")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "pipeline")).
		Warn("batch failed", logging.Error(errors.New("boom")))

	out := buf.String()
	if !strings.Contains(out, "[pipeline] Run 3f2a9c1d · Batch 2 (upload) – batch failed") {
		t.Fatalf("unexpected header: %q", out)
	}
	if strings.Contains(out, "- run_id:") {
		t.Fatalf("header fields should not repeat as attributes: %q", out)
	}
	if !strings.Contains(out, "- error: boom") {
		t.Fatalf("expected error field: %q", out)
	}
}

func TestConsoleInfoHidesExtraFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("many fields",
		logging.String("a", "1"), logging.String("b", "2"), logging.String("c", "3"),
		logging.String("d", "4"), logging.String("e", "5"), logging.String("f", "6"),
		logging.String("g", "7"), logging.String(logging.FieldEventType, "run_completed"),
	)

	out := buf.String()
	if !strings.Contains(out, "+ 2 more fields hidden") {
		t.Fatalf("expected hidden field summary, got %q", out)
	}
	first := strings.Index(out, "- event_type")
	if first < 0 || first > strings.Index(out, "- a:") {
		t.Fatalf("expected event_type to be printed first: %q", out)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if record["msg"] != "json message" || record["level"] != "info" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key: %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected info threshold, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithBatchIndex(ctx, 3)
	ctx = services.WithStage(ctx, "extract")
	ctx = services.WithRequestID(ctx, "req-xyz")
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	want := map[string]any{
		logging.FieldRunID:         "run-1",
		logging.FieldBatchIndex:    float64(3),
		logging.FieldStage:         "extract",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %v", key, record[key], value)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "batch failed", "batch_failed", logging.String(logging.FieldErrorHint, "check endpoint"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if record[logging.FieldEventType] != "batch_failed" {
		t.Fatalf("expected event_type, got %v", record)
	}
	if record[logging.FieldErrorHint] != "check endpoint" {
		t.Fatalf("expected caller hint to win, got %v", record[logging.FieldErrorHint])
	}
	if _, ok := record[logging.FieldImpact]; !ok {
		t.Fatalf("expected default impact, got %v", record)
	}
}

func TestFormatSubject(t *testing.T) {
	cases := []struct {
		run, batch, stage, want string
	}{
		{"", "", "", ""},
		{"abcdef0123456789", "", "", "Run abcdef01"},
		{"", "4", "", "Batch 4"},
		{"", "", "archive", "archive"},
		{"r1", "2", "upload", "Run r1 · Batch 2 (upload)"},
	}
	for _, tc := range cases {
		if got := logging.FormatSubject(tc.run, tc.batch, tc.stage); got != tc.want {
			t.Errorf("FormatSubject(%q,%q,%q) = %q, want %q", tc.run, tc.batch, tc.stage, got, tc.want)
		}
	}
}
