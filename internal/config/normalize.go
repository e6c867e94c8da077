package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize(env map[string]string) error {
	lookup := envLookup(env)
	if err := c.normalizePaths(lookup); err != nil {
		return err
	}
	c.normalizeDetector(lookup)
	c.normalizeBatch()
	if err := c.normalizeLedger(); err != nil {
		return err
	}
	c.normalizePublish(lookup)
	c.normalizeNotifications(lookup)
	c.normalizeLogging()
	return nil
}

// envLookup prefers the process environment over dotenv values.
func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		if value, ok := env[key]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), true
		}
		return "", false
	}
}

func (c *Config) normalizePaths(lookup func(string) (string, bool)) error {
	if value, ok := lookup("SPRITEBATCH_OUTPUT_DIR"); ok {
		c.Paths.OutputDir = value
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = os.TempDir()
	}

	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDetector(lookup func(string) (string, bool)) {
	if value, ok := lookup("SPRITEBATCH_ENDPOINT"); ok {
		c.Detector.Endpoint = value
	}
	c.Detector.Endpoint = strings.TrimSpace(c.Detector.Endpoint)
	if c.Detector.Endpoint == "" {
		c.Detector.Endpoint = defaultEndpoint
	}
	c.Detector.FieldName = strings.TrimSpace(c.Detector.FieldName)
	if c.Detector.FieldName == "" {
		c.Detector.FieldName = defaultFieldName
	}
	c.Detector.UserAgent = strings.TrimSpace(c.Detector.UserAgent)
	if c.Detector.UserAgent == "" {
		c.Detector.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeBatch() {
	c.Batch.Extensions = NormalizeExtensions(c.Batch.Extensions)
	if len(c.Batch.Extensions) == 0 {
		c.Batch.Extensions = append([]string(nil), defaultExtensions...)
	}
	c.Batch.MarkerDir = strings.Trim(strings.TrimSpace(c.Batch.MarkerDir), "/")
	if c.Batch.MarkerDir == "" {
		c.Batch.MarkerDir = defaultMarkerDir
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = defaultBatchWorkers
	}
}

func (c *Config) normalizeLedger() error {
	if strings.TrimSpace(c.Ledger.Path) == "" {
		return nil
	}
	expanded, err := expandPath(c.Ledger.Path)
	if err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	c.Ledger.Path = expanded
	return nil
}

func (c *Config) normalizePublish(lookup func(string) (string, bool)) {
	if c.Publish.URL == "" {
		if value, ok := lookup("SUPABASE_URL"); ok {
			c.Publish.URL = value
		}
	}
	if value, ok := lookup("SUPABASE_KEY"); ok {
		c.Publish.APIKey = value
	}
	if c.Publish.Bucket == "" {
		if value, ok := lookup("SUPABASE_BUCKET"); ok {
			c.Publish.Bucket = value
		}
	}
	c.Publish.URL = strings.TrimRight(strings.TrimSpace(c.Publish.URL), "/")
	c.Publish.APIKey = strings.TrimSpace(c.Publish.APIKey)
	c.Publish.Bucket = strings.TrimSpace(c.Publish.Bucket)
	c.Publish.Prefix = strings.Trim(strings.TrimSpace(c.Publish.Prefix), "/")
}

func (c *Config) normalizeNotifications(lookup func(string) (string, bool)) {
	if value, ok := lookup("AMQP_URL"); ok {
		c.Notifications.AMQPURL = value
	}
	c.Notifications.AMQPURL = strings.TrimSpace(c.Notifications.AMQPURL)
	c.Notifications.Queue = strings.TrimSpace(c.Notifications.Queue)
	if c.Notifications.Queue == "" {
		c.Notifications.Queue = defaultNotificationsQueue
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeExtensions lowercases extensions, adds the leading dot, and drops
// blanks and duplicates while preserving order.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" || normalized == "." {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
