package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"spritebatch/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDetector() error {
	if err := ValidateEndpoint(c.Detector.Endpoint); err != nil {
		return fmt.Errorf("detector.endpoint: %w", err)
	}
	if strings.TrimSpace(c.Detector.FieldName) == "" {
		return errors.New("detector.field_name must be set")
	}
	if c.Detector.RequestTimeoutSeconds <= 0 {
		return errors.New("detector.request_timeout_seconds must be positive")
	}
	return nil
}

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: parse %q: %w", services.ErrConfiguration, raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %q must use http or https", services.ErrConfiguration, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: %q has no host", services.ErrConfiguration, raw)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Size <= 0 {
		return fmt.Errorf("%w: batch.size must be positive, got %d", services.ErrInvalidBatchSize, c.Batch.Size)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	if len(c.Batch.Extensions) == 0 {
		return errors.New("batch.extensions must list at least one extension")
	}
	if strings.Contains(c.Batch.MarkerDir, "/") {
		return fmt.Errorf("batch.marker_dir must be a single folder name, got %q", c.Batch.MarkerDir)
	}
	return nil
}

func (c *Config) validatePublish() error {
	if !c.Publish.Enabled {
		return nil
	}
	if c.Publish.URL == "" {
		return errors.New("publish.url must be set when publish.enabled is true (or set SUPABASE_URL)")
	}
	if c.Publish.APIKey == "" {
		return errors.New("publish.api_key must be set when publish.enabled is true (or set SUPABASE_KEY)")
	}
	if c.Publish.Bucket == "" {
		return errors.New("publish.bucket must be set when publish.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if !c.Notifications.Enabled {
		return nil
	}
	if c.Notifications.AMQPURL == "" {
		return errors.New("notifications.amqp_url must be set when notifications.enabled is true (or set AMQP_URL)")
	}
	if !strings.HasPrefix(c.Notifications.AMQPURL, "amqp://") && !strings.HasPrefix(c.Notifications.AMQPURL, "amqps://") {
		return fmt.Errorf("notifications.amqp_url must use amqp:// or amqps://, got %q", c.Notifications.AMQPURL)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
}
