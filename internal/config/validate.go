package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCrawl(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCrawl() error {
	if c.Crawl.RootURL == "" {
		return errors.New("crawl.root_url must be set")
	}
	parsed, err := url.Parse(c.Crawl.RootURL)
	if err != nil {
		return fmt.Errorf("crawl.root_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("crawl.root_url must be an http(s) URL, got %q", c.Crawl.RootURL)
	}
	if c.Crawl.RetryBackoffMS < 0 {
		return errors.New("crawl.retry_backoff_ms must not be negative")
	}
	if c.Crawl.MaxPages < 0 {
		return errors.New("crawl.max_pages must not be negative")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return fmt.Errorf("workflow.heartbeat_timeout (%d) must exceed workflow.heartbeat_interval (%d)",
			c.Workflow.HeartbeatTimeout, c.Workflow.HeartbeatInterval)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.RedisAddr == "" {
		return nil
	}
	if c.RateLimit.Capacity <= 0 {
		return errors.New("rate_limit.capacity must be positive when rate_limit.redis_addr is set")
	}
	if c.RateLimit.RefillPerSecond <= 0 {
		return errors.New("rate_limit.refill_per_second must be positive when rate_limit.redis_addr is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
