package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCrawl()
	c.normalizeWorkflow()
	c.normalizeRateLimit()
	c.normalizeLogging()
	if c.Retention.CompletedDays < 0 {
		c.Retention.CompletedDays = 0
	}
	c.Telemetry.MetricsAddr = strings.TrimSpace(c.Telemetry.MetricsAddr)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCrawl() {
	if value, ok := os.LookupEnv("CRAWLQ_ROOT_URL"); ok && strings.TrimSpace(value) != "" {
		c.Crawl.RootURL = value
	}
	c.Crawl.RootURL = strings.TrimSpace(c.Crawl.RootURL)
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	if c.Crawl.UserAgent == "" {
		c.Crawl.UserAgent = defaultUserAgent
	}
	if c.Crawl.RequestTimeout <= 0 {
		c.Crawl.RequestTimeout = defaultRequestTimeout
	}
	if c.Crawl.FetchAttempts <= 0 {
		c.Crawl.FetchAttempts = 1
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
}

func (c *Config) normalizeRateLimit() {
	if value, ok := os.LookupEnv("CRAWLQ_REDIS_ADDR"); ok {
		c.RateLimit.RedisAddr = value
	}
	c.RateLimit.RedisAddr = strings.TrimSpace(c.RateLimit.RedisAddr)
	if c.RateLimit.RedisPassword == "" {
		if value, ok := os.LookupEnv("CRAWLQ_REDIS_PASSWORD"); ok {
			c.RateLimit.RedisPassword = strings.TrimSpace(value)
		}
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
