package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"crawlq/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	chdir(t, t.TempDir())

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

	wantData := filepath.Join(tempHome, ".local", "share", "crawlq")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.QueuePath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected queue path: %q", cfg.QueuePath())
	}
	if cfg.Crawl.RootURL != config.Default().Crawl.RootURL {
		t.Fatalf("unexpected root url: %q", cfg.Crawl.RootURL)
	}
	if cfg.Workflow.Workers != 1 {
		t.Fatalf("expected one worker by default, got %d", cfg.Workflow.Workers)
	}
	if cfg.RateLimit.RedisAddr != "" {
		t.Fatalf("expected rate limiting disabled by default, got %q", cfg.RateLimit.RedisAddr)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `[paths]
data_dir = "~/crawl-data"

[crawl]
root_url = "http://localhost:8080/genres"
fetch_attempts = 5
max_pages = 4

[workflow]
workers = 3
heartbeat_interval = 5
heartbeat_timeout = 20

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "crawl-data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Crawl.RootURL != "http://localhost:8080/genres" {
		t.Fatalf("unexpected root url: %q", cfg.Crawl.RootURL)
	}
	if cfg.Crawl.FetchAttempts != 5 || cfg.Crawl.MaxPages != 4 {
		t.Fatalf("unexpected crawl settings: %+v", cfg.Crawl)
	}
	if cfg.Workflow.Workers != 3 {
		t.Fatalf("unexpected workers: %d", cfg.Workflow.Workers)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging values lowercased, got %+v", cfg.Logging)
	}
	if cfg.Crawl.UserAgent == "" {
		t.Fatal("expected user agent default to survive partial crawl section")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	t.Setenv("CRAWLQ_ROOT_URL", "https://example.test/root")
	t.Setenv("CRAWLQ_REDIS_ADDR", "127.0.0.1:6379")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Crawl.RootURL != "https://example.test/root" {
		t.Fatalf("expected root url from env, got %q", cfg.Crawl.RootURL)
	}
	if cfg.RateLimit.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("expected redis addr from env, got %q", cfg.RateLimit.RedisAddr)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty root", func(c *config.Config) { c.Crawl.RootURL = "" }, "crawl.root_url"},
		{"non http root", func(c *config.Config) { c.Crawl.RootURL = "ftp://example.test" }, "http(s)"},
		{"heartbeat order", func(c *config.Config) {
			c.Workflow.HeartbeatInterval = 30
			c.Workflow.HeartbeatTimeout = 10
		}, "heartbeat_timeout"},
		{"rate capacity", func(c *config.Config) {
			c.RateLimit.RedisAddr = "localhost:6379"
			c.RateLimit.Capacity = 0
		}, "rate_limit.capacity"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "chatty" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestCreateSampleProducesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Crawl.RootURL == "" {
		t.Fatal("expected sample to set crawl.root_url")
	}
	if cfg.Workflow.Workers != 1 {
		t.Fatalf("unexpected sample workers: %d", cfg.Workflow.Workers)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
