package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"crawlq/internal/config"
	"crawlq/internal/queue"
	"crawlq/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	site       *testsupport.Site
	server     *httptest.Server
}

func setupCLITestEnv(t *testing.T, site *testsupport.Site) *cliTestEnv {
	t.Helper()

	server := httptest.NewServer(site)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithRootURL(server.URL+"/feature/genre/"))
	cfg.Telemetry.MetricsAddr = ""
	configPath := filepath.Join(testsupport.BaseDir(cfg), "crawlq.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, site: site, server: server}
}

func (e *cliTestEnv) openStore(t *testing.T) *queue.Store {
	t.Helper()
	return testsupport.MustOpenStore(t, e.cfg)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
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

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
