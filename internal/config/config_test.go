package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"backend-relay-go/internal/endpoint"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[backend]
origin = "http://10.0.0.5:8000"
timeout_seconds = 60
idle_connections = 50

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Backend.Origin != "http://10.0.0.5:8000" {
		t.Errorf("Backend.Origin = %q, want %q", cfg.Backend.Origin, "http://10.0.0.5:8000")
	}
	if cfg.Backend.TimeoutSeconds != 60 {
		t.Errorf("Backend.TimeoutSeconds = %d, want %d", cfg.Backend.TimeoutSeconds, 60)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Backend.Origin != DefaultOrigin {
		t.Errorf("Backend.Origin = %q, want %q", cfg.Backend.Origin, DefaultOrigin)
	}
	if cfg.Backend.TimeoutSeconds != 120 {
		t.Errorf("Backend.TimeoutSeconds = %d, want %d", cfg.Backend.TimeoutSeconds, 120)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[backend]
origin = "http://10.0.0.5:8000"
`)

	cli := &CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     7000,
		Origin:   "https://backend.internal",
		LogLevel: "warn",
	}
	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 7000)
	}
	if cfg.Backend.Origin != "https://backend.internal" {
		t.Errorf("Backend.Origin = %q, want %q", cfg.Backend.Origin, "https://backend.internal")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoad_InvalidOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
	}{
		{"bad scheme", "ftp://example.com"},
		{"no host", "http://"},
		{"not a url", "::::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "[backend]\norigin = \""+tt.origin+"\"\n")
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Errorf("Load() expected error for origin %q, got nil", tt.origin)
			}
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "verbose"
`)
	if _, err := Load(cliWithPath(path)); err == nil {
		t.Error("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_MetricsPathConflict(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
path = "/healthz"
`)
	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for conflicting metrics path, got nil")
	}
	if !strings.Contains(err.Error(), "reserved route") {
		t.Errorf("error = %v, want mention of reserved route", err)
	}
}

func TestLoad_ConfigEndpointsAppended(t *testing.T) {
	path := writeConfig(t, `
[[endpoints]]
name = "report_download"
method = "get"
route = "/api/reports/:id/file"
backend_path = "/api/reports/{id}/file"
response_mode = "stream"

[endpoints.fallback_headers]
Content-Type = "application/pdf"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	table := cfg.EndpointTable()
	want := len(endpoint.Defaults()) + 1
	if len(table) != want {
		t.Fatalf("endpoint table size = %d, want %d", len(table), want)
	}

	last := table[len(table)-1]
	if last.Name != "report_download" {
		t.Errorf("name = %q, want %q", last.Name, "report_download")
	}
	if last.Method != "GET" {
		t.Errorf("method = %q, want %q (normalized)", last.Method, "GET")
	}
	if last.ResponseMode != endpoint.ResponseStream {
		t.Errorf("response_mode = %q, want %q", last.ResponseMode, endpoint.ResponseStream)
	}
	if last.FallbackHeaders["Content-Type"] != "application/pdf" {
		t.Errorf("fallback Content-Type = %q, want %q", last.FallbackHeaders["Content-Type"], "application/pdf")
	}
	// Normalize should have filled the default header rules.
	if len(last.HeaderRules) == 0 {
		t.Error("expected default header rules on config endpoint")
	}
}

func TestLoad_InvalidEndpointRejected(t *testing.T) {
	path := writeConfig(t, `
[[endpoints]]
name = "broken"
method = "GET"
route = "/api/things/:id"
backend_path = "/api/things/{other}"
`)
	if _, err := Load(cliWithPath(path)); err == nil {
		t.Error("Load() expected error for unbound placeholder, got nil")
	}
}

func TestLoad_DuplicateEndpointName(t *testing.T) {
	path := writeConfig(t, `
[[endpoints]]
name = "login"
method = "POST"
route = "/api/other/login"
backend_path = "/api/other/login"
`)
	if _, err := Load(cliWithPath(path)); err == nil {
		t.Error("Load() expected error for duplicate endpoint name, got nil")
	}
}

func TestLoad_RateLimitRequiresPositiveRate(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 0.0
`)
	if _, err := Load(cliWithPath(path)); err == nil {
		t.Error("Load() expected error for zero rate limit, got nil")
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(existing, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), existing})
	if got != existing {
		t.Errorf("findConfigInPaths() = %q, want %q", got, existing)
	}

	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestAddr(t *testing.T) {
	sc := &ServerConfig{Host: "0.0.0.0", Port: 8080}
	if got := sc.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want %q", got, "0.0.0.0:8080")
	}
}
