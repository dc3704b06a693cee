package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skaji/postgres-language-server/internal/ls"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "dbConnectionString: sqlite:file.db\nlogLevel: warn\nmetricsAddr: :9000\n")

	cfg, watched, err := loadConfig(options{
		configPath: path,
		db:         "postgres://localhost/app",
		logLevel:   "debug",
	})
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if watched != path {
		t.Fatalf("expected %q to be watched, got %q", path, watched)
	}
	if cfg.DBConnectionString != "postgres://localhost/app" {
		t.Fatalf("unexpected connection string %q", cfg.DBConnectionString)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
	if cfg.MetricsAddr != ":9000" {
		t.Fatalf("unexpected metrics address %q", cfg.MetricsAddr)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, _, err := loadConfig(options{configPath: filepath.Join(t.TempDir(), "none.yaml")})
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.DBConnectionString != "" || cfg.LogLevel != "info" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	path := writeConfig(t, "logLevel: info\n")
	if _, _, err := loadConfig(options{configPath: path, logLevel: "loud"}); err == nil {
		t.Fatal("expected an invalid log level error")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != ls.ServerName+" "+ls.Version {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestRootCommandRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for positional arguments")
	}
}
