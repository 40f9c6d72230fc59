package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iwvelando/premium-forecast/pkg/constants"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Address == "" {
		t.Fatalf("expected default address, got empty")
	}
	if cfg.UploadSizeBytes() <= 0 {
		t.Fatalf("expected positive default max upload size, got %d", cfg.UploadSizeBytes())
	}
	if cfg.Timeout() != DefaultRequestTimeout {
		t.Fatalf("expected default request timeout, got %s", cfg.Timeout())
	}
	if cfg.Logging.Level != "" || cfg.Logging.Format != "" || cfg.Logging.OutputFile != "" {
		t.Fatalf("expected empty logging defaults, got %+v", cfg.Logging)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server-config.yaml")

	contents := []byte(`address: 127.0.0.1:9000
maxUploadSize: 2M
requestTimeout: 45s
logging:
  level: debug
  format: console
  outputFile: /tmp/server.log
`)
	if err := os.WriteFile(path, contents, 0600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("expected address override, got %s", cfg.Address)
	}
	if cfg.Timeout() != 45*time.Second {
		t.Fatalf("expected request timeout override, got %s", cfg.Timeout())
	}
	if cfg.UploadSizeBytes() != 2*1024*1024 {
		t.Fatalf("expected max upload override, got %d", cfg.UploadSizeBytes())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected logging format console, got %s", cfg.Logging.Format)
	}
	if cfg.Logging.OutputFile != "/tmp/server.log" {
		t.Fatalf("expected logging outputFile /tmp/server.log, got %s", cfg.Logging.OutputFile)
	}
}

func TestLoadConfigInvalidYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(path, []byte("maxUploadSize: invalid"), 0600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML but got nil")
	}
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":          constants.DefaultMaxUploadSizeBytes,
		"1024":      1024,
		"512b":      512,
		"256K":      256 * 1024,
		"1m":        1024 * 1024,
		"3MB":       3 * 1024 * 1024,
		"2G":        2 * 1024 * 1024 * 1024,
		"  4096   ": 4096,
	}

	for input, expected := range tests {
		got, err := ParseSize(input)
		if err != nil {
			t.Fatalf("parseSize(%q) returned error: %v", input, err)
		}
		if got != expected {
			t.Fatalf("parseSize(%q) = %d, expected %d", input, got, expected)
		}
	}

	if _, err := ParseSize("1TB"); err == nil {
		t.Fatal("expected error for unsupported unit")
	}
	if _, err := ParseSize("abc"); err == nil {
		t.Fatal("expected error for invalid number")
	}
}

func TestLoadConfigInvalidTimeout(t *testing.T) {
	for _, timeout := range []string{"soon", "-5s"} {
		path := filepath.Join(t.TempDir(), "server-config.yaml")
		if err := os.WriteFile(path, []byte("requestTimeout: "+timeout), 0600); err != nil {
			t.Fatalf("failed to write temp config: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("LoadConfig() expected error for requestTimeout %q", timeout)
		}
	}
}

func TestBaseConfiguration(t *testing.T) {
	dir := t.TempDir()
	forecastPath := filepath.Join(dir, "config.yaml")
	contents := []byte(`forecast:
  cutoff: "2026-03-15"
  conservativeAdjustment: -5
phase:
  line: CUMPLIMIENTO
`)
	if err := os.WriteFile(forecastPath, contents, 0600); err != nil {
		t.Fatalf("failed to write forecast config: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		wantLine  string
		expectErr bool
	}{
		{name: "Defaults without a path", wantLine: constants.DefaultPhaseLine},
		{name: "Seeded from file", path: forecastPath, wantLine: "CUMPLIMIENTO"},
		{name: "Missing file", path: filepath.Join(dir, "missing.yaml"), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ForecastConfig: tt.path}
			base, err := cfg.BaseConfiguration()
			if tt.expectErr {
				if err == nil {
					t.Errorf("BaseConfiguration() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("BaseConfiguration() error = %v", err)
			}
			if base.Phase.Line != tt.wantLine {
				t.Errorf("BaseConfiguration() phase line = %q, expected %q", base.Phase.Line, tt.wantLine)
			}
		})
	}
}
