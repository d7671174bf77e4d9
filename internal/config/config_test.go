package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harshul/microrun/internal/browser"
)

func TestReadMissingFileIsDefault(t *testing.T) {
	cfg, err := Read(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Runtime.Host != "dotnet" || cfg.Build.Configuration != "Debug" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.BrowserPolicy() != browser.PolicyProfile {
		t.Errorf("expected profile browser policy")
	}
}

func TestReadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	body := `
build:
  configuration: Release
  timeout: 2m
runtime:
  host: ""
browser: never
batch:
  concurrency: 2
stop_grace_period: 1500ms
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Build.Configuration != "Release" || cfg.Build.Timeout != 2*time.Minute {
		t.Errorf("build section not applied: %+v", cfg.Build)
	}
	if cfg.Build.Command != "dotnet" {
		t.Errorf("unset keys should keep defaults, got %q", cfg.Build.Command)
	}
	if cfg.Runtime.Host != "" {
		t.Errorf("explicit empty host should clear the default, got %q", cfg.Runtime.Host)
	}
	if cfg.BrowserPolicy() != browser.PolicyNever || cfg.Batch.Concurrency != 2 {
		t.Errorf("unexpected browser/batch: %+v", cfg)
	}
	if cfg.StopGracePeriod != 1500*time.Millisecond {
		t.Errorf("unexpected grace period %s", cfg.StopGracePeriod)
	}
	if cfg.Logging.Level == nil || *cfg.Logging.Level != "debug" {
		t.Errorf("logging level not applied")
	}
}

func TestReadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad policy":  "browser: sometimes\n",
		"negative":    "batch:\n  concurrency: -1\n",
		"bad logging": "logging:\n  sink: syslog\n",
		"not yaml":    "build: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Read(path); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.Browser = "always"
	cfg.Runtime.IISExpressPath = `C:\Program Files\IIS Express\iisexpress.exe`
	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Browser != "always" || got.Runtime.IISExpressPath != cfg.Runtime.IISExpressPath {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.StopGracePeriod != cfg.StopGracePeriod {
		t.Errorf("duration lost: %s", got.StopGracePeriod)
	}
}

func TestPathsFollowEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvConfig, "")

	path, err := Path()
	if err != nil || path != filepath.Join(dir, FileName) {
		t.Errorf("Path() = %q, %v", path, err)
	}
	reg, err := Default().Registry()
	if err != nil || reg != filepath.Join(dir, RegistryFile) {
		t.Errorf("Registry() = %q, %v", reg, err)
	}

	t.Setenv(EnvConfig, filepath.Join(dir, "custom.yaml"))
	if path, _ := Path(); !strings.HasSuffix(path, "custom.yaml") {
		t.Errorf("expected MICRORUN_CONFIG override, got %q", path)
	}

	cfg := Default()
	cfg.RegistryPath = filepath.Join(dir, "elsewhere.json")
	if reg, _ := cfg.Registry(); reg != cfg.RegistryPath {
		t.Errorf("expected registry_path override, got %q", reg)
	}
}
