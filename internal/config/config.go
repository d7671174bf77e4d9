package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harshul/microrun/internal/browser"
	"github.com/harshul/microrun/internal/logging"
)

const (
	AppName = "microrun"

	EnvConfig  = "MICRORUN_CONFIG"
	EnvDataDir = "MICRORUN_DATA_DIR"

	FileName     = "config.yaml"
	RegistryFile = "projects.json"
	LogFile      = "microrun.log"
)

// Config is the application configuration read from config.yaml.
type Config struct {
	RegistryPath    string         `yaml:"registry_path,omitempty"`
	Build           Build          `yaml:"build"`
	Runtime         Runtime        `yaml:"runtime"`
	Browser         string         `yaml:"browser,omitempty"`
	Batch           Batch          `yaml:"batch"`
	StopGracePeriod time.Duration  `yaml:"stop_grace_period,omitempty"`
	Logging         logging.Config `yaml:"logging,omitempty"`
}

// Build controls the compile step that runs before a project starts.
type Build struct {
	Command           string        `yaml:"command,omitempty"`
	Configuration     string        `yaml:"configuration,omitempty"`
	DefaultFramework  string        `yaml:"default_framework,omitempty"`
	ArtifactExtension string        `yaml:"artifact_extension,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	Skip              bool          `yaml:"skip,omitempty"`
}

// Runtime names the hosts that run a built project.
type Runtime struct {
	// Host loads the artifact. An explicit empty string runs the artifact
	// directly.
	Host           string `yaml:"host"`
	IISExpressPath string `yaml:"iis_express_path,omitempty"`
}

// Batch controls start-all and stop-all.
type Batch struct {
	Concurrency int `yaml:"concurrency,omitempty"` // 0 means one per CPU
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Build: Build{
			Command:           "dotnet",
			Configuration:     "Debug",
			DefaultFramework:  "net6.0",
			ArtifactExtension: "dll",
			Timeout:           10 * time.Minute,
		},
		Runtime:         Runtime{Host: "dotnet"},
		Browser:         string(browser.PolicyProfile),
		StopGracePeriod: 5 * time.Second,
	}
}

// DataDir is where the registry and the dashboard log live.
func DataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		return dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// Path is the config file location.
func Path() (string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfig)); path != "" {
		return path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Write writes the config as a YAML file.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}

// Read reads path over the defaults. A missing file yields Default().
func Read(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enum and range fields.
func (c Config) Validate() error {
	if _, err := browser.ParsePolicy(c.Browser); err != nil {
		return err
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.concurrency: must not be negative")
	}
	if c.Build.Timeout < 0 {
		return fmt.Errorf("build.timeout: must not be negative")
	}
	if c.StopGracePeriod < 0 {
		return fmt.Errorf("stop_grace_period: must not be negative")
	}
	if _, err := c.Logging.Normalize(); err != nil {
		return err
	}
	return nil
}

// BrowserPolicy is the parsed browser field.
func (c Config) BrowserPolicy() browser.Policy {
	p, err := browser.ParsePolicy(c.Browser)
	if err != nil {
		return browser.PolicyProfile
	}
	return p
}

// Registry resolves the registry file: registry_path, else the data dir.
func (c Config) Registry() (string, error) {
	if path := strings.TrimSpace(c.RegistryPath); path != "" {
		return expandHome(path)
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, RegistryFile), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
