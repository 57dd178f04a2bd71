// SPDX-License-Identifier: MIT

// Package config provides configuration management for invmirror.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mirrorlab/invmirror/internal/log"
)

// caDir is where container images drop additional trust anchors; CUSTOM_CA_FILE
// names a file inside it.
const caDir = "/usr/local/share/ca-certificates"

// desktopUserAgent is the User-Agent the upstream expects from its desktop app.
const desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config holds every runtime setting of the mirror daemon.
type Config struct {
	// Upstream credentials.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// DocsRoot is the directory the mirrored archive lives under.
	DocsRoot string `yaml:"docs_root"`

	// TestMode restricts a run to one project per type.
	TestMode bool `yaml:"test_mode"`

	// CustomCAFile names a PEM file under /usr/local/share/ca-certificates
	// appended to the system trust pool.
	CustomCAFile string `yaml:"custom_ca_file"`

	// Listen is the serve address of the read API.
	Listen string `yaml:"listen"`

	// Workers caps concurrent screen tasks within a project.
	Workers int `yaml:"workers"`

	// Upstream client tuning.
	MaxRetries        int           `yaml:"max_retries"`
	RetryWait         time.Duration `yaml:"retry_wait"`
	RetryMaxWait      time.Duration `yaml:"retry_max_wait"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DocsRoot:          "./docs",
		Listen:            ":8080",
		Workers:           defaultWorkers(),
		MaxRetries:        10,
		RetryWait:         2 * time.Second,
		RetryMaxWait:      120 * time.Second,
		RequestsPerSecond: 4,
		UserAgent:         desktopUserAgent,
		LogLevel:          "info",
	}
}

// defaultWorkers mirrors the upstream cap: at most five concurrent screen
// fetches, fewer on small machines.
func defaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n > 5 {
		return 5
	}
	if n < 1 {
		return 1
	}
	return n
}

// Load builds the effective configuration with precedence ENV > file > defaults.
// path may be empty, in which case no file is read.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile overlays a strict-parsed YAML file onto cfg.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	logger := log.WithComponent("config")
	logger.Debug().
		Str("path", path).
		Msg("merged config file")
	return nil
}

// mergeEnv overlays environment variables onto cfg. The INVISION_* and
// mirror-behaviour variables keep their historical names; daemon settings use
// the INVMIRROR_ prefix.
func mergeEnv(cfg *Config) {
	cfg.Email = ParseString("INVISION_EMAIL", cfg.Email)
	cfg.Password = ParseString("INVISION_PASSWORD", cfg.Password)
	cfg.DocsRoot = ParseString("DOCS_ROOT", cfg.DocsRoot)
	cfg.TestMode = ParseBool("TEST_MODE", cfg.TestMode)
	cfg.CustomCAFile = ParseString("CUSTOM_CA_FILE", cfg.CustomCAFile)

	cfg.Listen = ParseString("INVMIRROR_LISTEN", cfg.Listen)
	cfg.Workers = ParseInt("INVMIRROR_WORKERS", cfg.Workers)
	cfg.MaxRetries = ParseInt("INVMIRROR_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryWait = ParseDuration("INVMIRROR_RETRY_WAIT", cfg.RetryWait)
	cfg.RetryMaxWait = ParseDuration("INVMIRROR_RETRY_MAX_WAIT", cfg.RetryMaxWait)
	cfg.RequestsPerSecond = ParseFloat("INVMIRROR_RPS", cfg.RequestsPerSecond)
	cfg.UserAgent = ParseString("INVMIRROR_USER_AGENT", cfg.UserAgent)
	cfg.LogLevel = ParseString("INVMIRROR_LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects configurations no run could work with. Credentials are
// checked at run start, not here, so the serve-only mode works without them.
func (c Config) Validate() error {
	var errs []error
	if c.DocsRoot == "" {
		errs = append(errs, errors.New("docs_root must not be empty"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.RetryWait <= 0 {
		errs = append(errs, fmt.Errorf("retry_wait must be positive, got %s", c.RetryWait))
	}
	if c.RetryMaxWait < c.RetryWait {
		errs = append(errs, fmt.Errorf("retry_max_wait %s must not be below retry_wait %s", c.RetryMaxWait, c.RetryWait))
	}
	if c.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must be positive, got %g", c.RequestsPerSecond))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// CAFilePath resolves CUSTOM_CA_FILE to its absolute location, or "" when
// unset. The file must exist; a dangling name is a configuration error.
func (c Config) CAFilePath() (string, error) {
	if c.CustomCAFile == "" {
		return "", nil
	}
	path := caDir + "/" + c.CustomCAFile
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("config: custom CA file: %w", err)
	}
	return path, nil
}
