// Package config loads canvasflow settings from defaults, YAML files,
// a .env file, and CANVASFLOW_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"canvasflow/internal/canvas"
)

const envPrefix = "CANVASFLOW_"

// ExecutorMode selects how code blocks are executed.
type ExecutorMode string

const (
	// ExecutorProcess spawns a fresh executor process per run.
	ExecutorProcess ExecutorMode = "process"
	// ExecutorInProcess runs the executor worker inside the coordinator.
	ExecutorInProcess ExecutorMode = "inprocess"
)

type ExecutorConfig struct {
	Mode ExecutorMode `yaml:"mode" validate:"oneof=process inprocess"`
	// Binary is the executable started in process mode. Empty means this
	// binary's own "executor" subcommand.
	Binary string `yaml:"binary"`
}

type CDNConfig struct {
	JavaScript string `yaml:"javascript" validate:"required,url"`
	Python     string `yaml:"python" validate:"required,url"`
}

type LayoutConfig struct {
	TextHeight    float64 `yaml:"text_height" validate:"gt=0"`
	TextOffset    float64 `yaml:"text_offset" validate:"gte=0"`
	ResultSpacing float64 `yaml:"result_spacing" validate:"gte=0"`
}

type TelemetryConfig struct {
	// Endpoint is an OTLP/gRPC host:port. Empty disables tracing.
	Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`
	Service  string `yaml:"service" validate:"required"`
}

// Config holds all configuration for canvasflow.
type Config struct {
	DataDir     string          `yaml:"data_dir" validate:"required"`
	DBPath      string          `yaml:"db_path" validate:"required"`
	Executor    ExecutorConfig  `yaml:"executor"`
	CDN         CDNConfig       `yaml:"cdn"`
	RevertDelay time.Duration   `yaml:"revert_delay" validate:"gte=0"`
	Layout      LayoutConfig    `yaml:"layout"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`

	// ResultCompressThreshold is the payload size in bytes above which
	// session results are stored compressed.
	ResultCompressThreshold int `yaml:"result_compress_threshold" validate:"gte=0"`

	// SecretBackend is "env" or "keychain".
	SecretBackend string `yaml:"secret_backend" validate:"oneof=env keychain"`
}

// DefaultConfig returns a Config with everything under ~/.canvasflow.
func DefaultConfig() *Config {
	dir := defaultDataDir()
	return &Config{
		DataDir:  dir,
		DBPath:   filepath.Join(dir, "canvasflow.db"),
		Executor: ExecutorConfig{Mode: ExecutorProcess},
		CDN: CDNConfig{
			JavaScript: "https://cdn.jsdelivr.net/npm/",
			Python:     "https://cdn.jsdelivr.net/pyodide/",
		},
		RevertDelay: time.Second,
		Layout: LayoutConfig{
			TextHeight:    23,
			TextOffset:    1,
			ResultSpacing: 64,
		},
		Telemetry:               TelemetryConfig{Service: "canvasflow"},
		ResultCompressThreshold: 4096,
		SecretBackend:           "env",
	}
}

// CanvasLayout converts the layout section for the canvas package.
func (c *Config) CanvasLayout() canvas.Layout {
	return canvas.Layout{
		TextHeight:    c.Layout.TextHeight,
		TextOffset:    c.Layout.TextOffset,
		ResultSpacing: c.Layout.ResultSpacing,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".canvasflow"
	}
	return filepath.Join(home, ".canvasflow")
}

// GlobalConfigPath returns ~/.canvasflow/config.yaml.
func GlobalConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// ProjectConfigPath returns ./.canvasflow/config.yaml.
func ProjectConfigPath() string {
	return filepath.Join(".canvasflow", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. CANVASFLOW_* environment variables (a ./.env file fills unset ones)
// 2. Project-level config (./.canvasflow/config.yaml)
// 3. Global config (~/.canvasflow/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()
	for _, path := range []string{GlobalConfigPath(), ProjectConfigPath()} {
		if err := mergeFile(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return finish(cfg, ".env")
}

// LoadFromFile reads configuration from a specific YAML file on top of the
// defaults. Environment overrides still apply.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := mergeFile(cfg, path); err != nil {
		return nil, err
	}
	return finish(cfg, filepath.Join(filepath.Dir(path), ".env"))
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func finish(cfg *Config, envFile string) (*Config, error) {
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DATA_DIR":           &cfg.DataDir,
		"DB_PATH":            &cfg.DBPath,
		"EXECUTOR_BINARY":    &cfg.Executor.Binary,
		"CDN_JAVASCRIPT":     &cfg.CDN.JavaScript,
		"CDN_PYTHON":         &cfg.CDN.Python,
		"TELEMETRY_ENDPOINT": &cfg.Telemetry.Endpoint,
		"TELEMETRY_SERVICE":  &cfg.Telemetry.Service,
		"SECRET_BACKEND":     &cfg.SecretBackend,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "EXECUTOR_MODE"); ok {
		cfg.Executor.Mode = ExecutorMode(v)
	}

	floats := map[string]*float64{
		"LAYOUT_TEXT_HEIGHT":    &cfg.Layout.TextHeight,
		"LAYOUT_TEXT_OFFSET":    &cfg.Layout.TextOffset,
		"LAYOUT_RESULT_SPACING": &cfg.Layout.ResultSpacing,
	}
	for name, dst := range floats {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = f
	}

	if v, ok := os.LookupEnv(envPrefix + "REVERT_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREVERT_DELAY: %w", envPrefix, err)
		}
		cfg.RevertDelay = d
	}
	if v, ok := os.LookupEnv(envPrefix + "RESULT_COMPRESS_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRESULT_COMPRESS_THRESHOLD: %w", envPrefix, err)
		}
		cfg.ResultCompressThreshold = n
	}
	return nil
}
