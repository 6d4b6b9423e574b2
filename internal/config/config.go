// Package config loads rasterclip configuration from YAML or TOML files,
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rshade/rasterclip/internal/engine/batch"
	"github.com/rshade/rasterclip/internal/logging"
)

// Environment variables read by ApplyEnv and the config path lookup.
const (
	EnvConfig     = "RASTERCLIP_CONFIG"
	EnvHome       = "RASTERCLIP_HOME"
	EnvLogLevel   = "RASTERCLIP_LOG_LEVEL"
	EnvLogFormat  = "RASTERCLIP_LOG_FORMAT"
	EnvScratchDir = "RASTERCLIP_SCRATCH_DIR"
	EnvWorkers    = "RASTERCLIP_WORKERS"
	EnvProjectDir = "RASTERCLIP_PROJECT_DIR"
)

// Defaults.
const (
	DefaultWorkers        = 1
	DefaultMinFreeMB      = 64
	DefaultExitCodeOnSkip = 2
	DefaultLogLevel       = "info"
	DefaultLogFormat      = logging.FormatConsole

	configFileName = "config.yaml"
	configDirPerm  = 0o700
	configFilePerm = 0o600

	// maxExitCode keeps skip exit codes clear of shell-reserved values.
	maxExitCode = 125
)

// ErrInvalidConfig is returned by Validate and ApplyEnv.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete rasterclip configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"  toml:"engine"`
	Output  OutputConfig  `yaml:"output"  toml:"output"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	configPath string
}

// EngineConfig controls the clip run.
type EngineConfig struct {
	ScratchDir string `yaml:"scratch_dir" toml:"scratch_dir"`
	Workers    int    `yaml:"workers"     toml:"workers"`
	StrictIDs  bool   `yaml:"strict_ids"  toml:"strict_ids"`
	MinFreeMB  uint64 `yaml:"min_free_mb" toml:"min_free_mb"`
	Pyramids   bool   `yaml:"pyramids"    toml:"pyramids"`
	Statistics bool   `yaml:"statistics"  toml:"statistics"`
}

// OutputConfig controls written rasters and process exit status.
type OutputConfig struct {
	Overwrite      bool    `yaml:"overwrite"         toml:"overwrite"`
	Background     float64 `yaml:"background"        toml:"background"`
	ExitCodeOnSkip int     `yaml:"exit_code_on_skip" toml:"exit_code_on_skip"`
}

// New returns a configuration holding only defaults, bound to the default
// config path.
func New() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			ScratchDir: filepath.Join(os.TempDir(), "rasterclip-scratch"),
			Workers:    DefaultWorkers,
			MinFreeMB:  DefaultMinFreeMB,
		},
		Output: OutputConfig{
			Overwrite:      true,
			ExitCodeOnSkip: DefaultExitCodeOnSkip,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
	if dir, err := GetConfigDir(); err == nil {
		cfg.configPath = filepath.Join(dir, configFileName)
		cfg.Logging.Audit.File = filepath.Join(dir, "audit.jsonl")
	}
	return cfg
}

// Load builds a configuration from defaults, the file at path and the
// environment. An empty path resolves to $RASTERCLIP_CONFIG or the default
// file. A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := New()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv(EnvConfig); env != "" {
			path, explicit = env, true
		} else {
			path = cfg.configPath
		}
	}

	if path != "" {
		cfg.configPath = path
		if err := cfg.loadFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if isTOML(path) {
		if _, err = toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing TOML config %s: %w", path, err)
		}
		return nil
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing YAML config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays RASTERCLIP_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvScratchDir); v != "" {
		c.Engine.ScratchDir = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvWorkers, v)
		}
		c.Engine.Workers = n
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Workers < batch.MinWorkers || c.Engine.Workers > batch.MaxWorkers {
		errs = append(errs, fmt.Errorf("engine.workers must be between %d and %d, got %d",
			batch.MinWorkers, batch.MaxWorkers, c.Engine.Workers))
	}
	if strings.TrimSpace(c.Engine.ScratchDir) == "" {
		errs = append(errs, errors.New("engine.scratch_dir must not be empty"))
	}
	if c.Output.ExitCodeOnSkip < 0 || c.Output.ExitCodeOnSkip > maxExitCode {
		errs = append(errs, fmt.Errorf("output.exit_code_on_skip must be between 0 and %d, got %d",
			maxExitCode, c.Output.ExitCodeOnSkip))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ConfigPath returns the file this configuration is bound to.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath binds the configuration to path for Save.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// Save writes the configuration to its path, as TOML when the path ends in
// .toml and YAML otherwise.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), configDirPerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := c.Marshal(isTOML(c.configPath))
	if err != nil {
		return err
	}
	if err = os.WriteFile(c.configPath, data, configFilePerm); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Marshal encodes the configuration as TOML or YAML.
func (c *Config) Marshal(asTOML bool) ([]byte, error) {
	if asTOML {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(c); err != nil {
			return nil, fmt.Errorf("encoding TOML config: %w", err)
		}
		return []byte(sb.String()), nil
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding YAML config: %w", err)
	}
	return data, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
