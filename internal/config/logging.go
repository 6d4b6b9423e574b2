package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rshade/rasterclip/internal/logging"
)

// LoggingConfig is the logging section of the configuration.
type LoggingConfig struct {
	Level  string      `yaml:"level"  toml:"level"`
	Format string      `yaml:"format" toml:"format"`
	File   string      `yaml:"file"   toml:"file"`
	Audit  AuditConfig `yaml:"audit"  toml:"audit"`
}

// AuditConfig controls the JSONL audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	File    string `yaml:"file"    toml:"file"`
}

// Validate checks the level and format names.
func (lc *LoggingConfig) Validate() error {
	switch strings.ToLower(lc.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of trace, debug, info, warn, error", lc.Level)
	}
	switch strings.ToLower(lc.Format) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("logging.format %q is not one of console, json", lc.Format)
	}
	if lc.Audit.Enabled && lc.Audit.File == "" {
		return errors.New("logging.audit.file must be set when the audit log is enabled")
	}
	return nil
}

// ToLoggingConfig converts config.LoggingConfig to logging.Config for use with
// the internal/logging package.
//
// The conversion applies these rules:
//   - Level, Format are copied directly
//   - If File is set, Output becomes "file" and File is passed through
//   - If File is empty, Output defaults to "stderr"
func (lc *LoggingConfig) ToLoggingConfig() logging.Config {
	output := logging.OutputStderr
	if lc.File != "" {
		output = logging.OutputFile
	}

	return logging.Config{
		Level:  lc.Level,
		Format: lc.Format,
		Output: output,
		File:   lc.File,
	}
}

// EnsureLogDir creates the parent directory of the configured log file.
// It does nothing when no log file is configured.
func (lc *LoggingConfig) EnsureLogDir() error {
	if lc.File == "" {
		return nil
	}
	logDir := filepath.Dir(lc.File)
	if err := os.MkdirAll(logDir, configDirPerm); err != nil {
		return fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}
	return nil
}
