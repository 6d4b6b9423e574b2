// Package logging builds the zerolog loggers used across rasterclip and
// carries them, together with trace IDs and the audit logger, through
// context.Context.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output and format names accepted in Config.
const (
	OutputStderr = "stderr"
	OutputStdout = "stdout"
	OutputFile   = "file"

	FormatConsole = "console"
	FormatJSON    = "json"
)

const (
	logDirPerm  = 0o750
	logFilePerm = 0o600
)

var errNoLogFile = errors.New("no log file configured")

// Config describes how the root logger is built.
type Config struct {
	Level  string
	Format string
	Output string
	File   string
	Caller bool

	// Writer replaces os.Stderr/os.Stdout for console and JSON output.
	Writer io.Writer
}

// LogPathResult is the outcome of NewLoggerWithPath.
type LogPathResult struct {
	Logger         zerolog.Logger
	FilePath       string
	UsingFile      bool
	FallbackUsed   bool
	FallbackReason string

	file *os.File
}

// Close closes the log file, if one was opened.
func (r *LogPathResult) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// NewLogger builds a logger from cfg. File errors fall back to stderr.
func NewLogger(cfg Config) zerolog.Logger {
	return NewLoggerWithPath(cfg).Logger
}

// NewLoggerWithPath builds a logger from cfg and reports where it writes.
// When the log file cannot be opened the logger writes to stderr and the
// result says why.
func NewLoggerWithPath(cfg Config) LogPathResult {
	var result LogPathResult

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case OutputFile:
		f, err := openLogFile(cfg.File)
		if err != nil {
			result.FallbackUsed = true
			result.FallbackReason = err.Error()
			out = consoleOrDefault(cfg, os.Stderr)
			break
		}
		result.file = f
		result.FilePath = cfg.File
		result.UsingFile = true
		out = f
	case OutputStdout:
		out = consoleOrDefault(cfg, os.Stdout)
	default:
		out = consoleOrDefault(cfg, os.Stderr)
	}

	if !result.UsingFile && !strings.EqualFold(cfg.Format, FormatJSON) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lctx := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		lctx = lctx.Caller()
	}
	result.Logger = lctx.Logger().Hook(traceHook{})
	return result
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// ComponentLogger returns a child logger tagged with component.
func ComponentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// FromContext returns the logger stored in ctx, or a disabled logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// PrintLogPathMessage tells the user where logs are written.
func PrintLogPathMessage(w io.Writer, path string) {
	_, _ = fmt.Fprintf(w, "Logging to %s\n", path)
}

// PrintFallbackWarning tells the user the log file could not be used.
func PrintFallbackWarning(w io.Writer, reason string) {
	_, _ = fmt.Fprintf(w, "Warning: logging to stderr, log file unavailable: %s\n", reason)
}

func consoleOrDefault(cfg Config, def io.Writer) io.Writer {
	if cfg.Writer != nil {
		return cfg.Writer
	}
	return def
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, errNoLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
