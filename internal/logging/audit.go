package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp  time.Time
	TraceID    string
	Command    string
	Parameters map[string]string
	RecordID   string
	Outcome    string
	Output     string
	Written    int
	Skipped    int
	Success    bool
	Error      string
	Duration   time.Duration
}

// NewAuditEntry starts an entry for command.
func NewAuditEntry(command, traceID string) *AuditEntry {
	return &AuditEntry{
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
		Command:   command,
	}
}

// WithParameters attaches command parameters.
func (e *AuditEntry) WithParameters(params map[string]string) *AuditEntry {
	e.Parameters = params
	return e
}

// WithRecord attaches a record identifier and its outcome.
func (e *AuditEntry) WithRecord(id, outcome string) *AuditEntry {
	e.RecordID = id
	e.Outcome = outcome
	return e
}

// WithOutput attaches the path a record was written to and marks success.
func (e *AuditEntry) WithOutput(path string) *AuditEntry {
	e.Output = path
	e.Success = true
	return e
}

// WithSuccess marks a run as successful with its totals.
func (e *AuditEntry) WithSuccess(written, skipped int) *AuditEntry {
	e.Success = true
	e.Written = written
	e.Skipped = skipped
	return e
}

// WithError marks the entry failed.
func (e *AuditEntry) WithError(msg string) *AuditEntry {
	e.Success = false
	e.Error = msg
	return e
}

// WithDuration records the time since start.
func (e *AuditEntry) WithDuration(start time.Time) *AuditEntry {
	e.Duration = time.Since(start)
	return e
}

// AuditLogger writes audit entries.
type AuditLogger interface {
	Log(ctx context.Context, entry AuditEntry)
	Enabled() bool
	Close() error
}

// AuditLoggerConfig configures NewAuditLogger.
type AuditLoggerConfig struct {
	Enabled bool
	File    string
}

// NewAuditLogger returns a JSONL audit logger, or a no-op logger when
// disabled or when the file cannot be opened.
func NewAuditLogger(cfg AuditLoggerConfig) AuditLogger {
	if !cfg.Enabled || cfg.File == "" {
		return nopAuditLogger{}
	}
	l, err := newFileAuditLogger(cfg.File)
	if err != nil {
		return nopAuditLogger{}
	}
	return l
}

type fileAuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

func newFileAuditLogger(path string) (*fileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), logDirPerm); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &fileAuditLogger{file: f, logger: zerolog.New(f)}, nil
}

func (l *fileAuditLogger) Enabled() bool { return true }

func (l *fileAuditLogger) Log(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}

	ev := l.logger.Log().
		Time("timestamp", entry.Timestamp).
		Str("trace_id", entry.TraceID).
		Str("command", entry.Command).
		Bool("success", entry.Success).
		Int64("duration_ms", entry.Duration.Milliseconds())
	if len(entry.Parameters) > 0 {
		params := zerolog.Dict()
		for k, v := range entry.Parameters {
			params.Str(k, v)
		}
		ev.Dict("parameters", params)
	}
	if entry.RecordID != "" {
		ev.Str("record_id", entry.RecordID).Str("outcome", entry.Outcome)
	}
	if entry.Output != "" {
		ev.Str("output", entry.Output)
	}
	if entry.RecordID == "" && entry.Success {
		ev.Int("written", entry.Written).Int("skipped", entry.Skipped)
	}
	if entry.Error != "" {
		ev.Str("error", entry.Error)
	}
	ev.Send()
}

func (l *fileAuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

type nopAuditLogger struct{}

func (nopAuditLogger) Log(context.Context, AuditEntry) {}
func (nopAuditLogger) Enabled() bool                   { return false }
func (nopAuditLogger) Close() error                    { return nil }

type auditLoggerKey struct{}

// ContextWithAuditLogger stores l in ctx.
func ContextWithAuditLogger(ctx context.Context, l AuditLogger) context.Context {
	return context.WithValue(ctx, auditLoggerKey{}, l)
}

// AuditLoggerFromContext returns the audit logger in ctx, or a no-op logger.
func AuditLoggerFromContext(ctx context.Context) AuditLogger {
	if l, ok := ctx.Value(auditLoggerKey{}).(AuditLogger); ok {
		return l
	}
	return nopAuditLogger{}
}
