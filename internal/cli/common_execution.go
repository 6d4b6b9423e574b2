package cli

import (
	"context"
	"time"

	"github.com/rshade/rasterclip/internal/clip"
	"github.com/rshade/rasterclip/internal/logging"
)

// auditContext holds common context for audit logging within a command.
type auditContext struct {
	logger  logging.AuditLogger
	traceID string
	params  map[string]string
	start   time.Time
	command string
}

// newAuditContext creates a new audit context.
func newAuditContext(ctx context.Context, command string, params map[string]string) *auditContext {
	return &auditContext{
		logger:  logging.AuditLoggerFromContext(ctx),
		traceID: logging.TraceIDFromContext(ctx),
		params:  params,
		start:   time.Now(),
		command: command,
	}
}

// logFailure logs an audit entry for a failed operation.
func (a *auditContext) logFailure(ctx context.Context, err error) {
	entry := logging.NewAuditEntry(a.command, a.traceID).
		WithParameters(a.params).
		WithError(err.Error()).
		WithDuration(a.start)
	a.logger.Log(ctx, *entry)
}

// logSuccess logs the run-level audit entry of a finished clip run.
func (a *auditContext) logSuccess(ctx context.Context, summary *clip.Summary) {
	entry := logging.NewAuditEntry(a.command, a.traceID).
		WithParameters(a.params).
		WithSuccess(len(summary.Outputs), len(summary.Skipped)).
		WithDuration(a.start)
	a.logger.Log(ctx, *entry)
}
