package observability

import (
	"context"
	"log/slog"
)

// AuditEvent is the structured log form of an audit trail entry.
type AuditEvent struct {
	Action     string
	Module     string
	DocumentID string
	Actor      string
	Role       string
	RequestID  string
	Outcome    string
}

func Audit(ctx context.Context, logger *slog.Logger, ev AuditEvent, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	base := []any{
		"action", ev.Action,
		"module", ev.Module,
		"document_id", ev.DocumentID,
		"actor", ev.Actor,
		"role", ev.Role,
		"request_id", ev.RequestID,
		"outcome", ev.Outcome,
	}
	base = append(base, attrs...)
	logger.InfoContext(ctx, "audit", base...)
}
