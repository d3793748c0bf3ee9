package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

const (
	AuditModuleTeacherSession = "teacher-session"

	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionError  = "error"
)

type AuditEntry struct {
	Action      string
	DocumentID  string
	Description string
	Changes     []domain.AuditChange
	Err         error
}

// AuditTrail persists write-path outcomes. A failure to persist is logged and
// never fails the caller's request.
type AuditTrail struct {
	repo   repository.AuditLogRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditTrail(repo repository.AuditLogRepository, logger *slog.Logger) *AuditTrail {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTrail{repo: repo, logger: logger, now: time.Now}
}

func (a *AuditTrail) Record(ctx context.Context, entry AuditEntry) {
	if a == nil {
		return
	}
	actor := ActorFromContext(ctx)
	meta := RequestMetaFromContext(ctx)
	action := entry.Action
	outcome := "success"
	description := entry.Description
	if entry.Err != nil {
		outcome = "failure"
		if description == "" {
			description = entry.Action + " failed"
		}
		description += ": " + entry.Err.Error()
		action = AuditActionError
	}

	observability.Audit(ctx, a.logger, observability.AuditEvent{
		Action:     entry.Action,
		Module:     AuditModuleTeacherSession,
		DocumentID: entry.DocumentID,
		Actor:      actor.Name(),
		Role:       actor.Role,
		RequestID:  meta.RequestID,
		Outcome:    outcome,
	})

	if a.repo == nil {
		return
	}
	row := &domain.AuditLog{
		ID:          uuid.NewString(),
		Action:      action,
		Module:      AuditModuleTeacherSession,
		Description: truncateRunes(description, 1024),
		UserID:      actor.UserID,
		UserName:    actor.Name(),
		UserRole:    actor.Role,
		DocumentID:  entry.DocumentID,
		Changes:     entry.Changes,
		IP:          meta.IP,
		UserAgent:   truncateRunes(meta.UserAgent, 512),
		Timestamp:   a.now().UTC(),
	}
	if err := a.repo.Create(ctx, row); err != nil {
		a.logger.WarnContext(ctx, "audit log write failed",
			"document_id", entry.DocumentID,
			"action", action,
			"error", err,
		)
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
