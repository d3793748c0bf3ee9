package repository

import (
	"context"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"

	"gorm.io/gorm"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.AuditLog, error)
}

type GormAuditLogRepository struct{ db *gorm.DB }

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository { return &GormAuditLogRepository{db: db} }

func (r *GormAuditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	observability.RecordRepositoryOperation(ctx, "audit_log", "create", outcome(err))
	return err
}

func (r *GormAuditLogRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("timestamp ASC").Find(&out).Error
	observability.RecordRepositoryOperation(ctx, "audit_log", "list_by_document", outcome(err))
	return out, err
}
