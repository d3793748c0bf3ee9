package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

type CreateSessionInput struct {
	Username        string              `json:"username" validate:"notblank"`
	CourseClassName string              `json:"courseClassName" validate:"notblank"`
	SectionName     string              `json:"sectionName" validate:"notblank"`
	SubjectName     string              `json:"subjectName" validate:"notblank"`
	SessionToken    string              `json:"sessionToken" validate:"notblank"`
	DeviceID        string              `json:"deviceId"`
	LoginAt         *time.Time          `json:"loginAt"`
	LoginTime       *time.Time          `json:"loginTime"`
	Active          *bool               `json:"active"`
	FileAccessLog   []domain.FileAccess `json:"fileAccessLog"`
}

// SessionSummary is the write-path response. It never carries the section
// or file access arrays.
type SessionSummary struct {
	ID              string     `json:"_id"`
	Username        string     `json:"username"`
	CourseClassName string     `json:"courseClassName"`
	SectionName     string     `json:"sectionName"`
	SubjectName     string     `json:"subjectName"`
	SessionToken    string     `json:"sessionToken"`
	DeviceID        string     `json:"deviceId,omitempty"`
	LoginAt         time.Time  `json:"loginAt"`
	LogoutAt        *time.Time `json:"logoutAt,omitempty"`
	LoginTime       time.Time  `json:"loginTime"`
	LogoutTime      *time.Time `json:"logoutTime,omitempty"`
	Active          bool       `json:"active"`
	LastActiveAt    time.Time  `json:"lastActiveAt"`
	IdleTime        float64    `json:"idleTime"`
	ActiveTime      float64    `json:"activeTime"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type TeacherSessionService struct {
	sessions repository.TeacherSessionRepository
	resolver *DisplayResolver
	audit    *AuditTrail
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewTeacherSessionService(
	sessions repository.TeacherSessionRepository,
	resolver *DisplayResolver,
	audit *AuditTrail,
	logger *slog.Logger,
) *TeacherSessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeacherSessionService{
		sessions: sessions,
		resolver: resolver,
		audit:    audit,
		logger:   logger,
		validate: newValidator(),
		now:      time.Now,
	}
}

func (s *TeacherSessionService) Create(ctx context.Context, in CreateSessionInput) (*SessionSummary, error) {
	ctx, span := observability.StartSpan(ctx, "teacher_session.create")
	defer span.End()

	if err := s.validate.Struct(in); err != nil {
		err = validationErrorFrom(err, "missing required fields")
		s.audit.Record(ctx, AuditEntry{Action: AuditActionCreate, Err: err})
		return nil, err
	}

	now := s.now().UTC()
	loginAt := firstTime(now, in.LoginAt, in.LoginTime)
	loginTime := firstTime(now, in.LoginTime, in.LoginAt)
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	log := in.FileAccessLog
	if log == nil {
		log = []domain.FileAccess{}
	}
	doc := &domain.TeacherSession{
		ID:             primitive.NewObjectID().Hex(),
		Username:       strings.TrimSpace(in.Username),
		CourseClassRef: strings.TrimSpace(in.CourseClassName),
		SectionRef:     strings.TrimSpace(in.SectionName),
		SubjectRef:     strings.TrimSpace(in.SubjectName),
		SessionToken:   strings.TrimSpace(in.SessionToken),
		DeviceID:       strings.TrimSpace(in.DeviceID),
		LoginAt:        loginAt,
		LoginTime:      loginTime,
		Active:         active,
		LastActiveAt:   now,
		FileAccessLog:  log,
		Sections:       []domain.TimelineSection{},
	}
	RecomputeDerived(doc)

	if err := s.sessions.Create(ctx, doc); err != nil {
		s.audit.Record(ctx, AuditEntry{Action: AuditActionCreate, DocumentID: doc.ID, Err: err})
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:      AuditActionCreate,
		DocumentID:  doc.ID,
		Description: "teacher session created for " + doc.Username,
	})
	s.logger.InfoContext(ctx, "teacher session created", "session_id", doc.ID, "username", doc.Username)
	summary := summarize(doc)
	return &summary, nil
}

// Delete marks the session deleted; the row stays for audit.
func (s *TeacherSessionService) Delete(ctx context.Context, id string) error {
	ctx, span := observability.StartSpan(ctx, "teacher_session.delete")
	defer span.End()

	if err := validateSessionID(id); err != nil {
		s.audit.Record(ctx, AuditEntry{Action: AuditActionDelete, DocumentID: id, Err: err})
		return err
	}
	actor := ActorFromContext(ctx)
	if err := s.sessions.SoftDelete(ctx, id, actor.Name()); err != nil {
		mapped := mapSessionError(id, err)
		s.audit.Record(ctx, AuditEntry{Action: AuditActionDelete, DocumentID: id, Err: mapped})
		return mapped
	}
	s.audit.Record(ctx, AuditEntry{
		Action:      AuditActionDelete,
		DocumentID:  id,
		Description: "teacher session deleted",
		Changes:     []domain.AuditChange{{Field: "isDeleted.status", OldValue: false, NewValue: true}},
	})
	return nil
}

func summarize(doc *domain.TeacherSession) SessionSummary {
	active, idle := ComputedTimes(doc)
	return SessionSummary{
		ID:              doc.ID,
		Username:        doc.Username,
		CourseClassName: doc.CourseClassRef,
		SectionName:     doc.SectionRef,
		SubjectName:     doc.SubjectRef,
		SessionToken:    doc.SessionToken,
		DeviceID:        doc.DeviceID,
		LoginAt:         doc.LoginAt,
		LogoutAt:        doc.LogoutAt,
		LoginTime:       doc.LoginTime,
		LogoutTime:      doc.LogoutTime,
		Active:          doc.Active,
		LastActiveAt:    doc.LastActiveAt,
		IdleTime:        idle,
		ActiveTime:      active,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func validateSessionID(id string) error {
	if !LooksLikeID(id) {
		return &ValidationError{Fields: []string{"id"}, Message: "invalid session id", Err: ErrInvalidSessionID}
	}
	return nil
}

func mapSessionError(id string, err error) error {
	if errors.Is(err, repository.ErrTeacherSessionNotFound) {
		return &NotFoundError{Resource: "teacher session", ID: id}
	}
	return err
}

func firstTime(fallback time.Time, candidates ...*time.Time) time.Time {
	for _, c := range candidates {
		if c != nil && !c.IsZero() {
			return c.UTC()
		}
	}
	return fallback
}
