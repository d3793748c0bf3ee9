package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

type serviceFixture struct {
	db       *gorm.DB
	sessions repository.TeacherSessionRepository
	taxonomy repository.TaxonomyRepository
	audit    repository.AuditLogRepository
	svc      *TeacherSessionService
}

func newServiceFixture(t *testing.T, maxDocumentBytes int) *serviceFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &serviceFixture{
		db:       db,
		sessions: repository.NewTeacherSessionRepository(db, maxDocumentBytes),
		taxonomy: repository.NewTaxonomyRepository(db),
		audit:    repository.NewAuditLogRepository(db),
	}
	resolver := NewDisplayResolver(f.taxonomy, NewInMemoryDisplayNameCacheStore(), time.Minute, log)
	f.svc = NewTeacherSessionService(f.sessions, resolver, NewAuditTrail(f.audit, log), log)
	return f
}

func (f *serviceFixture) createSession(t *testing.T, username string) *SessionSummary {
	t.Helper()
	out, err := f.svc.Create(context.Background(), CreateSessionInput{
		Username:        username,
		CourseClassName: "C1",
		SectionName:     "S1",
		SubjectName:     "Sub1",
		SessionToken:    "tok-" + username,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return out
}

// seedSections replaces the stored sections without the size ceiling.
func (f *serviceFixture) seedSections(t *testing.T, id string, sections []domain.TimelineSection) {
	t.Helper()
	_, err := f.sessions.Rewrite(context.Background(), id, func(doc *domain.TeacherSession) (repository.Mutation, error) {
		doc.Sections = sections
		return repository.Mutation{Sections: true}, nil
	})
	if err != nil {
		t.Fatalf("seed sections: %v", err)
	}
}

func (f *serviceFixture) load(t *testing.T, id string) *domain.TeacherSession {
	t.Helper()
	doc, err := f.sessions.FindByID(context.Background(), id, true)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	return doc
}

func payload(size int) []byte {
	return []byte(fmt.Sprintf(`{"p":"%s"}`, strings.Repeat("x", size)))
}

func sectionWithEvents(id string, events ...domain.SessionEvent) domain.TimelineSection {
	return domain.TimelineSection{ID: id, StartTime: "0", EndTime: "1", Duration: 1, Events: events}
}

func floatPtr(v float64) *float64 { return &v }
