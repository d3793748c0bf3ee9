package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTeacherSessionRepositorySoftDeleteHidesSession(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	s := newSessionForTest("t1", time.Now().UTC())
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SoftDelete(ctx, s.ID, "admin"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, s.ID, false); !errors.Is(err, ErrTeacherSessionNotFound) {
		t.Fatalf("expected not found after soft delete, got %v", err)
	}
	got, err := repo.FindByID(ctx, s.ID, true)
	if err != nil {
		t.Fatalf("find including deleted: %v", err)
	}
	if !got.IsDeleted.Status || got.IsDeleted.DeletedBy != "admin" || got.IsDeleted.DeletedTime == nil {
		t.Fatalf("unexpected deletion marker: %+v", got.IsDeleted)
	}
	if err := repo.SoftDelete(ctx, s.ID, "admin"); !errors.Is(err, ErrTeacherSessionNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}
	if _, err := repo.Update(ctx, s.ID, func(*domain.TeacherSession) (Mutation, error) { return Mutation{}, nil }); !errors.Is(err, ErrTeacherSessionNotFound) {
		t.Fatalf("expected update of deleted session to fail with not found, got %v", err)
	}
}

func TestTeacherSessionRepositoryUpdateWritesColumnsAndSections(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	s := newSessionForTest("t1", time.Now().UTC())
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := repo.Update(ctx, s.ID, func(doc *domain.TeacherSession) (Mutation, error) {
		doc.DeviceID = "ipad-7"
		doc.Sections = append(doc.Sections, domain.TimelineSection{ID: "sec-1", Events: []domain.SessionEvent{{Type: 2, Data: []byte(`{"node":1}`), Timestamp: 10}}})
		return Mutation{Columns: []string{"device_id"}, Sections: true}, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.FindByID(ctx, s.ID, false)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.DeviceID != "ipad-7" {
		t.Fatalf("expected device id to be written, got %q", got.DeviceID)
	}
	if len(got.Sections) != 1 || string(got.Sections[0].Events[0].Data) != `{"node":1}` {
		t.Fatalf("unexpected sections after update: %+v", got.Sections)
	}
}

func TestTeacherSessionRepositoryUpdateRejectsOversizedDocument(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 4096)
	s := newSessionForTest("t1", time.Now().UTC())
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	payload := []byte(`{"blob":"` + strings.Repeat("x", 8192) + `"}`)
	_, err := repo.Update(ctx, s.ID, func(doc *domain.TeacherSession) (Mutation, error) {
		doc.Sections = append(doc.Sections, domain.TimelineSection{ID: "big", Events: []domain.SessionEvent{{Type: 1, Data: payload}}})
		return Mutation{Sections: true}, nil
	})
	if !errors.Is(err, ErrDocumentTooLarge) || !IsDocumentTooLarge(err) {
		t.Fatalf("expected document too large, got %v", err)
	}
	got, err := repo.FindByID(ctx, s.ID, false)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Sections) != 0 {
		t.Fatalf("expected rejected update to leave sections untouched, got %d", len(got.Sections))
	}

	if _, err := repo.Rewrite(ctx, s.ID, func(doc *domain.TeacherSession) (Mutation, error) {
		doc.Sections = append(doc.Sections, domain.TimelineSection{ID: "big", Events: []domain.SessionEvent{{Type: 1, Data: payload}}})
		return Mutation{Sections: true}, nil
	}); err != nil {
		t.Fatalf("rewrite should bypass the ceiling: %v", err)
	}
}

func TestTeacherSessionRepositoryListPagedWrapsOffset(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, newSessionForTest(fmt.Sprintf("teacher-%d", i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	q := SessionQuery{SortBy: "loginAt", SortDesc: true}
	zero, far := 0, 1000
	first, err := repo.ListPaged(ctx, q, PageRequest{PageSize: 10, Offset: &zero})
	if err != nil {
		t.Fatalf("list offset 0: %v", err)
	}
	wrapped, err := repo.ListPaged(ctx, q, PageRequest{PageSize: 10, Offset: &far})
	if err != nil {
		t.Fatalf("list offset 1000: %v", err)
	}
	if first.Total != 5 || len(first.Items) != 5 || len(wrapped.Items) != 5 || wrapped.Offset != 0 {
		t.Fatalf("unexpected pages: first=%d/%d wrapped=%d offset=%d", len(first.Items), first.Total, len(wrapped.Items), wrapped.Offset)
	}
	for i := range first.Items {
		if first.Items[i].ID != wrapped.Items[i].ID {
			t.Fatalf("row %d differs after wraparound: %s vs %s", i, first.Items[i].ID, wrapped.Items[i].ID)
		}
	}
	if first.Items[0].Username != "teacher-4" {
		t.Fatalf("expected newest login first, got %s", first.Items[0].Username)
	}
}

func TestTeacherSessionRepositoryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	now := time.Now().UTC()
	a := newSessionForTest("Alice", now)
	a.CourseClassRef = "cc-1"
	a.DeviceID = "Kiosk-9"
	b := newSessionForTest("bob", now)
	b.CourseClassRef = "cc-2"
	b.Active = false
	for _, s := range []*domain.TeacherSession{a, b} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	inactive := false
	tests := []struct {
		name string
		q    SessionQuery
		want []string
	}{
		{name: "username substring ignores case", q: SessionQuery{Username: "ALI"}, want: []string{"Alice"}},
		{name: "ref ids", q: SessionQuery{CourseClass: RefFilter{Applied: true, IDs: []string{"cc-2"}}}, want: []string{"bob"}},
		{name: "applied empty ref filter matches nothing", q: SessionQuery{CourseClass: RefFilter{Applied: true}}, want: nil},
		{name: "active flag", q: SessionQuery{Active: &inactive}, want: []string{"bob"}},
		{name: "text matches device id", q: SessionQuery{Text: "kiosk"}, want: []string{"Alice"}},
		{name: "text matches taxonomy ids", q: SessionQuery{Text: "grade", TextRefIDs: []string{"cc-2"}}, want: []string{"bob"}},
		{name: "like wildcards are literal", q: SessionQuery{Username: "%"}, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.q.SortBy = "username"
			got, err := repo.ListAll(ctx, tc.q, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d rows, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if got[i].Username != tc.want[i] {
					t.Fatalf("row %d: expected %s got %s", i, tc.want[i], got[i].Username)
				}
			}
		})
	}
}

func TestTeacherSessionRepositoryFindStale(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	now := time.Now().UTC()
	stale := newSessionForTest("stale", now.Add(-2*time.Hour))
	fresh := newSessionForTest("fresh", now.Add(-10*time.Minute))
	closed := newSessionForTest("closed", now.Add(-3*time.Hour))
	logout := now.Add(-time.Hour)
	closed.LogoutTime = &logout
	for _, s := range []*domain.TeacherSession{stale, fresh, closed} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := repo.FindStale(ctx, now.Add(-75*time.Minute), 0)
	if err != nil {
		t.Fatalf("find stale: %v", err)
	}
	if len(got) != 1 || got[0].Username != "stale" {
		t.Fatalf("expected only the stale open session, got %+v", got)
	}
}

func TestTeacherSessionRepositoryFindLatestByUsername(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	now := time.Now().UTC()
	older := newSessionForTest("t1", now.Add(-48*time.Hour))
	newer := newSessionForTest("t1", now.Add(-time.Hour))
	for _, s := range []*domain.TeacherSession{older, newer} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := repo.FindLatestByUsername(ctx, "t1", nil, nil)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected newest session, got %s", got.ID)
	}
	to := now.Add(-24 * time.Hour)
	got, err = repo.FindLatestByUsername(ctx, "t1", nil, &to)
	if err != nil {
		t.Fatalf("find latest in range: %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("expected range to select older session, got %s", got.ID)
	}
	if _, err := repo.FindLatestByUsername(ctx, "nobody", nil, nil); !errors.Is(err, ErrTeacherSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newSessionForTest(username string, loginAt time.Time) *domain.TeacherSession {
	zero := 0.0
	return &domain.TeacherSession{
		ID:             primitive.NewObjectID().Hex(),
		Username:       username,
		CourseClassRef: "cc",
		SectionRef:     "sec",
		SubjectRef:     "sub",
		SessionToken:   "tok-" + username,
		LoginAt:        loginAt,
		LoginTime:      loginAt,
		LastActiveAt:   loginAt,
		Active:         true,
		IdleTime:       &zero,
		ActiveTime:     &zero,
	}
}

func TestTeacherSessionRepositoryDateRangeColumn(t *testing.T) {
	ctx := context.Background()
	repo := NewTeacherSessionRepository(newDBForTest(t), 0)
	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := newSessionForTest("split", day)
	s.LoginTime = day.Add(-48 * time.Hour)
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	from := day.Add(-time.Hour)
	to := day.Add(time.Hour)

	byLoginAt, err := repo.ListAll(ctx, SessionQuery{LoginFrom: &from, LoginTo: &to}, 0)
	if err != nil {
		t.Fatalf("list on login_at: %v", err)
	}
	if len(byLoginAt) != 1 {
		t.Fatalf("expected login_at range to match, got %d rows", len(byLoginAt))
	}
	byLoginTime, err := repo.ListAll(ctx, SessionQuery{LoginFrom: &from, LoginTo: &to, RangeOnLoginTime: true}, 0)
	if err != nil {
		t.Fatalf("list on login_time: %v", err)
	}
	if len(byLoginTime) != 0 {
		t.Fatalf("expected login_time range to exclude the session, got %d rows", len(byLoginTime))
	}
}
