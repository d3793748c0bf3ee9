package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/service"
)

var testLogin = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func sampleView(username, course, section, subject string, active, idle float64, events, files int) service.SessionView {
	evs := make([]domain.SessionEvent, events)
	for i := range evs {
		evs[i] = domain.SessionEvent{Type: 3, Data: json.RawMessage(`{"x":1}`), Timestamp: testLogin.Add(time.Duration(i) * time.Second).UnixMilli()}
	}
	log := make([]domain.FileAccess, files)
	for i := range log {
		log[i] = domain.FileAccess{FileID: "f", FileName: "notes.pdf", AccessedAt: testLogin}
	}
	logout := testLogin.Add(90 * time.Minute)
	return service.SessionView{
		ID:                 "65f000000000000000000001",
		Username:           username,
		CourseClassDisplay: course,
		SectionDisplay:     section,
		SubjectDisplay:     subject,
		LoginAt:            testLogin,
		LoginTime:          testLogin,
		LogoutTime:         &logout,
		ActiveTimeComputed: active,
		IdleTimeComputed:   idle,
		EventCount:         events,
		FileAccessCount:    files,
		FileAccessLog:      log,
		Sections: []service.SectionView{{
			ID:               "65f0000000000000000000aa",
			SectionIDDisplay: section,
			StartTime:        "08:00",
			EndTime:          "08:30",
			EventCount:       events,
			Events:           evs,
		}},
	}
}

type fakeSource struct {
	byID      map[string]service.SessionView
	latest    *service.SessionView
	collected []service.SessionView
	filter    service.SessionFilter
	limit     int
}

func (f *fakeSource) GetSession(_ context.Context, id string) (*service.SessionView, error) {
	v, ok := f.byID[id]
	if !ok {
		return nil, &service.NotFoundError{Resource: "teacher session", ID: id}
	}
	return &v, nil
}

func (f *fakeSource) LatestForUsername(_ context.Context, username string, _, _ *time.Time) (*service.SessionView, error) {
	if f.latest == nil || f.latest.Username != username {
		return nil, &service.NotFoundError{Resource: "teacher session", ID: username}
	}
	v := *f.latest
	return &v, nil
}

func (f *fakeSource) Collect(_ context.Context, filter service.SessionFilter, limit int) ([]service.SessionView, error) {
	f.filter = filter
	f.limit = limit
	return f.collected, nil
}

type fakeRenderer struct {
	html  string
	calls int
	err   error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, html string) ([]byte, error) {
	f.calls++
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}
