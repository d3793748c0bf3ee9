package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

const viewBuildConcurrency = 8

// SessionFilter holds the read-side filters. Taxonomy fields accept an id or
// a name fragment.
type SessionFilter struct {
	Username       string
	CourseClass    string
	Section        string
	Subject        string
	Active         *bool
	From           *time.Time
	To             *time.Time
	Query          string
	SortBy         string
	SortDesc       bool
	IncludeDeleted bool
}

type SectionView struct {
	ID               string                `json:"id"`
	SectionIDDisplay string                `json:"sectionIdDisplay"`
	StartTime        string                `json:"startTime"`
	EndTime          string                `json:"endTime"`
	Duration         float64               `json:"duration"`
	EventCount       int                   `json:"eventCount"`
	Events           []domain.SessionEvent `json:"events"`
}

type SessionView struct {
	ID                 string              `json:"_id"`
	Username           string              `json:"username"`
	CourseClassName    string              `json:"courseClassName"`
	SectionName        string              `json:"sectionName"`
	SubjectName        string              `json:"subjectName"`
	CourseClassDisplay string              `json:"courseClassDisplay"`
	SectionDisplay     string              `json:"sectionDisplay"`
	SubjectDisplay     string              `json:"subjectDisplay"`
	SessionToken       string              `json:"sessionToken"`
	DeviceID           string              `json:"deviceId,omitempty"`
	LoginAt            time.Time           `json:"loginAt"`
	LogoutAt           *time.Time          `json:"logoutAt,omitempty"`
	LoginTime          time.Time           `json:"loginTime"`
	LogoutTime         *time.Time          `json:"logoutTime,omitempty"`
	Active             bool                `json:"active"`
	Live               bool                `json:"live"`
	LastActiveAt       time.Time           `json:"lastActiveAt"`
	IdleTime           *float64            `json:"idleTime"`
	ActiveTime         *float64            `json:"activeTime"`
	IdleTimeComputed   float64             `json:"idleTimeComputed"`
	ActiveTimeComputed float64             `json:"activeTimeComputed"`
	EventCount         int                 `json:"eventCount"`
	FileAccessCount    int                 `json:"fileAccessCount"`
	FileAccessLog      []domain.FileAccess `json:"fileAccessLog"`
	Sections           []SectionView       `json:"section"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

type SessionPage struct {
	Sessions   []SessionView
	Total      int64
	Limit      int
	Offset     int
	Page       int
	TotalPages int
	HasMore    bool
}

type SessionSections struct {
	SessionID   string        `json:"sessionId"`
	Username    string        `json:"username"`
	Sections    []SectionView `json:"section"`
	TotalEvents int           `json:"totalEvents"`
}

func (s *TeacherSessionService) ListSessions(ctx context.Context, filter SessionFilter, page repository.PageRequest) (*SessionPage, error) {
	ctx, span := observability.StartSpan(ctx, "teacher_session.list")
	defer span.End()
	filter.Query = ""
	return s.page(ctx, filter, page)
}

// SearchSessions is ListSessions plus free text over username, token,
// device id and taxonomy names.
func (s *TeacherSessionService) SearchSessions(ctx context.Context, filter SessionFilter, page repository.PageRequest) (*SessionPage, error) {
	ctx, span := observability.StartSpan(ctx, "teacher_session.search")
	defer span.End()
	return s.page(ctx, filter, page)
}

func (s *TeacherSessionService) page(ctx context.Context, filter SessionFilter, page repository.PageRequest) (*SessionPage, error) {
	q, err := s.buildQuery(ctx, filter)
	if err != nil {
		return nil, err
	}
	res, err := s.sessions.ListPaged(ctx, q, page)
	if err != nil {
		return nil, err
	}
	views, err := s.buildViews(ctx, res.Items)
	if err != nil {
		return nil, err
	}
	return &SessionPage{
		Sessions:   views,
		Total:      res.Total,
		Limit:      res.PageSize,
		Offset:     res.Offset,
		Page:       res.Page,
		TotalPages: res.TotalPages,
		HasMore:    res.HasMore,
	}, nil
}

func (s *TeacherSessionService) GetSession(ctx context.Context, id string) (*SessionView, error) {
	ctx, span := observability.StartSpan(ctx, "teacher_session.get")
	defer span.End()
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.buildView(ctx, s.resolver.Scope(), doc)
	return &view, nil
}

// Sections returns the timeline arrays the write paths never echo.
func (s *TeacherSessionService) Sections(ctx context.Context, id string) (*SessionSections, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	scope := s.resolver.Scope()
	out := &SessionSections{SessionID: doc.ID, Username: doc.Username}
	out.Sections = sectionViews(ctx, scope, doc.Sections)
	out.TotalEvents = doc.EventCount()
	return out, nil
}

// LatestForUsername picks the most recent login for username inside the
// optional range.
func (s *TeacherSessionService) LatestForUsername(ctx context.Context, username string, from, to *time.Time) (*SessionView, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Fields: []string{"username"}, Message: "username is required"}
	}
	doc, err := s.sessions.FindLatestByUsername(ctx, username, from, to)
	if err != nil {
		return nil, mapSessionError(username, err)
	}
	view := s.buildView(ctx, s.resolver.Scope(), doc)
	return &view, nil
}

// Collect returns up to limit resolved views ordered by login time, newest
// first. Exports read through it.
func (s *TeacherSessionService) Collect(ctx context.Context, filter SessionFilter, limit int) ([]SessionView, error) {
	filter.SortBy = "loginTime"
	filter.SortDesc = true
	q, err := s.buildQuery(ctx, filter)
	if err != nil {
		return nil, err
	}
	q.RangeOnLoginTime = true
	docs, err := s.sessions.ListAll(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return s.buildViews(ctx, docs)
}

func (s *TeacherSessionService) find(ctx context.Context, id string) (*domain.TeacherSession, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	doc, err := s.sessions.FindByID(ctx, id, false)
	if err != nil {
		return nil, mapSessionError(id, err)
	}
	return doc, nil
}

func (s *TeacherSessionService) buildQuery(ctx context.Context, f SessionFilter) (repository.SessionQuery, error) {
	q := repository.SessionQuery{
		Username:       f.Username,
		Active:         f.Active,
		LoginFrom:      f.From,
		LoginTo:        f.To,
		Text:           f.Query,
		SortBy:         f.SortBy,
		SortDesc:       f.SortDesc,
		IncludeDeleted: f.IncludeDeleted,
	}
	var err error
	if q.CourseClass, err = s.resolver.ResolveFilter(ctx, domain.TaxonomyCourseClass, f.CourseClass); err != nil {
		return q, err
	}
	if q.Section, err = s.resolver.ResolveFilter(ctx, domain.TaxonomySection, f.Section); err != nil {
		return q, err
	}
	if q.Subject, err = s.resolver.ResolveFilter(ctx, domain.TaxonomySubject, f.Subject); err != nil {
		return q, err
	}
	if strings.TrimSpace(f.Query) != "" {
		if q.TextRefIDs, err = s.resolver.MatchingRefIDs(ctx, f.Query); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (s *TeacherSessionService) buildViews(ctx context.Context, docs []domain.TeacherSession) ([]SessionView, error) {
	views := make([]SessionView, len(docs))
	scope := s.resolver.Scope()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(viewBuildConcurrency)
	for i := range docs {
		g.Go(func() error {
			views[i] = s.buildView(gctx, scope, &docs[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *TeacherSessionService) buildView(ctx context.Context, scope *DisplayScope, doc *domain.TeacherSession) SessionView {
	active, idle := ComputedTimes(doc)
	log := []domain.FileAccess(doc.FileAccessLog)
	if log == nil {
		log = []domain.FileAccess{}
	}
	return SessionView{
		ID:                 doc.ID,
		Username:           doc.Username,
		CourseClassName:    doc.CourseClassRef,
		SectionName:        doc.SectionRef,
		SubjectName:        doc.SubjectRef,
		CourseClassDisplay: scope.Name(ctx, domain.TaxonomyCourseClass, doc.CourseClassRef),
		SectionDisplay:     scope.Name(ctx, domain.TaxonomySection, doc.SectionRef),
		SubjectDisplay:     scope.Name(ctx, domain.TaxonomySubject, doc.SubjectRef),
		SessionToken:       doc.SessionToken,
		DeviceID:           doc.DeviceID,
		LoginAt:            doc.LoginAt,
		LogoutAt:           doc.LogoutAt,
		LoginTime:          doc.LoginTime,
		LogoutTime:         doc.LogoutTime,
		Active:             doc.Active,
		Live:               doc.IsLive(),
		LastActiveAt:       doc.LastActiveAt,
		IdleTime:           doc.IdleTime,
		ActiveTime:         doc.ActiveTime,
		IdleTimeComputed:   idle,
		ActiveTimeComputed: active,
		EventCount:         doc.EventCount(),
		FileAccessCount:    len(doc.FileAccessLog),
		FileAccessLog:      log,
		Sections:           sectionViews(ctx, scope, doc.Sections),
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

func sectionViews(ctx context.Context, scope *DisplayScope, sections []domain.TimelineSection) []SectionView {
	out := make([]SectionView, 0, len(sections))
	for _, sec := range sections {
		events := sec.Events
		if events == nil {
			events = []domain.SessionEvent{}
		}
		out = append(out, SectionView{
			ID:               sec.ID,
			SectionIDDisplay: scope.Name(ctx, domain.TaxonomySection, sec.ID),
			StartTime:        sec.StartTime,
			EndTime:          sec.EndTime,
			Duration:         sec.Duration,
			EventCount:       len(sec.Events),
			Events:           events,
		})
	}
	return out
}

// Duration is logout minus login in milliseconds, or zero while open.
func (v SessionView) Duration() float64 {
	logout := v.LogoutTime
	if logout == nil {
		logout = v.LogoutAt
	}
	if logout == nil {
		return 0
	}
	login := v.LoginTime
	if login.IsZero() {
		login = v.LoginAt
	}
	d := logout.Sub(login)
	if d < 0 {
		return 0
	}
	return float64(d.Milliseconds())
}
