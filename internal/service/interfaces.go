package service

import (
	"context"
	"time"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

type TeacherSessionServiceInterface interface {
	Create(ctx context.Context, in CreateSessionInput) (*SessionSummary, error)
	ApplyUpdate(ctx context.Context, id string, patch SessionPatch) (*SessionSummary, error)
	GetSession(ctx context.Context, id string) (*SessionView, error)
	Sections(ctx context.Context, id string) (*SessionSections, error)
	Delete(ctx context.Context, id string) error
	ListSessions(ctx context.Context, filter SessionFilter, page repository.PageRequest) (*SessionPage, error)
	SearchSessions(ctx context.Context, filter SessionFilter, page repository.PageRequest) (*SessionPage, error)
	LatestForUsername(ctx context.Context, username string, from, to *time.Time) (*SessionView, error)
	Collect(ctx context.Context, filter SessionFilter, limit int) ([]SessionView, error)
}

type TaxonomyServiceInterface interface {
	CreateCourseClass(ctx context.Context, in CreateCourseClassInput) (*domain.CourseClass, error)
	CreateSection(ctx context.Context, in CreateSectionInput) (*domain.Section, error)
	CreateSubject(ctx context.Context, in CreateSubjectInput) (*domain.Subject, error)
	ListCourseClasses(ctx context.Context) ([]domain.CourseClass, error)
	ListSections(ctx context.Context, courseClassID string) ([]domain.Section, error)
	ListSubjects(ctx context.Context) ([]domain.Subject, error)
}

type SessionSweeper interface {
	SweepOnce(ctx context.Context) (int, error)
	Run(ctx context.Context)
}
