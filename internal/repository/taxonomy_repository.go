package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrTaxonomyNotFound    = errors.New("taxonomy entry not found")
	ErrUnknownTaxonomyKind = errors.New("unknown taxonomy kind")
)

// TaxonomyRepository serves the course class, section and subject tables.
type TaxonomyRepository interface {
	NameByID(ctx context.Context, kind domain.TaxonomyKind, id string) (string, error)
	FindIDsByName(ctx context.Context, kind domain.TaxonomyKind, fragment string) ([]string, error)
	CreateCourseClass(ctx context.Context, c *domain.CourseClass) error
	CreateSection(ctx context.Context, s *domain.Section) error
	CreateSubject(ctx context.Context, s *domain.Subject) error
	ListCourseClasses(ctx context.Context) ([]domain.CourseClass, error)
	ListSections(ctx context.Context, courseClassID string) ([]domain.Section, error)
	ListSubjects(ctx context.Context) ([]domain.Subject, error)
}

type GormTaxonomyRepository struct{ db *gorm.DB }

func NewTaxonomyRepository(db *gorm.DB) TaxonomyRepository { return &GormTaxonomyRepository{db: db} }

func taxonomyTable(kind domain.TaxonomyKind) (string, error) {
	switch kind {
	case domain.TaxonomyCourseClass:
		return "course_classes", nil
	case domain.TaxonomySection:
		return "sections", nil
	case domain.TaxonomySubject:
		return "subjects", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTaxonomyKind, kind)
	}
}

func (r *GormTaxonomyRepository) NameByID(ctx context.Context, kind domain.TaxonomyKind, id string) (string, error) {
	table, err := taxonomyTable(kind)
	if err != nil {
		return "", err
	}
	var names []string
	err = r.db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1).Pluck("name", &names).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "taxonomy", "name_by_id", "error")
		return "", err
	}
	if len(names) == 0 {
		observability.RecordRepositoryOperation(ctx, "taxonomy", "name_by_id", "not_found")
		return "", ErrTaxonomyNotFound
	}
	observability.RecordRepositoryOperation(ctx, "taxonomy", "name_by_id", "success")
	return names[0], nil
}

// FindIDsByName matches names containing fragment, ignoring case.
func (r *GormTaxonomyRepository) FindIDsByName(ctx context.Context, kind domain.TaxonomyKind, fragment string) ([]string, error) {
	table, err := taxonomyTable(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	var ids []string
	err = r.db.WithContext(ctx).Table(table).
		Where("LOWER(name) LIKE ? ESCAPE '\\'", likePattern(fragment)).
		Pluck("id", &ids).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "taxonomy", "find_ids_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "taxonomy", "find_ids_by_name", "success")
	return ids, nil
}

func (r *GormTaxonomyRepository) CreateCourseClass(ctx context.Context, c *domain.CourseClass) error {
	return r.create(ctx, "create_course_class", c)
}

func (r *GormTaxonomyRepository) CreateSection(ctx context.Context, s *domain.Section) error {
	return r.create(ctx, "create_section", s)
}

func (r *GormTaxonomyRepository) CreateSubject(ctx context.Context, s *domain.Subject) error {
	return r.create(ctx, "create_subject", s)
}

func (r *GormTaxonomyRepository) create(ctx context.Context, op string, v any) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "taxonomy", op, "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "taxonomy", op, "success")
	return nil
}

func (r *GormTaxonomyRepository) ListCourseClasses(ctx context.Context) ([]domain.CourseClass, error) {
	var out []domain.CourseClass
	err := r.db.WithContext(ctx).Order("name ASC").Find(&out).Error
	observability.RecordRepositoryOperation(ctx, "taxonomy", "list_course_classes", outcome(err))
	return out, err
}

func (r *GormTaxonomyRepository) ListSections(ctx context.Context, courseClassID string) ([]domain.Section, error) {
	var out []domain.Section
	q := r.db.WithContext(ctx).Order("name ASC")
	if courseClassID != "" {
		q = q.Where("course_class_id = ?", courseClassID)
	}
	err := q.Find(&out).Error
	observability.RecordRepositoryOperation(ctx, "taxonomy", "list_sections", outcome(err))
	return out, err
}

func (r *GormTaxonomyRepository) ListSubjects(ctx context.Context) ([]domain.Subject, error) {
	var out []domain.Subject
	err := r.db.WithContext(ctx).Order("name ASC").Find(&out).Error
	observability.RecordRepositoryOperation(ctx, "taxonomy", "list_subjects", outcome(err))
	return out, err
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
