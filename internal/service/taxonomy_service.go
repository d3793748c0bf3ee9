package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sensei-edu/sensei-api/internal/domain"
	"github.com/sensei-edu/sensei-api/internal/repository"
)

type CreateCourseClassInput struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description"`
}

type CreateSectionInput struct {
	Name          string `json:"name" validate:"notblank"`
	CourseClassID string `json:"courseClass" validate:"omitempty,len=24,hexadecimal"`
}

type CreateSubjectInput struct {
	Name        string `json:"name" validate:"notblank"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type TaxonomyService struct {
	repo     repository.TaxonomyRepository
	validate *validator.Validate
}

func NewTaxonomyService(repo repository.TaxonomyRepository) *TaxonomyService {
	return &TaxonomyService{repo: repo, validate: newValidator()}
}

func (s *TaxonomyService) CreateCourseClass(ctx context.Context, in CreateCourseClassInput) (*domain.CourseClass, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationErrorFrom(err, "invalid course class")
	}
	c := &domain.CourseClass{
		ID:          primitive.NewObjectID().Hex(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.repo.CreateCourseClass(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *TaxonomyService) CreateSection(ctx context.Context, in CreateSectionInput) (*domain.Section, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationErrorFrom(err, "invalid section")
	}
	sec := &domain.Section{
		ID:            primitive.NewObjectID().Hex(),
		Name:          strings.TrimSpace(in.Name),
		CourseClassID: strings.TrimSpace(in.CourseClassID),
	}
	if err := s.repo.CreateSection(ctx, sec); err != nil {
		return nil, err
	}
	return sec, nil
}

func (s *TaxonomyService) CreateSubject(ctx context.Context, in CreateSubjectInput) (*domain.Subject, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, validationErrorFrom(err, "invalid subject")
	}
	sub := &domain.Subject{
		ID:          primitive.NewObjectID().Hex(),
		Name:        strings.TrimSpace(in.Name),
		Code:        strings.TrimSpace(in.Code),
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.repo.CreateSubject(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *TaxonomyService) ListCourseClasses(ctx context.Context) ([]domain.CourseClass, error) {
	return s.repo.ListCourseClasses(ctx)
}

func (s *TaxonomyService) ListSections(ctx context.Context, courseClassID string) ([]domain.Section, error) {
	return s.repo.ListSections(ctx, strings.TrimSpace(courseClassID))
}

func (s *TaxonomyService) ListSubjects(ctx context.Context) ([]domain.Subject, error) {
	return s.repo.ListSubjects(ctx)
}
