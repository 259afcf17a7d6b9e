package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type gradeRepo interface {
	FindBySectionAndStudent(ctx context.Context, sectionID, studentID string) (*models.FinalGrade, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.FinalGrade, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.FinalGrade, error)
}

// GradeService serves final grade reads, decorating each record with the
// absence alert flag when the absence percentage crosses the configured
// threshold.
type GradeService struct {
	grades         gradeRepo
	alertThreshold decimal.Decimal
	logger         *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepo, alertThreshold decimal.Decimal, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{grades: grades, alertThreshold: alertThreshold, logger: logger}
}

// Get returns the grade of a student in a section.
func (s *GradeService) Get(ctx context.Context, sectionID, studentID string) (*models.FinalGradeView, error) {
	grade, err := s.grades.FindBySectionAndStudent(ctx, sectionID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	view := s.decorate(*grade)
	return &view, nil
}

// ListByStudent returns all grades of a student.
func (s *GradeService) ListByStudent(ctx context.Context, studentID string) ([]models.FinalGradeView, error) {
	grades, err := s.grades.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return s.decorateAll(grades), nil
}

// ListBySection returns all grades of a section.
func (s *GradeService) ListBySection(ctx context.Context, sectionID string) ([]models.FinalGradeView, error) {
	grades, err := s.grades.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return s.decorateAll(grades), nil
}

func (s *GradeService) decorate(grade models.FinalGrade) models.FinalGradeView {
	return models.FinalGradeView{
		FinalGrade:   grade,
		AbsenceAlert: grade.AbsencesPct.GreaterThan(s.alertThreshold),
	}
}

func (s *GradeService) decorateAll(grades []models.FinalGrade) []models.FinalGradeView {
	views := make([]models.FinalGradeView, 0, len(grades))
	for _, g := range grades {
		views = append(views, s.decorate(g))
	}
	return views
}
