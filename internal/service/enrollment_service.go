package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/internal/repository"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type conflictChecker interface {
	WouldConflict(ctx context.Context, studentID, termID, sectionID string) (*models.ConflictResult, error)
}

type dependencyChecker interface {
	ExistsForEnrollment(ctx context.Context, studentID, sectionID string) (bool, error)
}

// EnrollStudentRequest describes an enrollment creation payload.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// EnrollmentService enrolls students into sections, enforcing the weekday
// collision rule and the lifecycle gate, and guards enrollment removal
// behind existing attendance or grade history. Enrollment writes for the
// same student are serialized with a per-student advisory lock.
type EnrollmentService struct {
	db          *sqlx.DB
	enrollments *repository.EnrollmentRepository
	students    invoiceStudentReader
	sections    sectionReader
	schedule    conflictChecker
	attendance  dependencyChecker
	grades      dependencyChecker
	audit       AuditSink
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(db *sqlx.DB, enrollments *repository.EnrollmentRepository, students invoiceStudentReader, sections sectionReader, schedule conflictChecker, attendance, grades dependencyChecker, audit AuditSink, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &EnrollmentService{
		db:          db,
		enrollments: enrollments,
		students:    students,
		sections:    sections,
		schedule:    schedule,
		attendance:  attendance,
		grades:      grades,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments with student and section context.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll creates an ENROLLED record after checking that the student is
// ACTIVE, is not already in the section, and has no class on any of the
// section's meeting weekdays within the same term. The duplicate and weekday
// checks run under a per-student advisory lock in the insert transaction, so
// two concurrent requests for the same student cannot both pass them.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest, actorID *string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrPreconditionFailed, "only active students can enroll"), map[string]interface{}{
			"student_status": student.Status,
		})
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	enrollments := s.enrollments.WithTx(tx)
	if err := enrollments.LockStudent(ctx, req.StudentID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student enrollments")
	}

	// A competing transaction holds the lock until commit, so these reads
	// see its enrollment once we acquire it.
	exists, err := enrollments.Exists(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this section")
	}

	conflict, err := s.schedule.WouldConflict(ctx, req.StudentID, section.TermID, req.SectionID)
	if err != nil {
		return nil, err
	}
	if conflict.Conflict {
		return nil, appErrors.WithDetails(appErrors.ErrScheduleConflict, map[string]interface{}{
			"weekdays": conflict.Weekdays,
		})
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		SectionID: req.SectionID,
		Status:    models.EnrollmentStatusEnrolled,
	}
	if err := enrollments.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}

	s.audit.Record(ctx, actorID, models.AuditActionEnrollmentCreate, "enrollment", &enrollment.ID, map[string]interface{}{
		"student_id": req.StudentID,
		"section_id": req.SectionID,
	})
	return enrollment, nil
}

// UpdateStatus moves an enrollment between ENROLLED, LOCKED, DROPPED and
// COMPLETED. DROPPED enrollments no longer count toward the weekday rule.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.Enrollment, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment status")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.enrollments.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	return s.Get(ctx, id)
}

// Delete removes an enrollment only when no attendance or grade history
// references the student/section pair.
func (s *EnrollmentService) Delete(ctx context.Context, id string, actorID *string) error {
	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	hasAttendance, err := s.attendance.ExistsForEnrollment(ctx, enrollment.StudentID, enrollment.SectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check attendance history")
	}
	if hasAttendance {
		return appErrors.Clone(appErrors.ErrHasDependencies, "enrollment has attendance records")
	}
	hasGrade, err := s.grades.ExistsForEnrollment(ctx, enrollment.StudentID, enrollment.SectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade history")
	}
	if hasGrade {
		return appErrors.Clone(appErrors.ErrHasDependencies, "enrollment has a final grade")
	}

	if err := s.enrollments.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.audit.Record(ctx, actorID, models.AuditActionEnrollmentDelete, "enrollment", &id, map[string]interface{}{
		"student_id": enrollment.StudentID,
		"section_id": enrollment.SectionID,
	})
	return nil
}
