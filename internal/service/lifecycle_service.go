package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/pkg/clock"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type studentLifecycleRepo interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateProfile(ctx context.Context, student *models.Student) error
	ExistsByRA(ctx context.Context, ra, excludeID string) (bool, error)
	TransitionStatus(ctx context.Context, id string, allowedFrom []models.StudentStatus, to models.StudentStatus, graduationDate, deletedAt *time.Time) (bool, error)
}

// UpdateStudentProfileRequest carries the mutable profile attributes.
type UpdateStudentProfileRequest struct {
	RA              *string `json:"ra"`
	FullName        *string `json:"full_name"`
	CourseID        *string `json:"course_id"`
	AdmissionTermID *string `json:"admission_term_id"`
}

// LifecycleService governs student status transitions and the profile
// mutations they gate. Every transition is one guarded atomic update: the
// allowed source statuses are checked inside the UPDATE itself, so two
// concurrent transitions cannot both succeed against a stale read.
type LifecycleService struct {
	students  studentLifecycleRepo
	audit     AuditSink
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLifecycleService constructs LifecycleService.
func NewLifecycleService(students studentLifecycleRepo, audit AuditSink, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &LifecycleService{students: students, audit: audit, clock: clk, validator: validate, logger: logger}
}

// Lock suspends an ACTIVE student.
func (s *LifecycleService) Lock(ctx context.Context, studentID string, actorID *string) (*models.Student, error) {
	student, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ok, err := s.students.TransitionStatus(ctx, studentID,
		[]models.StudentStatus{models.StudentStatusActive},
		models.StudentStatusLocked, student.GraduationDate, student.DeletedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student")
	}
	if !ok {
		return nil, transitionRejected(student.Status, models.StudentStatusLocked)
	}
	s.audit.Record(ctx, actorID, models.AuditActionStudentLock, "student", &studentID, map[string]string{"from": string(student.Status)})
	return s.load(ctx, studentID)
}

// Graduate moves an ACTIVE student to GRADUATED, stamping the graduation
// date. GRADUATED is absorbing: no transition ever leaves it.
func (s *LifecycleService) Graduate(ctx context.Context, studentID string, actorID *string) (*models.Student, error) {
	student, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()
	ok, err := s.students.TransitionStatus(ctx, studentID,
		[]models.StudentStatus{models.StudentStatusActive},
		models.StudentStatusGraduated, &today, student.DeletedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to graduate student")
	}
	if !ok {
		return nil, transitionRejected(student.Status, models.StudentStatusGraduated)
	}
	s.audit.Record(ctx, actorID, models.AuditActionStudentGraduate, "student", &studentID, map[string]string{"graduation_date": today.Format("2006-01-02")})
	return s.load(ctx, studentID)
}

// Reactivate returns a LOCKED or soft-DELETED student to ACTIVE, clearing
// the deletion timestamp.
func (s *LifecycleService) Reactivate(ctx context.Context, studentID string, actorID *string) (*models.Student, error) {
	student, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ok, err := s.students.TransitionStatus(ctx, studentID,
		[]models.StudentStatus{models.StudentStatusLocked, models.StudentStatusDeleted},
		models.StudentStatusActive, student.GraduationDate, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate student")
	}
	if !ok {
		return nil, transitionRejected(student.Status, models.StudentStatusActive)
	}
	s.audit.Record(ctx, actorID, models.AuditActionStudentReactivate, "student", &studentID, map[string]string{"from": string(student.Status)})
	return s.load(ctx, studentID)
}

// SoftDelete marks an ACTIVE or LOCKED student as DELETED. Academic and
// financial history is preserved; nothing cascades.
func (s *LifecycleService) SoftDelete(ctx context.Context, studentID string, actorID *string) (*models.Student, error) {
	student, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	ok, err := s.students.TransitionStatus(ctx, studentID,
		[]models.StudentStatus{models.StudentStatusActive, models.StudentStatusLocked},
		models.StudentStatusDeleted, student.GraduationDate, &now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if !ok {
		return nil, transitionRejected(student.Status, models.StudentStatusDeleted)
	}
	s.audit.Record(ctx, actorID, models.AuditActionStudentDelete, "student", &studentID, map[string]string{"from": string(student.Status)})
	return s.load(ctx, studentID)
}

// UpdateProfile patches profile attributes. Any mutation of a DELETED
// profile is rejected.
func (s *LifecycleService) UpdateProfile(ctx context.Context, studentID string, req UpdateStudentProfileRequest) (*models.Student, error) {
	student, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Status == models.StudentStatusDeleted {
		return nil, appErrors.Clone(appErrors.ErrStudentDeleted, "deleted student cannot be modified")
	}
	if req.RA != nil && *req.RA != student.RA {
		taken, err := s.students.ExistsByRA(ctx, *req.RA, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student ra")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "ra already in use")
		}
		student.RA = *req.RA
	}
	if req.FullName != nil {
		student.FullName = *req.FullName
	}
	if req.CourseID != nil {
		student.CourseID = req.CourseID
	}
	if req.AdmissionTermID != nil {
		student.AdmissionTermID = req.AdmissionTermID
	}
	if err := s.students.UpdateProfile(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.load(ctx, studentID)
}

func (s *LifecycleService) load(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func transitionRejected(from, to models.StudentStatus) error {
	return appErrors.WithDetails(appErrors.ErrInvalidTransition, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
}
