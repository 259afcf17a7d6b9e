package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/pkg/clock"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type attendanceRepo interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	Create(ctx context.Context, record *models.AttendanceRecord) error
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus) error
	Delete(ctx context.Context, id string) error
	CountAbsences(ctx context.Context, studentID, sectionID string, until time.Time) (int, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	CountHeld(ctx context.Context, sectionID string, until time.Time) (int, error)
}

type gradeAbsenceWriter interface {
	UpdateAbsences(ctx context.Context, sectionID, studentID string, count int, pct decimal.Decimal) (bool, error)
}

// RecordAttendanceRequest describes an attendance entry payload.
type RecordAttendanceRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// AttendanceService handles attendance entry and corrections and owns the
// derived absence fields on final grades. Every mutation re-derives the
// counters from the full current record set, so out-of-order or repeated
// recalculation triggers converge to the same result.
type AttendanceService struct {
	records   attendanceRepo
	sessions  sessionReader
	grades    gradeAbsenceWriter
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(records attendanceRepo, sessions sessionReader, grades gradeAbsenceWriter, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &AttendanceService{records: records, sessions: sessions, grades: grades, clock: clk, validator: validate, logger: logger}
}

// List returns attendance records with pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Record creates an attendance entry and recalculates the student's absence
// statistics for the session's section.
func (s *AttendanceService) Record(ctx context.Context, req RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	status := models.AttendanceStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
	}
	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	record := &models.AttendanceRecord{SessionID: req.SessionID, StudentID: req.StudentID, Status: status, RecordedAt: s.clock.Now()}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "attendance already recorded for session and student")
	}
	if err := s.Recalculate(ctx, record.StudentID, session.SectionID); err != nil {
		return nil, err
	}
	return record, nil
}

// Correct updates the status of an existing record and recalculates.
func (s *AttendanceService) Correct(ctx context.Context, id string, status models.AttendanceStatus) (*models.AttendanceRecord, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance status")
	}
	record, session, err := s.loadWithSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.records.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}
	if err := s.Recalculate(ctx, record.StudentID, session.SectionID); err != nil {
		return nil, err
	}
	record.Status = status
	return record, nil
}

// Remove deletes a record and recalculates for the affected pair.
func (s *AttendanceService) Remove(ctx context.Context, id string) error {
	record, session, err := s.loadWithSession(ctx, id)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance")
	}
	return s.Recalculate(ctx, record.StudentID, session.SectionID)
}

// Recalculate re-derives absencesCount and absencesPct for the
// (student, section) pair from the current attendance records and writes
// them onto the final grade row if one exists. No grade row is a silent
// no-op: grade rows are created by the grading workflow, not here.
// Idempotent by construction.
func (s *AttendanceService) Recalculate(ctx context.Context, studentID, sectionID string) error {
	today := s.clock.Today()

	totalSessions, err := s.sessions.CountHeld(ctx, sectionID, today)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}

	count := 0
	pct := decimal.Zero.Round(2)
	if totalSessions > 0 {
		count, err = s.records.CountAbsences(ctx, studentID, sectionID, today)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count absences")
		}
		pct = decimal.NewFromInt(int64(count) * 100).DivRound(decimal.NewFromInt(int64(totalSessions)), 2)
	}

	updated, err := s.grades.UpdateAbsences(ctx, sectionID, studentID, count, pct)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write absence stats")
	}
	if !updated {
		s.logger.Debug("no final grade row for absence stats",
			zap.String("student_id", studentID),
			zap.String("section_id", sectionID))
	}
	return nil
}

func (s *AttendanceService) loadWithSession(ctx context.Context, id string) (*models.AttendanceRecord, *models.ClassSession, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	session, err := s.sessions.FindByID(ctx, record.SessionID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return record, session, nil
}
