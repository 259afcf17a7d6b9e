package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/internal/repository"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type stubSectionReader struct {
	sections map[string]models.Section
}

func (s *stubSectionReader) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if sec, ok := s.sections[id]; ok {
		return &sec, nil
	}
	return nil, sql.ErrNoRows
}

type stubConflictChecker struct {
	result models.ConflictResult
}

func (s *stubConflictChecker) WouldConflict(ctx context.Context, studentID, termID, sectionID string) (*models.ConflictResult, error) {
	return &s.result, nil
}

type stubDependencyChecker struct {
	exists bool
}

func (s *stubDependencyChecker) ExistsForEnrollment(ctx context.Context, studentID, sectionID string) (bool, error) {
	return s.exists, nil
}

func newEnrollmentFixture(t *testing.T, conflict models.ConflictResult) (*EnrollmentService, sqlmock.Sqlmock, func()) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "sqlmock")

	students := &stubStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", RA: "2026001", FullName: "Ana Souza", Status: models.StudentStatusActive},
	}}
	sections := &stubSectionReader{sections: map[string]models.Section{
		"sec-1": {ID: "sec-1", SubjectID: "sub-1", TermID: "term-1", Code: "MAT101-A"},
	}}

	svc := NewEnrollmentService(db,
		repository.NewEnrollmentRepository(db),
		students, sections,
		&stubConflictChecker{result: conflict},
		&stubDependencyChecker{}, &stubDependencyChecker{},
		NopAuditSink{}, nil, nil)
	return svc, mock, func() { raw.Close() }
}

func expectStudentLock(mock sqlmock.Sqlmock, studentID string) {
	mock.ExpectExec("SELECT pg_advisory_xact_lock\\(hashtext\\(\\$1\\)\\)").
		WithArgs(studentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestEnrollLocksStudentInsideInsertTransaction(t *testing.T) {
	svc, mock, cleanup := newEnrollmentFixture(t, models.ConflictResult{})
	defer cleanup()

	mock.ExpectBegin()
	expectStudentLock(mock, "stu-1")
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id = \\$1 AND section_id = \\$2 LIMIT 1").
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-1",
		SectionID: "sec-1",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollDuplicateSeenUnderLockAborts(t *testing.T) {
	svc, mock, cleanup := newEnrollmentFixture(t, models.ConflictResult{})
	defer cleanup()

	// The duplicate check runs after the lock is acquired, so an enrollment
	// committed by a competing request is visible and aborts this one.
	mock.ExpectBegin()
	expectStudentLock(mock, "stu-1")
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id = \\$1 AND section_id = \\$2 LIMIT 1").
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-1",
		SectionID: "sec-1",
	}, nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollScheduleConflictAborts(t *testing.T) {
	svc, mock, cleanup := newEnrollmentFixture(t, models.ConflictResult{Conflict: true, Weekdays: []int{2}})
	defer cleanup()

	mock.ExpectBegin()
	expectStudentLock(mock, "stu-1")
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id = \\$1 AND section_id = \\$2 LIMIT 1").
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		StudentID: "stu-1",
		SectionID: "sec-1",
	}, nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
