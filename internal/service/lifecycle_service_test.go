package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/pkg/clock"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type mockStudentLifecycleRepo struct {
	students map[string]models.Student
	ras      map[string]string
}

func (m *mockStudentLifecycleRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentLifecycleRepo) UpdateProfile(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentLifecycleRepo) ExistsByRA(ctx context.Context, ra, excludeID string) (bool, error) {
	owner, ok := m.ras[ra]
	return ok && owner != excludeID, nil
}

func (m *mockStudentLifecycleRepo) TransitionStatus(ctx context.Context, id string, allowedFrom []models.StudentStatus, to models.StudentStatus, graduationDate, deletedAt *time.Time) (bool, error) {
	s, ok := m.students[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, from := range allowedFrom {
		if s.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	s.Status = to
	s.GraduationDate = graduationDate
	s.DeletedAt = deletedAt
	m.students[id] = s
	return true, nil
}

func newLifecycleFixture(status models.StudentStatus) (*LifecycleService, *mockStudentLifecycleRepo) {
	repo := &mockStudentLifecycleRepo{
		students: map[string]models.Student{
			"stu-1": {ID: "stu-1", RA: "RA001", FullName: "Ana Souza", Status: status},
		},
		ras: map[string]string{"RA001": "stu-1"},
	}
	fixed := clock.Fixed(time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC))
	return NewLifecycleService(repo, NopAuditSink{}, fixed, nil, nil), repo
}

func assertInvalidTransition(t *testing.T, err error) {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestLockActiveStudent(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)

	student, err := svc.Lock(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusLocked, student.Status)
}

func TestLockRequiresActive(t *testing.T) {
	for _, status := range []models.StudentStatus{models.StudentStatusLocked, models.StudentStatusGraduated, models.StudentStatusDeleted} {
		svc, _ := newLifecycleFixture(status)
		_, err := svc.Lock(context.Background(), "stu-1", nil)
		assertInvalidTransition(t, err)
	}
}

func TestGraduateStampsDate(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)

	student, err := svc.Graduate(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusGraduated, student.Status)
	require.NotNil(t, student.GraduationDate)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), *student.GraduationDate)
}

func TestGraduatedIsAbsorbing(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)
	_, err := svc.Graduate(context.Background(), "stu-1", nil)
	require.NoError(t, err)

	_, err = svc.Lock(context.Background(), "stu-1", nil)
	assertInvalidTransition(t, err)
	_, err = svc.Reactivate(context.Background(), "stu-1", nil)
	assertInvalidTransition(t, err)
	_, err = svc.SoftDelete(context.Background(), "stu-1", nil)
	assertInvalidTransition(t, err)
}

func TestLockThenReactivateRoundTrip(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)

	locked, err := svc.Lock(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusLocked, locked.Status)

	active, err := svc.Reactivate(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusActive, active.Status)
	assert.Nil(t, active.DeletedAt)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)

	deleted, err := svc.SoftDelete(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusDeleted, deleted.Status)
	require.NotNil(t, deleted.DeletedAt)

	restored, err := svc.Reactivate(context.Background(), "stu-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusActive, restored.Status)
	assert.Nil(t, restored.DeletedAt)
}

func TestUpdateProfileRejectsDeleted(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusDeleted)

	name := "New Name"
	_, err := svc.UpdateProfile(context.Background(), "stu-1", UpdateStudentProfileRequest{FullName: &name})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrStudentDeleted.Code, appErr.Code)
}

func TestUpdateProfileRejectsDuplicateRA(t *testing.T) {
	svc, repo := newLifecycleFixture(models.StudentStatusActive)
	repo.students["stu-2"] = models.Student{ID: "stu-2", RA: "RA002", Status: models.StudentStatusActive}
	repo.ras["RA002"] = "stu-2"

	ra := "RA002"
	_, err := svc.UpdateProfile(context.Background(), "stu-1", UpdateStudentProfileRequest{RA: &ra})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestUpdateProfileKeepsOwnRA(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)

	ra := "RA001"
	name := "Ana S. Souza"
	student, err := svc.UpdateProfile(context.Background(), "stu-1", UpdateStudentProfileRequest{RA: &ra, FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana S. Souza", student.FullName)
	assert.Equal(t, "RA001", student.RA)
}

func TestLifecycleNotFound(t *testing.T) {
	svc, _ := newLifecycleFixture(models.StudentStatusActive)

	_, err := svc.Lock(context.Background(), "missing", nil)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
