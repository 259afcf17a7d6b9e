package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-core/backoffice-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

const transitionQuery = `UPDATE students
        SET status = $2, graduation_date = $3, deleted_at = $4, updated_at = $5
        WHERE id = $1 AND status = ANY($6)`

func TestStudentRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	graduation := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(transitionQuery)).
		WithArgs("stu-1", models.StudentStatusGraduated, &graduation, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionStatus(context.Background(), "stu-1",
		[]models.StudentStatus{models.StudentStatusActive, models.StudentStatusLocked},
		models.StudentStatusGraduated, &graduation, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryTransitionStatusGuardMiss(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(transitionQuery)).
		WithArgs("stu-1", models.StudentStatusLocked, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TransitionStatus(context.Background(), "stu-1",
		[]models.StudentStatus{models.StudentStatusActive},
		models.StudentStatusLocked, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok, "transition from a disallowed status must not match any row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByRA(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE ra = $1 AND id <> $2 LIMIT 1")).
		WithArgs("2026001", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByRA(context.Background(), "2026001", "stu-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
