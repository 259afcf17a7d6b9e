package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/campus-core/backoffice-api/internal/models"
)

// GradeRepository handles persistence of final grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `id, section_id, student_id, final_score, absences_count, absences_pct, status, created_at, updated_at`

// FindBySectionAndStudent returns the final grade for the pair.
func (r *GradeRepository) FindBySectionAndStudent(ctx context.Context, sectionID, studentID string) (*models.FinalGrade, error) {
	query := fmt.Sprintf("SELECT %s FROM final_grades WHERE section_id = $1 AND student_id = $2", gradeColumns)
	var grade models.FinalGrade
	if err := r.db.GetContext(ctx, &grade, query, sectionID, studentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListByStudent returns all final grades of a student.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.FinalGrade, error) {
	query := fmt.Sprintf("SELECT %s FROM final_grades WHERE student_id = $1 ORDER BY created_at DESC", gradeColumns)
	var grades []models.FinalGrade
	if err := r.db.SelectContext(ctx, &grades, query, studentID); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// ListBySection returns all final grades of a section.
func (r *GradeRepository) ListBySection(ctx context.Context, sectionID string) ([]models.FinalGrade, error) {
	query := fmt.Sprintf("SELECT %s FROM final_grades WHERE section_id = $1 ORDER BY created_at DESC", gradeColumns)
	var grades []models.FinalGrade
	if err := r.db.SelectContext(ctx, &grades, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section grades: %w", err)
	}
	return grades, nil
}

// UpdateAbsences writes the derived absence fields onto the grade row for
// the pair, leaving final_score and status untouched. Returns false when no
// grade row exists yet.
func (r *GradeRepository) UpdateAbsences(ctx context.Context, sectionID, studentID string, count int, pct decimal.Decimal) (bool, error) {
	const query = `UPDATE final_grades SET absences_count = $3, absences_pct = $4, updated_at = $5
        WHERE section_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, sectionID, studentID, count, pct, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update absences: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update absences: %w", err)
	}
	return rows > 0, nil
}

// ExistsForEnrollment reports whether a grade row exists for the pair,
// which blocks enrollment deletion.
func (r *GradeRepository) ExistsForEnrollment(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM final_grades WHERE student_id = $1 AND section_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grade dependency: %w", err)
	}
	return true, nil
}
