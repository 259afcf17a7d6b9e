package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-core/backoffice-api/internal/models"
)

// EnrollmentRepository handles persistence of section enrollments. Like the
// invoice repository it can be rebound to a transaction with WithTx.
type EnrollmentRepository struct {
	q sqlx.ExtContext
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{q: db}
}

// WithTx returns a copy bound to the given transaction.
func (r *EnrollmentRepository) WithTx(tx *sqlx.Tx) *EnrollmentRepository {
	return &EnrollmentRepository{q: tx}
}

// LockStudent takes a transaction-scoped advisory lock keyed on the student,
// serializing concurrent enrollment writes for the same student. Released
// automatically at commit or rollback.
func (r *EnrollmentRepository) LockStudent(ctx context.Context, studentID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := r.q.ExecContext(ctx, query, studentID); err != nil {
		return fmt.Errorf("lock student enrollments: %w", err)
	}
	return nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students st ON st.id = e.student_id
LEFT JOIN sections sec ON sec.id = e.section_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("sec.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "st.full_name",
		"section_code": "sec.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.status, e.created_at, e.updated_at,
        st.full_name AS student_name, st.ra AS student_ra, sec.code AS section_code, sec.term_id AS term_id
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := sqlx.SelectContext(ctx, r.q, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, section_id, status, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.q, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether the (student, section) pair is already taken.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.q, &exists, query, studentID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// EnrolledSectionIDs returns the sections in which the student holds an
// ENROLLED enrollment within the given term.
func (r *EnrollmentRepository) EnrolledSectionIDs(ctx context.Context, studentID, termID string) ([]string, error) {
	const query = `SELECT e.section_id FROM enrollments e
        JOIN sections sec ON sec.id = e.section_id
        WHERE e.student_id = $1 AND sec.term_id = $2 AND e.status = $3`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.q, &ids, query, studentID, termID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list enrolled sections: %w", err)
	}
	return ids, nil
}

// ExistsEnrolledInTerm reports whether the student has any ENROLLED
// enrollment in the term.
func (r *EnrollmentRepository) ExistsEnrolledInTerm(ctx context.Context, studentID, termID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments e
        JOIN sections sec ON sec.id = e.section_id
        WHERE e.student_id = $1 AND sec.term_id = $2 AND e.status = $3 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.q, &exists, query, studentID, termID, models.EnrollmentStatusEnrolled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check term enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, section_id, status, created_at, updated_at)
        VALUES (:id, :student_id, :section_id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates the status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// Delete removes an enrollment row. Callers must first verify no dependent
// attendance or grade records exist.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}
