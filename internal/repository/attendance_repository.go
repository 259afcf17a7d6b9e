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

// AttendanceRepository handles persistence of attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, session_id, student_id, status, recorded_at, created_at, updated_at`

// FindByID returns an attendance record by its ID.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE id = $1", attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns attendance records filtered by the provided criteria.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM attendance_records`
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY recorded_at DESC LIMIT %d OFFSET %d",
		attendanceColumns, base+clause, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// Create persists an attendance record. The (session, student) unique
// constraint serializes concurrent writes for the same pair.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.RecordedAt.IsZero() {
		record.RecordedAt = now
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, recorded_at, created_at, updated_at)
        VALUES (:id, :session_id, :student_id, :status, :recorded_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// UpdateStatus changes the status of an attendance record.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus) error {
	const query = `UPDATE attendance_records SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an attendance record.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM attendance_records WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}

// CountAbsences counts ABSENT records of a student in a section, restricted
// to non-canceled sessions held up to and including the given day.
func (r *AttendanceRepository) CountAbsences(ctx context.Context, studentID, sectionID string, until time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_records ar
        JOIN class_sessions cs ON cs.id = ar.session_id
        WHERE ar.student_id = $1 AND cs.section_id = $2 AND ar.status = $3
          AND cs.is_canceled = FALSE AND cs.session_date <= $4`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, sectionID, models.AttendanceStatusAbsent, until); err != nil {
		return 0, fmt.Errorf("count absences: %w", err)
	}
	return count, nil
}

// ExistsForEnrollment reports whether the student has any attendance record
// in the section, which blocks enrollment deletion.
func (r *AttendanceRepository) ExistsForEnrollment(ctx context.Context, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM attendance_records ar
        JOIN class_sessions cs ON cs.id = ar.session_id
        WHERE ar.student_id = $1 AND cs.section_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check attendance dependency: %w", err)
	}
	return true, nil
}
