package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campus-core/backoffice-api/internal/models"
)

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, ra, full_name, course_id, admission_term_id, status, graduation_date, deleted_at, created_at, updated_at`

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := `FROM students`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR ra ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"ra":         "ra",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		studentColumns, base+clause, orderBy, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create persists a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, ra, full_name, course_id, admission_term_id, status, graduation_date, deleted_at, created_at, updated_at)
        VALUES (:id, :ra, :full_name, :course_id, :admission_term_id, :status, :graduation_date, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateProfile saves mutable profile attributes. Status fields are not
// touched here; transitions go through TransitionStatus.
func (r *StudentRepository) UpdateProfile(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET ra = $2, full_name = $3, course_id = $4, admission_term_id = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, student.ID, student.RA, student.FullName, student.CourseID, student.AdmissionTermID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// TransitionStatus applies a lifecycle transition guarded by the set of
// statuses it is allowed to leave from. The guard runs inside the UPDATE so
// two concurrent transitions cannot both succeed against a stale read.
// Returns false when the row was not in an allowed source status.
func (r *StudentRepository) TransitionStatus(ctx context.Context, id string, allowedFrom []models.StudentStatus, to models.StudentStatus, graduationDate, deletedAt *time.Time) (bool, error) {
	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}
	const query = `UPDATE students
        SET status = $2, graduation_date = $3, deleted_at = $4, updated_at = $5
        WHERE id = $1 AND status = ANY($6)`
	res, err := r.db.ExecContext(ctx, query, id, to, graduationDate, deletedAt, time.Now().UTC(), pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("transition student status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition student status: %w", err)
	}
	return rows > 0, nil
}

// ExistsByRA reports whether another student already uses the RA.
func (r *StudentRepository) ExistsByRA(ctx context.Context, ra, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE ra = $1"
	args := []interface{}{ra}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student ra: %w", err)
	}
	return true, nil
}
