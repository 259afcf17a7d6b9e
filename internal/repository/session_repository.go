package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-core/backoffice-api/internal/models"
)

// SessionRepository handles persistence of dated class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, section_id, session_date, start_time, end_time, room, is_canceled, created_at, updated_at`

// FindByID returns a class session by its ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	query := fmt.Sprintf("SELECT %s FROM class_sessions WHERE id = $1", sessionColumns)
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListBySection returns sessions of a section, newest date first.
func (r *SessionRepository) ListBySection(ctx context.Context, sectionID string) ([]models.ClassSession, error) {
	query := fmt.Sprintf("SELECT %s FROM class_sessions WHERE section_id = $1 ORDER BY session_date DESC", sessionColumns)
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section sessions: %w", err)
	}
	return sessions, nil
}

// CountHeld counts the non-canceled sessions of a section held up to and
// including the given day.
func (r *SessionRepository) CountHeld(ctx context.Context, sectionID string, until time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM class_sessions
        WHERE section_id = $1 AND is_canceled = FALSE AND session_date <= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, until); err != nil {
		return 0, fmt.Errorf("count held sessions: %w", err)
	}
	return count, nil
}

// Create persists a session. Returns false without error when a session for
// the same (section, date, start time) already exists.
func (r *SessionRepository) Create(ctx context.Context, session *models.ClassSession) (bool, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO class_sessions (id, section_id, session_date, start_time, end_time, room, is_canceled, created_at, updated_at)
        VALUES (:id, :section_id, :session_date, :start_time, :end_time, :room, :is_canceled, :created_at, :updated_at)
        ON CONFLICT (section_id, session_date, start_time) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}
	return rows > 0, nil
}

// SetCanceled flips the canceled flag on a session.
func (r *SessionRepository) SetCanceled(ctx context.Context, id string, canceled bool) error {
	const query = `UPDATE class_sessions SET is_canceled = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, canceled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
