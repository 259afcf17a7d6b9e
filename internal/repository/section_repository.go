package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/campus-core/backoffice-api/internal/models"
)

// SectionRepository handles persistence of sections and their weekly
// meeting patterns.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, subject_id, term_id, code, capacity, created_at, updated_at FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListByTerm returns all sections offered in a term.
func (r *SectionRepository) ListByTerm(ctx context.Context, termID string) ([]models.Section, error) {
	const query = `SELECT id, subject_id, term_id, code, capacity, created_at, updated_at FROM sections WHERE term_id = $1`
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, termID); err != nil {
		return nil, fmt.Errorf("list term sections: %w", err)
	}
	return sections, nil
}

// ListMeetings returns the weekly meeting pattern of one section.
func (r *SectionRepository) ListMeetings(ctx context.Context, sectionID string) ([]models.SectionMeeting, error) {
	const query = `SELECT id, section_id, weekday, start_time, end_time, room, created_at
        FROM section_meetings WHERE section_id = $1 ORDER BY weekday ASC, start_time ASC`
	var meetings []models.SectionMeeting
	if err := r.db.SelectContext(ctx, &meetings, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section meetings: %w", err)
	}
	return meetings, nil
}

// MeetingWeekdays returns the distinct weekdays on which any of the given
// sections meet.
func (r *SectionRepository) MeetingWeekdays(ctx context.Context, sectionIDs []string) ([]int, error) {
	if len(sectionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sectionIDs))
	args := make([]interface{}, len(sectionIDs))
	for i, id := range sectionIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT DISTINCT weekday FROM section_meetings WHERE section_id IN (%s) ORDER BY weekday`,
		strings.Join(placeholders, ","))
	var weekdays []int
	if err := r.db.SelectContext(ctx, &weekdays, query, args...); err != nil {
		return nil, fmt.Errorf("list meeting weekdays: %w", err)
	}
	return weekdays, nil
}
