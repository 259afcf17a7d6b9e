package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	"github.com/campus-core/backoffice-api/pkg/clock"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type sessionRepo interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.ClassSession, error)
	Create(ctx context.Context, session *models.ClassSession) (bool, error)
	SetCanceled(ctx context.Context, id string, canceled bool) error
}

type meetingReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	ListMeetings(ctx context.Context, sectionID string) ([]models.SectionMeeting, error)
}

// GenerateSessionsRequest bounds the date range to materialise sessions for.
type GenerateSessionsRequest struct {
	SectionID string    `json:"section_id" validate:"required"`
	From      time.Time `json:"from" validate:"required"`
	To        time.Time `json:"to" validate:"required"`
}

// SessionService materialises a section's recurring weekly meetings into
// dated class sessions, and cancels individual occurrences. Generation is
// idempotent: dates that already hold a session are skipped.
type SessionService struct {
	sessions sessionRepo
	sections meetingReader
	logger   *zap.Logger
}

// NewSessionService constructs SessionService.
func NewSessionService(sessions sessionRepo, sections meetingReader, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{sessions: sessions, sections: sections, logger: logger}
}

// ListBySection returns the dated sessions of a section.
func (s *SessionService) ListBySection(ctx context.Context, sectionID string) ([]models.ClassSession, error) {
	sessions, err := s.sessions.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Generate walks the date range and creates one session per meeting whose
// weekday matches, carrying the meeting's time slot and room. Returns the
// sessions created in this call.
func (s *SessionService) Generate(ctx context.Context, req GenerateSessionsRequest) ([]models.ClassSession, error) {
	from := clock.Midnight(req.From)
	to := clock.Midnight(req.To)
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end precedes range start")
	}

	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	meetings, err := s.sections.ListMeetings(ctx, req.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load meetings")
	}
	if len(meetings) == 0 {
		return []models.ClassSession{}, nil
	}

	byWeekday := make(map[int][]models.SectionMeeting)
	for _, m := range meetings {
		byWeekday[m.Weekday] = append(byWeekday[m.Weekday], m)
	}

	created := make([]models.ClassSession, 0)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		// time.Weekday numbers Sunday as 0, matching the storage convention.
		for _, m := range byWeekday[int(day.Weekday())] {
			session := &models.ClassSession{
				SectionID:   req.SectionID,
				SessionDate: day,
				StartTime:   m.StartTime,
				EndTime:     m.EndTime,
				Room:        m.Room,
			}
			inserted, err := s.sessions.Create(ctx, session)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
			}
			if inserted {
				created = append(created, *session)
			}
		}
	}
	s.logger.Info("sessions generated",
		zap.String("section_id", req.SectionID),
		zap.Int("created", len(created)))
	return created, nil
}

// Cancel flags a session as canceled, removing it from attendance
// denominators. Absence counters converge on the next attendance
// recalculation for each affected student.
func (s *SessionService) Cancel(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.setCanceled(ctx, id, true)
}

// Restore clears the canceled flag of a session.
func (s *SessionService) Restore(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.setCanceled(ctx, id, false)
}

func (s *SessionService) setCanceled(ctx context.Context, id string, canceled bool) (*models.ClassSession, error) {
	if _, err := s.sessions.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.sessions.SetCanceled(ctx, id, canceled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}
