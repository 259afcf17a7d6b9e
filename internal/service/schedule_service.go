package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/campus-core/backoffice-api/internal/models"
	appErrors "github.com/campus-core/backoffice-api/pkg/errors"
)

type meetingWeekdayReader interface {
	MeetingWeekdays(ctx context.Context, sectionIDs []string) ([]int, error)
}

type enrolledSectionReader interface {
	EnrolledSectionIDs(ctx context.Context, studentID, termID string) ([]string, error)
}

// ScheduleService detects weekday collisions between a candidate section
// and a student's existing enrollments. Conflict is defined at weekday
// granularity ("at most one class per weekday"), not time-range overlap.
type ScheduleService struct {
	meetings    meetingWeekdayReader
	enrollments enrolledSectionReader
	logger      *zap.Logger
}

// NewScheduleService constructs ScheduleService.
func NewScheduleService(meetings meetingWeekdayReader, enrollments enrolledSectionReader, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{meetings: meetings, enrollments: enrollments, logger: logger}
}

// WouldConflict reports whether enrolling the student into the candidate
// section would collide with another ENROLLED section of the same term on
// any weekday. The result carries the sorted intersecting weekday set.
func (s *ScheduleService) WouldConflict(ctx context.Context, studentID, termID, sectionID string) (*models.ConflictResult, error) {
	candidate, err := s.meetings.MeetingWeekdays(ctx, []string{sectionID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section meetings")
	}
	// A section without a weekly pattern cannot conflict.
	if len(candidate) == 0 {
		return &models.ConflictResult{}, nil
	}

	enrolledIDs, err := s.enrollments.EnrolledSectionIDs(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student enrollments")
	}
	if len(enrolledIDs) == 0 {
		return &models.ConflictResult{}, nil
	}

	existing, err := s.meetings.MeetingWeekdays(ctx, enrolledIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled meetings")
	}

	existingSet := make(map[int]struct{}, len(existing))
	for _, d := range existing {
		existingSet[d] = struct{}{}
	}

	var overlap []int
	for _, d := range candidate {
		if _, ok := existingSet[d]; ok {
			overlap = append(overlap, d)
		}
	}
	if len(overlap) == 0 {
		return &models.ConflictResult{}, nil
	}
	sort.Ints(overlap)
	return &models.ConflictResult{Conflict: true, Weekdays: overlap}, nil
}
