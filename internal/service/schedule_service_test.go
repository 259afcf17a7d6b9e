package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMeetingReader struct {
	weekdays map[string][]int
}

func (m *mockMeetingReader) MeetingWeekdays(ctx context.Context, sectionIDs []string) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, id := range sectionIDs {
		for _, wd := range m.weekdays[id] {
			if !seen[wd] {
				seen[wd] = true
				out = append(out, wd)
			}
		}
	}
	return out, nil
}

type mockEnrolledReader struct {
	sections map[string][]string
}

func (m *mockEnrolledReader) EnrolledSectionIDs(ctx context.Context, studentID, termID string) ([]string, error) {
	return m.sections[studentID+"/"+termID], nil
}

func TestWouldConflictSharedWeekday(t *testing.T) {
	// Candidate meets Mon+Wed; the student already has a Monday class.
	meetings := &mockMeetingReader{weekdays: map[string][]int{
		"sec-candidate": {1, 3},
		"sec-enrolled":  {1, 5},
	}}
	enrolled := &mockEnrolledReader{sections: map[string][]string{
		"stu-1/term-1": {"sec-enrolled"},
	}}
	svc := NewScheduleService(meetings, enrolled, nil)

	result, err := svc.WouldConflict(context.Background(), "stu-1", "term-1", "sec-candidate")
	require.NoError(t, err)
	assert.True(t, result.Conflict)
	assert.Equal(t, []int{1}, result.Weekdays)
}

func TestWouldConflictIsSymmetric(t *testing.T) {
	meetings := &mockMeetingReader{weekdays: map[string][]int{
		"sec-a": {2, 4},
		"sec-b": {4, 6},
	}}

	enrolledInB := &mockEnrolledReader{sections: map[string][]string{"stu-1/term-1": {"sec-b"}}}
	svcAB := NewScheduleService(meetings, enrolledInB, nil)
	resultAB, err := svcAB.WouldConflict(context.Background(), "stu-1", "term-1", "sec-a")
	require.NoError(t, err)

	enrolledInA := &mockEnrolledReader{sections: map[string][]string{"stu-1/term-1": {"sec-a"}}}
	svcBA := NewScheduleService(meetings, enrolledInA, nil)
	resultBA, err := svcBA.WouldConflict(context.Background(), "stu-1", "term-1", "sec-b")
	require.NoError(t, err)

	assert.Equal(t, resultAB.Conflict, resultBA.Conflict)
	assert.Equal(t, resultAB.Weekdays, resultBA.Weekdays)
	assert.True(t, resultAB.Conflict)
	assert.Equal(t, []int{4}, resultAB.Weekdays)
}

func TestWouldConflictDisjointWeekdays(t *testing.T) {
	meetings := &mockMeetingReader{weekdays: map[string][]int{
		"sec-candidate": {2},
		"sec-enrolled":  {3, 5},
	}}
	enrolled := &mockEnrolledReader{sections: map[string][]string{
		"stu-1/term-1": {"sec-enrolled"},
	}}
	svc := NewScheduleService(meetings, enrolled, nil)

	result, err := svc.WouldConflict(context.Background(), "stu-1", "term-1", "sec-candidate")
	require.NoError(t, err)
	assert.False(t, result.Conflict)
	assert.Empty(t, result.Weekdays)
}

func TestWouldConflictEmptyCandidatePattern(t *testing.T) {
	meetings := &mockMeetingReader{weekdays: map[string][]int{
		"sec-enrolled": {0, 1, 2, 3, 4, 5, 6},
	}}
	enrolled := &mockEnrolledReader{sections: map[string][]string{
		"stu-1/term-1": {"sec-enrolled"},
	}}
	svc := NewScheduleService(meetings, enrolled, nil)

	result, err := svc.WouldConflict(context.Background(), "stu-1", "term-1", "sec-no-meetings")
	require.NoError(t, err)
	assert.False(t, result.Conflict, "a section without meetings never conflicts")
}

func TestWouldConflictNoEnrollments(t *testing.T) {
	meetings := &mockMeetingReader{weekdays: map[string][]int{
		"sec-candidate": {1, 2, 3},
	}}
	enrolled := &mockEnrolledReader{sections: map[string][]string{}}
	svc := NewScheduleService(meetings, enrolled, nil)

	result, err := svc.WouldConflict(context.Background(), "stu-1", "term-1", "sec-candidate")
	require.NoError(t, err)
	assert.False(t, result.Conflict)
}

func TestWouldConflictSortsWeekdays(t *testing.T) {
	meetings := &mockMeetingReader{weekdays: map[string][]int{
		"sec-candidate": {6, 1, 3},
		"sec-enrolled":  {3, 6, 1},
	}}
	enrolled := &mockEnrolledReader{sections: map[string][]string{
		"stu-1/term-1": {"sec-enrolled"},
	}}
	svc := NewScheduleService(meetings, enrolled, nil)

	result, err := svc.WouldConflict(context.Background(), "stu-1", "term-1", "sec-candidate")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 6}, result.Weekdays)
}
