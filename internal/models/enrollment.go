package models

import "time"

// EnrollmentStatus represents the lifecycle of a section enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusLocked    EnrollmentStatus = "LOCKED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusLocked, EnrollmentStatusDropped, EnrollmentStatusCompleted:
		return true
	default:
		return false
	}
}

// Enrollment binds a student to a section. The (student, section) pair is
// unique and immutable once dependent attendance or grade records exist.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SectionID string           `db:"section_id" json:"section_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentRA   string `db:"student_ra" json:"student_ra"`
	SectionCode string `db:"section_code" json:"section_code"`
	TermID      string `db:"term_id" json:"term_id"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	TermID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ConflictResult describes the outcome of a schedule-conflict check. An
// empty Weekdays set means the enrollment is clear.
type ConflictResult struct {
	Conflict bool  `json:"conflict"`
	Weekdays []int `json:"weekdays,omitempty"`
}
