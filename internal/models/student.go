package models

import "time"

// StudentStatus represents the lifecycle state of a student profile.
type StudentStatus string

// Student lifecycle states. GRADUATED is absorbing; DELETED is a reversible
// soft delete.
const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusLocked    StudentStatus = "LOCKED"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusDeleted   StudentStatus = "DELETED"
)

// Valid returns true when the status is a supported value.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusLocked, StudentStatusGraduated, StudentStatusDeleted:
		return true
	default:
		return false
	}
}

// Student represents a learner registered in the institution. Rows are never
// physically destroyed; DELETED keeps academic and financial history intact.
type Student struct {
	ID              string        `db:"id" json:"id"`
	RA              string        `db:"ra" json:"ra"`
	FullName        string        `db:"full_name" json:"full_name"`
	CourseID        *string       `db:"course_id" json:"course_id,omitempty"`
	AdmissionTermID *string       `db:"admission_term_id" json:"admission_term_id,omitempty"`
	Status          StudentStatus `db:"status" json:"status"`
	GraduationDate  *time.Time    `db:"graduation_date" json:"graduation_date,omitempty"`
	DeletedAt       *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	CourseID  string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
