package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GradeStatus represents the state of a final grade record.
type GradeStatus string

const (
	GradeStatusOpen     GradeStatus = "OPEN"
	GradeStatusApproved GradeStatus = "APPROVED"
	GradeStatusFailed   GradeStatus = "FAILED"
)

// Valid returns true when the status is a supported value.
func (s GradeStatus) Valid() bool {
	switch s {
	case GradeStatusOpen, GradeStatusApproved, GradeStatusFailed:
		return true
	default:
		return false
	}
}

// FinalGrade is the per-student, per-section record combining score and
// absence statistics. AbsencesCount and AbsencesPct are derived fields owned
// exclusively by the attendance aggregator; FinalScore and Status belong to
// the grading workflow.
type FinalGrade struct {
	ID            string           `db:"id" json:"id"`
	SectionID     string           `db:"section_id" json:"section_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	FinalScore    *decimal.Decimal `db:"final_score" json:"final_score,omitempty"`
	AbsencesCount int              `db:"absences_count" json:"absences_count"`
	AbsencesPct   decimal.Decimal  `db:"absences_pct" json:"absences_pct"`
	Status        GradeStatus      `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// FinalGradeView decorates a grade with the absence alert flag derived at
// read time.
type FinalGradeView struct {
	FinalGrade
	AbsenceAlert bool `json:"absence_alert"`
}
