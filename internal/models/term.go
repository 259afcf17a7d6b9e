package models

import "time"

// Term represents an academic period (semester). At most one term carries
// IsCurrent at any time; the invariant is enforced transactionally on
// reassignment.
type Term struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsCurrent bool      `db:"is_current" json:"is_current"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
