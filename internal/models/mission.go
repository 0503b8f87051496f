package models

import "time"

type Mission struct {
	ID       int64  `db:"id" json:"id" validate:"required,gt=0"`
	CohortID int64  `db:"cohort_id" json:"cohort_id" validate:"required,gt=0"`
	Week     int    `db:"week" json:"week" validate:"required,gte=1"`
	Title    string `db:"title" json:"title" validate:"max=200"`
	DueAt    int64  `db:"due_at" json:"due_at"`
	Active   bool   `db:"active" json:"active"`
}

func (m *Mission) Validate() error {
	return validate.Struct(m)
}

// Due reports the deadline as a UTC time.
func (m *Mission) Due() time.Time {
	return time.Unix(m.DueAt, 0).UTC()
}

// IsOverdue reports whether the deadline has passed at now.
func (m *Mission) IsOverdue(now time.Time) bool {
	return now.Unix() > m.DueAt
}
