package models

type CohortStatus string

const (
	CohortUpcoming  CohortStatus = "upcoming"
	CohortActive    CohortStatus = "active"
	CohortCompleted CohortStatus = "completed"
)

type Cohort struct {
	ID         int64        `db:"id" json:"id" validate:"required,gt=0"`
	Name       string       `db:"name" json:"name" validate:"required,max=64"`
	RosterSize int          `db:"roster_size" json:"roster_size" validate:"gte=0"`
	Status     CohortStatus `db:"status" json:"status" validate:"required,oneof=upcoming active completed"`
}

// RosterMember is a single enrolled student. Student ids are opaque
// strings. Cohorts without any members loaded only expose their roster as a
// headcount.
type RosterMember struct {
	CohortID  int64  `db:"cohort_id" json:"cohort_id" validate:"required,gt=0"`
	StudentID string `db:"student_id" json:"student_id" validate:"required,max=64"`
}

func (c *Cohort) Validate() error {
	return validate.Struct(c)
}

func (m *RosterMember) Validate() error {
	return validate.Struct(m)
}
