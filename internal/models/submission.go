package models

type SubmissionStatus string

const SubmissionSubmitted SubmissionStatus = "submitted"

type Submission struct {
	ID          string           `db:"id" json:"id" validate:"required,max=64"`
	MissionID   int64            `db:"mission_id" json:"mission_id" validate:"required,gt=0"`
	StudentID   string           `db:"student_id" json:"student_id" validate:"required,max=64"`
	SubmittedAt int64            `db:"submitted_at" json:"submitted_at"`
	Status      SubmissionStatus `db:"status" json:"status" validate:"required,oneof=submitted"`
}

func (s *Submission) Validate() error {
	return validate.Struct(s)
}
