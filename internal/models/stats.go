package models

// WeeklyStat is the submission picture of one cohort week. Submissions counts
// distinct students who submitted any mission due that week.
type WeeklyStat struct {
	CohortID      int64 `json:"cohort_id"`
	Week          int   `json:"week"`
	TotalMissions int   `json:"total_missions"`
	Submissions   int   `json:"submissions"`
	RosterSize    int   `json:"roster_size"`
	Rate          int   `json:"rate"`
}

type CohortSummary struct {
	CohortID          int64        `json:"cohort_id"`
	Name              string       `json:"name"`
	Status            CohortStatus `json:"status"`
	RosterSize        int          `json:"roster_size"`
	OverallRate       int          `json:"overall_rate"`
	ActiveStudents    int          `json:"active_students"`
	TotalMissions     int          `json:"total_missions"`
	CompletedMissions int          `json:"completed_missions"`
	Weeks             []WeeklyStat `json:"weeks"`
}

type StudentStatus struct {
	CohortID          int64   `json:"cohort_id"`
	StudentID         string  `json:"student_id"`
	TotalMissions     int     `json:"total_missions"`
	SubmittedMissions int     `json:"submitted_missions"`
	MissingMissions   []int64 `json:"missing_missions"`
	Rate              int     `json:"rate"`
	LastSubmittedAt   int64   `json:"last_submitted_at,omitempty"`
}
