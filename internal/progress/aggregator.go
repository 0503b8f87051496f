package progress

import (
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

// RosterSource is the read side of the cohort registry.
type RosterSource interface {
	Cohort(cohortID int64) (models.Cohort, error)
	Members(cohortID int64) ([]string, error)
	ListCohorts() []models.Cohort
}

// MissionSource is the read side of the mission catalog.
type MissionSource interface {
	Mission(missionID int64) (models.Mission, error)
	MissionsFor(cohortID int64, week int) []models.Mission
	ListMissionsFor(cohortID int64) ([]models.Mission, error)
	WeeksFor(cohortID int64) ([]int, error)
}

// SubmissionSource is the read side of the submission ledger.
type SubmissionSource interface {
	DistinctStudents(missionID int64) ([]string, error)
	LastSubmittedAt(missionID int64, studentID string) (int64, bool)
}

type Option func(*Aggregator)

// WithClock overrides the time source used to decide whether a mission is
// past due.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator derives weekly stats, cohort summaries and non-submitter lists
// from the three leaf stores. Results are memoized per cohort version token.
type Aggregator struct {
	roster      RosterSource
	missions    MissionSource
	submissions SubmissionSource
	versions    Versions
	now         func() time.Time

	weekly    *memo[models.WeeklyStat]
	summaries *memo[models.CohortSummary]
	overview  *memo[[]models.CohortSummary]
}

func NewAggregator(roster RosterSource, missions MissionSource, submissions SubmissionSource, versions Versions, opts ...Option) *Aggregator {
	a := &Aggregator{
		roster:      roster,
		missions:    missions,
		submissions: submissions,
		versions:    versions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.weekly = newMemo[models.WeeklyStat]("weekly", a.now)
	a.summaries = newMemo[models.CohortSummary]("summary", a.now)
	a.overview = newMemo[[]models.CohortSummary]("overview", a.now)
	return a
}

// ComputeWeeklyStats counts the distinct students who submitted any of the
// week's missions. A week without missions is all zeros, not an error.
func (a *Aggregator) ComputeWeeklyStats(cohortID int64, week int) (models.WeeklyStat, error) {
	if week < 1 {
		return models.WeeklyStat{}, &ValidationError{Kind: "week", ID: week, Reason: "week numbers start at 1"}
	}
	token := a.versions.Token(cohortID)
	stat, _, err := a.weekly.getOrCompute(cohortID, "week/"+strconv.Itoa(week), token, func() (models.WeeklyStat, time.Time, error) {
		logger.Debug.Printf("Recomputing weekly stats for cohort %d week %d at version %d", cohortID, week, token)
		stat, err := a.weeklyStat(cohortID, week)
		return stat, time.Time{}, err
	})
	return stat, err
}

func (a *Aggregator) weeklyStat(cohortID int64, week int) (models.WeeklyStat, error) {
	cohort, err := a.roster.Cohort(cohortID)
	if err != nil {
		return models.WeeklyStat{}, err
	}

	missions := a.missions.MissionsFor(cohortID, week)
	union := make(map[string]struct{})
	for _, m := range missions {
		students, err := a.submissions.DistinctStudents(m.ID)
		if err != nil {
			return models.WeeklyStat{}, err
		}
		for _, id := range students {
			union[id] = struct{}{}
		}
	}

	return models.WeeklyStat{
		CohortID:      cohortID,
		Week:          week,
		TotalMissions: len(missions),
		Submissions:   len(union),
		RosterSize:    cohort.RosterSize,
		Rate:          rate(len(union), cohort.RosterSize),
	}, nil
}

// ComputeCohortSummary aggregates every week of a cohort. The overall rate
// is the rounded mean of weekly rates, so each week weighs the same no matter
// how many missions it has. A mission only counts as completed once it is
// past due and its distinct submitters reach the roster size.
func (a *Aggregator) ComputeCohortSummary(cohortID int64) (models.CohortSummary, error) {
	summary, _, err := a.cohortSummary(cohortID)
	if err != nil {
		return models.CohortSummary{}, err
	}
	summary.Weeks = slices.Clone(summary.Weeks)
	return summary, nil
}

func (a *Aggregator) cohortSummary(cohortID int64) (models.CohortSummary, time.Time, error) {
	token := a.versions.Token(cohortID)
	return a.summaries.getOrCompute(cohortID, "all", token, func() (models.CohortSummary, time.Time, error) {
		logger.Debug.Printf("Recomputing summary for cohort %d at version %d", cohortID, token)
		return a.summarize(cohortID)
	})
}

func (a *Aggregator) summarize(cohortID int64) (models.CohortSummary, time.Time, error) {
	cohort, err := a.roster.Cohort(cohortID)
	if err != nil {
		return models.CohortSummary{}, time.Time{}, err
	}
	weeks, err := a.missions.WeeksFor(cohortID)
	if err != nil {
		return models.CohortSummary{}, time.Time{}, err
	}

	summary := models.CohortSummary{
		CohortID:   cohort.ID,
		Name:       cohort.Name,
		Status:     cohort.Status,
		RosterSize: cohort.RosterSize,
		Weeks:      make([]models.WeeklyStat, 0, len(weeks)),
	}

	rateSum := 0
	for _, w := range weeks {
		stat, err := a.ComputeWeeklyStats(cohortID, w)
		if err != nil {
			return models.CohortSummary{}, time.Time{}, err
		}
		summary.Weeks = append(summary.Weeks, stat)
		rateSum += stat.Rate
	}
	if len(weeks) > 0 {
		summary.OverallRate = int(math.Round(float64(rateSum) / float64(len(weeks))))
	}

	missions, err := a.missions.ListMissionsFor(cohortID)
	if err != nil {
		return models.CohortSummary{}, time.Time{}, err
	}
	now := a.now()
	var nextDue int64 = math.MaxInt64
	active := make(map[string]struct{})
	for _, m := range missions {
		students, err := a.submissions.DistinctStudents(m.ID)
		if err != nil {
			return models.CohortSummary{}, time.Time{}, err
		}
		for _, id := range students {
			active[id] = struct{}{}
		}
		if m.IsOverdue(now) {
			if len(students) >= cohort.RosterSize {
				summary.CompletedMissions++
			}
		} else if m.DueAt < nextDue {
			nextDue = m.DueAt
		}
	}
	summary.TotalMissions = len(missions)
	summary.ActiveStudents = len(active)

	// completion flips when the next deadline passes, so the entry must not
	// outlive it
	var expires time.Time
	if nextDue != math.MaxInt64 {
		expires = time.Unix(nextDue+1, 0)
	}
	return summary, expires, nil
}

// ComputeAllSummaries returns the summary of every cohort ordered by id. It
// is invalidated by a change to any cohort.
func (a *Aggregator) ComputeAllSummaries() ([]models.CohortSummary, error) {
	token := a.versions.GlobalToken()
	all, _, err := a.overview.getOrCompute(0, "cohorts", token, func() ([]models.CohortSummary, time.Time, error) {
		logger.Debug.Printf("Recomputing all-cohort overview at version %d", token)
		cohorts := a.roster.ListCohorts()
		out := make([]models.CohortSummary, 0, len(cohorts))
		var expires time.Time
		for _, c := range cohorts {
			summary, exp, err := a.cohortSummary(c.ID)
			if err != nil {
				return nil, time.Time{}, err
			}
			out = append(out, summary)
			if !exp.IsZero() && (expires.IsZero() || exp.Before(expires)) {
				expires = exp
			}
		}
		return out, expires, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.CohortSummary, len(all))
	for i, s := range all {
		s.Weeks = slices.Clone(s.Weeks)
		out[i] = s
	}
	return out, nil
}

// ListNonSubmitters returns the sorted roster members of the mission's
// cohort with no submission for it. It needs individual roster identities
// and fails with *RosterUnavailableError when only a headcount is known.
func (a *Aggregator) ListNonSubmitters(missionID int64) ([]string, error) {
	m, err := a.missions.Mission(missionID)
	if err != nil {
		return nil, err
	}
	members, err := a.roster.Members(m.CohortID)
	if err != nil {
		return nil, err
	}
	submitted, err := a.submissions.DistinctStudents(missionID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(members))
	for _, id := range members {
		if _, found := slices.BinarySearch(submitted, id); !found {
			out = append(out, id)
		}
	}
	return out, nil
}

// ComputeStudentStatus reports one student's standing across all missions
// of the cohort.
func (a *Aggregator) ComputeStudentStatus(cohortID int64, studentID string) (models.StudentStatus, error) {
	if studentID == "" {
		return models.StudentStatus{}, &ValidationError{Kind: "student", ID: studentID, Reason: "empty id"}
	}
	missions, err := a.missions.ListMissionsFor(cohortID)
	if err != nil {
		return models.StudentStatus{}, err
	}

	status := models.StudentStatus{
		CohortID:        cohortID,
		StudentID:       studentID,
		TotalMissions:   len(missions),
		MissingMissions: []int64{},
	}
	for _, m := range missions {
		at, ok := a.submissions.LastSubmittedAt(m.ID, studentID)
		if !ok {
			status.MissingMissions = append(status.MissingMissions, m.ID)
			continue
		}
		status.SubmittedMissions++
		if at > status.LastSubmittedAt {
			status.LastSubmittedAt = at
		}
	}

	if status.SubmittedMissions == 0 {
		members, err := a.roster.Members(cohortID)
		if err == nil {
			if _, found := slices.BinarySearch(members, studentID); !found {
				return models.StudentStatus{}, &NotFoundError{Kind: "student", ID: studentID}
			}
		}
	}

	status.Rate = rate(status.SubmittedMissions, status.TotalMissions)
	return status, nil
}

// rate is round(part/whole*100), and 0 for an empty whole.
func rate(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}
