package progress

import (
	"cmp"
	"slices"
	"sync"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

// MissionLookup is the part of the catalog the ledger validates against.
type MissionLookup interface {
	Mission(missionID int64) (models.Mission, error)
}

// SubmissionLedger holds submission events grouped by mission. Recording a
// submission whose id is already present replaces that row; a different id
// from the same student is a new row but never a new distinct student.
type SubmissionLedger struct {
	mu       sync.RWMutex
	missions MissionLookup
	rows     map[int64]map[string]models.Submission
	owner    map[string]int64
	inv      Invalidator
}

func NewSubmissionLedger(missions MissionLookup, inv Invalidator) *SubmissionLedger {
	if inv == nil {
		inv = nopInvalidator{}
	}
	return &SubmissionLedger{
		missions: missions,
		rows:     make(map[int64]map[string]models.Submission),
		owner:    make(map[string]int64),
		inv:      inv,
	}
}

// Load replaces the ledger. Nothing is applied if any submission is invalid.
func (l *SubmissionLedger) Load(subs []models.Submission) error {
	cohorts := make(map[int64]int64)
	seen := make(map[string]struct{}, len(subs))
	for i := range subs {
		cohortID, err := l.check(&subs[i])
		if err != nil {
			return err
		}
		if _, dup := seen[subs[i].ID]; dup {
			return &ValidationError{Kind: "submission", ID: subs[i].ID, Reason: "duplicate id"}
		}
		seen[subs[i].ID] = struct{}{}
		cohorts[subs[i].MissionID] = cohortID
	}

	l.mu.Lock()
	previous := make([]int64, 0, len(l.rows))
	for missionID := range l.rows {
		previous = append(previous, missionID)
	}
	l.rows = make(map[int64]map[string]models.Submission)
	l.owner = make(map[string]int64, len(subs))
	for _, s := range subs {
		l.insertLocked(s)
	}
	l.mu.Unlock()

	touched := make(map[int64]struct{}, len(cohorts))
	for _, cohortID := range cohorts {
		touched[cohortID] = struct{}{}
	}
	for _, missionID := range previous {
		if cohortID, ok := l.cohortFor(missionID); ok {
			touched[cohortID] = struct{}{}
		}
	}

	for id := range touched {
		l.inv.Invalidate(id)
	}
	return nil
}

// Record ingests submissions. Every one is validated before any is applied.
func (l *SubmissionLedger) Record(subs ...models.Submission) error {
	cohorts := make([]int64, len(subs))
	for i := range subs {
		cohortID, err := l.check(&subs[i])
		if err != nil {
			return err
		}
		cohorts[i] = cohortID
	}

	l.mu.Lock()
	var replaced []int64
	for _, s := range subs {
		if prevMission, ok := l.owner[s.ID]; ok {
			replaced = append(replaced, prevMission)
			l.deleteLocked(s.ID)
		}
		l.insertLocked(s)
	}
	l.mu.Unlock()

	touched := make(map[int64]struct{}, len(cohorts))
	for _, cohortID := range cohorts {
		touched[cohortID] = struct{}{}
	}
	for _, missionID := range replaced {
		if cohortID, ok := l.cohortFor(missionID); ok {
			touched[cohortID] = struct{}{}
		}
	}

	for id := range touched {
		l.inv.Invalidate(id)
	}
	return nil
}

func (l *SubmissionLedger) Remove(submissionID string) error {
	l.mu.Lock()
	missionID, ok := l.owner[submissionID]
	if !ok {
		l.mu.Unlock()
		return &NotFoundError{Kind: "submission", ID: submissionID}
	}
	l.deleteLocked(submissionID)
	l.mu.Unlock()
	if cohortID, ok := l.cohortFor(missionID); ok {
		l.inv.Invalidate(cohortID)
	}
	return nil
}

// RemoveMission drops every submission of a mission and reports how many
// rows went away. Call it before the mission leaves the catalog so the
// owning cohort is invalidated.
func (l *SubmissionLedger) RemoveMission(missionID int64) int {
	l.mu.Lock()
	rows := l.rows[missionID]
	for id := range rows {
		delete(l.owner, id)
	}
	delete(l.rows, missionID)
	l.mu.Unlock()

	if cohortID, ok := l.cohortFor(missionID); ok {
		l.inv.Invalidate(cohortID)
	}
	return len(rows)
}

// ListSubmissions returns every submission ordered by mission, time and id.
func (l *SubmissionLedger) ListSubmissions() []models.Submission {
	l.mu.RLock()
	out := make([]models.Submission, 0, len(l.owner))
	for _, rows := range l.rows {
		for _, s := range rows {
			out = append(out, s)
		}
	}
	l.mu.RUnlock()
	sortSubmissions(out)
	return out
}

func (l *SubmissionLedger) ListSubmissionsFor(missionID int64) ([]models.Submission, error) {
	if _, err := l.missions.Mission(missionID); err != nil {
		return nil, err
	}
	l.mu.RLock()
	out := make([]models.Submission, 0, len(l.rows[missionID]))
	for _, s := range l.rows[missionID] {
		out = append(out, s)
	}
	l.mu.RUnlock()
	sortSubmissions(out)
	return out, nil
}

// CountDistinctStudents is the number of unique students with at least one
// submission for the mission.
func (l *SubmissionLedger) CountDistinctStudents(missionID int64) (int, error) {
	if _, err := l.missions.Mission(missionID); err != nil {
		return 0, err
	}
	return len(l.latestByStudent(missionID)), nil
}

// DistinctStudents returns the sorted unique submitters of the mission.
func (l *SubmissionLedger) DistinctStudents(missionID int64) ([]string, error) {
	if _, err := l.missions.Mission(missionID); err != nil {
		return nil, err
	}
	latest := l.latestByStudent(missionID)
	out := make([]string, 0, len(latest))
	for id := range latest {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// LastSubmittedAt returns the student's most recent submission time for the
// mission and whether there is one at all.
func (l *SubmissionLedger) LastSubmittedAt(missionID int64, studentID string) (int64, bool) {
	at, ok := l.latestByStudent(missionID)[studentID]
	return at, ok
}

// latestByStudent maps each submitter of the mission to their most recent
// submission time.
func (l *SubmissionLedger) latestByStudent(missionID int64) map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int64, len(l.rows[missionID]))
	for _, s := range l.rows[missionID] {
		if at, ok := out[s.StudentID]; !ok || s.SubmittedAt > at {
			out[s.StudentID] = s.SubmittedAt
		}
	}
	return out
}

func (l *SubmissionLedger) check(s *models.Submission) (int64, error) {
	if s.Status == "" {
		s.Status = models.SubmissionSubmitted
	}
	if err := s.Validate(); err != nil {
		return 0, &ValidationError{Kind: "submission", ID: s.ID, Reason: "malformed record", Err: err}
	}
	m, err := l.missions.Mission(s.MissionID)
	if err != nil {
		return 0, &ValidationError{Kind: "submission", ID: s.ID, Reason: "references unknown mission", Err: err}
	}
	return m.CohortID, nil
}

// cohortFor resolves the current owner of a mission. Missions move between
// cohorts through the catalog, so it is never cached here.
func (l *SubmissionLedger) cohortFor(missionID int64) (int64, bool) {
	m, err := l.missions.Mission(missionID)
	if err != nil {
		return 0, false
	}
	return m.CohortID, true
}

func (l *SubmissionLedger) insertLocked(s models.Submission) {
	rows, ok := l.rows[s.MissionID]
	if !ok {
		rows = make(map[string]models.Submission)
		l.rows[s.MissionID] = rows
	}
	rows[s.ID] = s
	l.owner[s.ID] = s.MissionID
}

func (l *SubmissionLedger) deleteLocked(submissionID string) {
	missionID := l.owner[submissionID]
	delete(l.owner, submissionID)
	if rows, ok := l.rows[missionID]; ok {
		delete(rows, submissionID)
		if len(rows) == 0 {
			delete(l.rows, missionID)
		}
	}
}

func sortSubmissions(subs []models.Submission) {
	slices.SortFunc(subs, func(a, b models.Submission) int {
		if n := cmp.Compare(a.MissionID, b.MissionID); n != 0 {
			return n
		}
		if n := cmp.Compare(a.SubmittedAt, b.SubmittedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
