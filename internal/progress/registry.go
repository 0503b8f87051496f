package progress

import (
	"cmp"
	"slices"
	"sync"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

// CohortRegistry is the lookup table of cohorts, their authoritative roster
// sizes and, when the roster service supplies them, individual members.
type CohortRegistry struct {
	mu      sync.RWMutex
	cohorts map[int64]models.Cohort
	members map[int64]map[string]struct{}
	inv     Invalidator
}

func NewCohortRegistry(inv Invalidator) *CohortRegistry {
	if inv == nil {
		inv = nopInvalidator{}
	}
	return &CohortRegistry{
		cohorts: make(map[int64]models.Cohort),
		members: make(map[int64]map[string]struct{}),
		inv:     inv,
	}
}

// Load replaces the whole registry, dropping any roster identities supplied
// so far. Nothing is applied if any record is bad.
func (r *CohortRegistry) Load(cohorts []models.Cohort) error {
	next := make(map[int64]models.Cohort, len(cohorts))
	for i := range cohorts {
		c := cohorts[i]
		if err := validateCohort(&c); err != nil {
			return err
		}
		if _, dup := next[c.ID]; dup {
			return &ValidationError{Kind: "cohort", ID: c.ID, Reason: "duplicate id"}
		}
		next[c.ID] = c
	}

	r.mu.Lock()
	touched := make([]int64, 0, len(r.cohorts)+len(next))
	for id := range r.cohorts {
		touched = append(touched, id)
	}
	for id := range next {
		touched = append(touched, id)
	}
	r.cohorts = next
	r.members = make(map[int64]map[string]struct{})
	r.mu.Unlock()

	for _, id := range touched {
		r.inv.Invalidate(id)
	}
	return nil
}

func (r *CohortRegistry) Upsert(c models.Cohort) error {
	if err := validateCohort(&c); err != nil {
		return err
	}
	r.mu.Lock()
	r.cohorts[c.ID] = c
	r.mu.Unlock()
	r.inv.Invalidate(c.ID)
	return nil
}

func (r *CohortRegistry) Remove(cohortID int64) error {
	r.mu.Lock()
	if _, ok := r.cohorts[cohortID]; !ok {
		r.mu.Unlock()
		return cohortNotFound(cohortID)
	}
	delete(r.cohorts, cohortID)
	delete(r.members, cohortID)
	r.mu.Unlock()
	r.inv.Invalidate(cohortID)
	return nil
}

func (r *CohortRegistry) SetRosterSize(cohortID int64, size int) error {
	if size < 0 {
		return &ValidationError{Kind: "cohort", ID: cohortID, Reason: "negative roster size"}
	}
	r.mu.Lock()
	c, ok := r.cohorts[cohortID]
	if !ok {
		r.mu.Unlock()
		return cohortNotFound(cohortID)
	}
	c.RosterSize = size
	r.cohorts[cohortID] = c
	r.mu.Unlock()
	r.inv.Invalidate(cohortID)
	return nil
}

// SetMembers supplies the individual roster of a cohort. An empty, non-nil
// slice is a known empty roster; it is different from never calling this.
func (r *CohortRegistry) SetMembers(cohortID int64, studentIDs []string) error {
	set := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		m := models.RosterMember{CohortID: cohortID, StudentID: id}
		if err := m.Validate(); err != nil {
			return &ValidationError{Kind: "roster member", ID: id, Reason: "malformed record", Err: err}
		}
		set[id] = struct{}{}
	}

	r.mu.Lock()
	if _, ok := r.cohorts[cohortID]; !ok {
		r.mu.Unlock()
		return &ValidationError{Kind: "roster", ID: cohortID, Reason: "references unknown cohort"}
	}
	r.members[cohortID] = set
	r.mu.Unlock()
	r.inv.Invalidate(cohortID)
	return nil
}

// AddMember enrolls one student, making the cohort's identities available
// if they were not already.
func (r *CohortRegistry) AddMember(cohortID int64, studentID string) error {
	m := models.RosterMember{CohortID: cohortID, StudentID: studentID}
	if err := m.Validate(); err != nil {
		return &ValidationError{Kind: "roster member", ID: studentID, Reason: "malformed record", Err: err}
	}

	r.mu.Lock()
	if _, ok := r.cohorts[cohortID]; !ok {
		r.mu.Unlock()
		return &ValidationError{Kind: "roster", ID: cohortID, Reason: "references unknown cohort"}
	}
	set, ok := r.members[cohortID]
	if !ok {
		set = make(map[string]struct{})
		r.members[cohortID] = set
	}
	set[studentID] = struct{}{}
	r.mu.Unlock()
	r.inv.Invalidate(cohortID)
	return nil
}

func (r *CohortRegistry) Has(cohortID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cohorts[cohortID]
	return ok
}

func (r *CohortRegistry) Cohort(cohortID int64) (models.Cohort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cohorts[cohortID]
	if !ok {
		return models.Cohort{}, cohortNotFound(cohortID)
	}
	return c, nil
}

func (r *CohortRegistry) RosterSize(cohortID int64) (int, error) {
	c, err := r.Cohort(cohortID)
	if err != nil {
		return 0, err
	}
	return c.RosterSize, nil
}

func (r *CohortRegistry) Status(cohortID int64) (models.CohortStatus, error) {
	c, err := r.Cohort(cohortID)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

// ListCohorts returns every cohort ordered by id.
func (r *CohortRegistry) ListCohorts() []models.Cohort {
	r.mu.RLock()
	out := make([]models.Cohort, 0, len(r.cohorts))
	for _, c := range r.cohorts {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Cohort) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Members returns the sorted student ids enrolled in the cohort.
func (r *CohortRegistry) Members(cohortID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.cohorts[cohortID]; !ok {
		return nil, cohortNotFound(cohortID)
	}
	set, ok := r.members[cohortID]
	if !ok {
		return nil, &RosterUnavailableError{CohortID: cohortID}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func validateCohort(c *models.Cohort) error {
	if err := c.Validate(); err != nil {
		return &ValidationError{Kind: "cohort", ID: c.ID, Reason: "malformed record", Err: err}
	}
	return nil
}
