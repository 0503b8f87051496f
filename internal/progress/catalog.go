package progress

import (
	"cmp"
	"slices"
	"sync"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

// CohortLookup is the part of the registry the catalog validates against.
type CohortLookup interface {
	Has(cohortID int64) bool
}

// MissionCatalog is the normalized set of mission definitions. Cohort
// references are checked when missions are ingested, never at query time.
type MissionCatalog struct {
	mu       sync.RWMutex
	cohorts  CohortLookup
	missions map[int64]models.Mission
	byCohort map[int64]map[int64]struct{}
	inv      Invalidator
}

func NewMissionCatalog(cohorts CohortLookup, inv Invalidator) *MissionCatalog {
	if inv == nil {
		inv = nopInvalidator{}
	}
	return &MissionCatalog{
		cohorts:  cohorts,
		missions: make(map[int64]models.Mission),
		byCohort: make(map[int64]map[int64]struct{}),
		inv:      inv,
	}
}

// Load replaces the catalog. Nothing is applied if any mission is invalid.
func (c *MissionCatalog) Load(missions []models.Mission) error {
	next := make(map[int64]models.Mission, len(missions))
	for i := range missions {
		m := missions[i]
		if err := c.check(&m); err != nil {
			return err
		}
		if _, dup := next[m.ID]; dup {
			return &ValidationError{Kind: "mission", ID: m.ID, Reason: "duplicate id"}
		}
		next[m.ID] = m
	}

	c.mu.Lock()
	touched := make(map[int64]struct{})
	for id := range c.byCohort {
		touched[id] = struct{}{}
	}
	c.missions = make(map[int64]models.Mission, len(next))
	c.byCohort = make(map[int64]map[int64]struct{})
	for _, m := range next {
		c.insertLocked(m)
		touched[m.CohortID] = struct{}{}
	}
	c.mu.Unlock()

	for id := range touched {
		c.inv.Invalidate(id)
	}
	return nil
}

// Add ingests new missions. A repeated id is rejected.
func (c *MissionCatalog) Add(missions ...models.Mission) error {
	for i := range missions {
		if err := c.check(&missions[i]); err != nil {
			return err
		}
	}

	c.mu.Lock()
	seen := make(map[int64]struct{}, len(missions))
	for _, m := range missions {
		_, exists := c.missions[m.ID]
		_, repeated := seen[m.ID]
		if exists || repeated {
			c.mu.Unlock()
			return &ValidationError{Kind: "mission", ID: m.ID, Reason: "duplicate id"}
		}
		seen[m.ID] = struct{}{}
	}
	for _, m := range missions {
		c.insertLocked(m)
	}
	c.mu.Unlock()

	for _, m := range missions {
		c.inv.Invalidate(m.CohortID)
	}
	return nil
}

// Put inserts or replaces a mission definition.
func (c *MissionCatalog) Put(m models.Mission) error {
	if err := c.check(&m); err != nil {
		return err
	}

	c.mu.Lock()
	prev, existed := c.missions[m.ID]
	if existed {
		c.deleteLocked(prev)
	}
	c.insertLocked(m)
	c.mu.Unlock()

	if existed && prev.CohortID != m.CohortID {
		c.inv.Invalidate(prev.CohortID)
	}
	c.inv.Invalidate(m.CohortID)
	return nil
}

func (c *MissionCatalog) Remove(missionID int64) error {
	c.mu.Lock()
	m, ok := c.missions[missionID]
	if !ok {
		c.mu.Unlock()
		return missionNotFound(missionID)
	}
	c.deleteLocked(m)
	c.mu.Unlock()
	c.inv.Invalidate(m.CohortID)
	return nil
}

func (c *MissionCatalog) Mission(missionID int64) (models.Mission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.missions[missionID]
	if !ok {
		return models.Mission{}, missionNotFound(missionID)
	}
	return m, nil
}

// ListMissions returns all missions ordered by cohort, week and id.
func (c *MissionCatalog) ListMissions() []models.Mission {
	c.mu.RLock()
	out := make([]models.Mission, 0, len(c.missions))
	for _, m := range c.missions {
		out = append(out, m)
	}
	c.mu.RUnlock()
	sortMissions(out)
	return out
}

// ListMissionsFor returns the cohort's missions ordered by week and id.
func (c *MissionCatalog) ListMissionsFor(cohortID int64) ([]models.Mission, error) {
	if !c.cohorts.Has(cohortID) {
		return nil, cohortNotFound(cohortID)
	}
	return c.collect(cohortID, func(models.Mission) bool { return true }), nil
}

// MissionsFor returns the missions of one cohort week. An unknown cohort or
// an empty week both yield an empty slice.
func (c *MissionCatalog) MissionsFor(cohortID int64, week int) []models.Mission {
	return c.collect(cohortID, func(m models.Mission) bool { return m.Week == week })
}

// WeeksFor returns the sorted distinct weeks that have at least one mission.
func (c *MissionCatalog) WeeksFor(cohortID int64) ([]int, error) {
	if !c.cohorts.Has(cohortID) {
		return nil, cohortNotFound(cohortID)
	}
	c.mu.RLock()
	seen := make(map[int]struct{})
	for id := range c.byCohort[cohortID] {
		seen[c.missions[id].Week] = struct{}{}
	}
	c.mu.RUnlock()

	weeks := make([]int, 0, len(seen))
	for w := range seen {
		weeks = append(weeks, w)
	}
	slices.Sort(weeks)
	return weeks, nil
}

func (c *MissionCatalog) collect(cohortID int64, keep func(models.Mission) bool) []models.Mission {
	c.mu.RLock()
	out := make([]models.Mission, 0, len(c.byCohort[cohortID]))
	for id := range c.byCohort[cohortID] {
		if m := c.missions[id]; keep(m) {
			out = append(out, m)
		}
	}
	c.mu.RUnlock()
	sortMissions(out)
	return out
}

func (c *MissionCatalog) check(m *models.Mission) error {
	if err := m.Validate(); err != nil {
		return &ValidationError{Kind: "mission", ID: m.ID, Reason: "malformed record", Err: err}
	}
	if !c.cohorts.Has(m.CohortID) {
		return &ValidationError{Kind: "mission", ID: m.ID, Reason: "references unknown cohort"}
	}
	return nil
}

func (c *MissionCatalog) insertLocked(m models.Mission) {
	c.missions[m.ID] = m
	ids, ok := c.byCohort[m.CohortID]
	if !ok {
		ids = make(map[int64]struct{})
		c.byCohort[m.CohortID] = ids
	}
	ids[m.ID] = struct{}{}
}

func (c *MissionCatalog) deleteLocked(m models.Mission) {
	delete(c.missions, m.ID)
	if ids, ok := c.byCohort[m.CohortID]; ok {
		delete(ids, m.ID)
		if len(ids) == 0 {
			delete(c.byCohort, m.CohortID)
		}
	}
}

func sortMissions(missions []models.Mission) {
	slices.SortFunc(missions, func(a, b models.Mission) int {
		if n := cmp.Compare(a.CohortID, b.CohortID); n != 0 {
			return n
		}
		if n := cmp.Compare(a.Week, b.Week); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
