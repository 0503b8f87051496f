package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	policy   *InvalidationPolicy
	registry *CohortRegistry
	catalog  *MissionCatalog
	ledger   *SubmissionLedger
	agg      *Aggregator
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: testNow}
	f.policy = NewInvalidationPolicy()
	f.registry = NewCohortRegistry(f.policy)
	f.catalog = NewMissionCatalog(f.registry, f.policy)
	f.ledger = NewSubmissionLedger(f.catalog, f.policy)
	f.agg = NewAggregator(f.registry, f.catalog, f.ledger, f.policy, WithClock(func() time.Time {
		return f.now
	}))
	return f
}

func (f *fixture) cohort(t *testing.T, id int64, roster int) {
	t.Helper()
	require.NoError(t, f.registry.Upsert(models.Cohort{
		ID:         id,
		Name:       fmt.Sprintf("cohort-%d", id),
		RosterSize: roster,
		Status:     models.CohortActive,
	}))
}

func (f *fixture) mission(t *testing.T, id, cohortID int64, week int, due time.Time) {
	t.Helper()
	require.NoError(t, f.catalog.Add(models.Mission{
		ID:       id,
		CohortID: cohortID,
		Week:     week,
		Title:    fmt.Sprintf("mission %d", id),
		DueAt:    due.Unix(),
		Active:   true,
	}))
}

func (f *fixture) submit(t *testing.T, missionID int64, students ...string) {
	t.Helper()
	for _, s := range students {
		require.NoError(t, f.ledger.Record(models.Submission{
			ID:          fmt.Sprintf("%d-%s-%d", missionID, s, len(f.ledger.ListSubmissions())),
			MissionID:   missionID,
			StudentID:   s,
			SubmittedAt: f.now.Unix(),
			Status:      models.SubmissionSubmitted,
		}))
	}
}

// students returns ids student.01 .. student.NN.
func students(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("student.%02d", i+1)
	}
	return out
}
