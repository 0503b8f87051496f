package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/missionboard/internal/models"
	"github.com/shrimpsizemoose/missionboard/internal/progress"
	"github.com/shrimpsizemoose/missionboard/internal/store"
)

var serviceNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func setupService(t *testing.T) *Service {
	t.Helper()
	st, err := NewStore(":memory:", "../../migrations")
	require.NoError(t, err, "Failed to create store")

	config := &Config{}
	config.Server.Port = ":0"
	s := New(config, st, nil, func() time.Time { return serviceNow })
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	ctx := context.Background()
	require.NoError(t, s.SaveCohort(ctx, models.Cohort{ID: 1, Name: "spring-24", RosterSize: 3, Status: models.CohortActive}))
	require.NoError(t, s.SaveMission(ctx, models.Mission{
		ID: 10, CohortID: 1, Week: 1, Title: "hello world",
		DueAt: serviceNow.Add(-24 * time.Hour).Unix(), Active: true,
	}))
	require.NoError(t, s.SaveMission(ctx, models.Mission{
		ID: 11, CohortID: 1, Week: 2, Title: "pipelines",
		DueAt: serviceNow.Add(24 * time.Hour).Unix(), Active: true,
	}))
	return s
}

func TestServiceRecordSubmission(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	sub, err := s.RecordSubmission(ctx, 10, "ada.lovelace", time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, serviceNow.Unix(), sub.SubmittedAt)
	assert.Equal(t, models.SubmissionSubmitted, sub.Status)

	_, err = s.RecordSubmission(ctx, 10, "ada.lovelace", serviceNow.Add(time.Hour))
	require.NoError(t, err)
	_, err = s.RecordSubmission(ctx, 10, "alan.turing", time.Time{})
	require.NoError(t, err)

	stat, err := s.WeeklyStats(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stat.Submissions)
	assert.Equal(t, 67, stat.Rate)

	stored, err := s.Store.ListSubmissions()
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	t.Run("unknown mission", func(t *testing.T) {
		_, err := s.RecordSubmission(ctx, 99, "ada.lovelace", time.Time{})
		assert.ErrorIs(t, err, progress.ErrNotFound)
	})

	t.Run("any student id shape is accepted", func(t *testing.T) {
		for _, id := range []string{"42", "5f0c1a2e-8d7b-4c3f-9a61-2b7e4d9c0f11"} {
			_, err := s.RecordSubmission(ctx, 11, id, time.Time{})
			require.NoError(t, err, id)
		}
		stat, err := s.WeeklyStats(1, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, stat.Submissions)
	})

	t.Run("empty or oversized student id", func(t *testing.T) {
		_, err := s.RecordSubmission(ctx, 10, "", time.Time{})
		assert.ErrorIs(t, err, progress.ErrValidation)
		_, err = s.RecordSubmission(ctx, 10, strings.Repeat("x", 65), time.Time{})
		assert.ErrorIs(t, err, progress.ErrValidation)
	})
}

func TestServiceReload(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	require.NoError(t, s.AddRosterMember(ctx, 1, "ada.lovelace"))
	require.NoError(t, s.AddRosterMember(ctx, 1, "alan.turing"))
	_, err := s.RecordSubmission(ctx, 10, "ada.lovelace", time.Time{})
	require.NoError(t, err)

	// a second instance over the same store sees everything after Reload
	peer := New(s.Config, s.Store, nil, func() time.Time { return serviceNow })
	_, err = peer.CohortSummary(1)
	assert.ErrorIs(t, err, progress.ErrNotFound)

	require.NoError(t, peer.Reload())
	summary, err := peer.CohortSummary(1)
	require.NoError(t, err)
	assert.Equal(t, "spring-24", summary.Name)
	assert.Equal(t, 2, summary.TotalMissions)
	assert.Equal(t, 1, summary.ActiveStudents)

	missing, err := peer.NonSubmitters(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alan.turing"}, missing)

	// reload drops what the store no longer has
	require.NoError(t, s.Store.DeleteMission(11))
	require.NoError(t, peer.Reload())
	summary, err = peer.CohortSummary(1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalMissions)
}

type staleMissionsStore struct {
	store.ProgressStore
	missions []models.Mission
}

func (s *staleMissionsStore) ListMissions() ([]models.Mission, error) {
	return s.missions, nil
}

func TestServiceReloadIsAllOrNothing(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	_, err := s.RecordSubmission(ctx, 10, "ada.lovelace", time.Time{})
	require.NoError(t, err)
	before, err := s.CohortSummary(1)
	require.NoError(t, err)
	require.Equal(t, 33, before.Weeks[0].Rate)

	// the cohort changes in the store, but the mission set read alongside it
	// references a cohort that does not exist
	require.NoError(t, s.Store.SaveCohort(&models.Cohort{ID: 1, Name: "spring-24", RosterSize: 30, Status: models.CohortActive}))
	backing := s.Store
	s.Store = &staleMissionsStore{ProgressStore: backing, missions: []models.Mission{
		{ID: 10, CohortID: 1, Week: 1, Title: "hello world", Active: true},
		{ID: 12, CohortID: 9, Week: 1, Title: "orphan", Active: true},
	}}

	err = s.Reload()
	assert.ErrorIs(t, err, progress.ErrValidation)

	size, err := s.Registry.RosterSize(1)
	require.NoError(t, err)
	assert.Equal(t, 3, size, "registry keeps the served snapshot")
	assert.Len(t, s.Catalog.ListMissions(), 2)
	after, err := s.CohortSummary(1)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	s.Store = backing
	require.NoError(t, s.Reload())
	after, err = s.CohortSummary(1)
	require.NoError(t, err)
	assert.Equal(t, 30, after.RosterSize)
	assert.Equal(t, 3, after.Weeks[0].Rate)
}

func TestServiceAdmin(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	t.Run("roster change invalidates summary", func(t *testing.T) {
		_, err := s.RecordSubmission(ctx, 10, "ada.lovelace", time.Time{})
		require.NoError(t, err)

		before, err := s.CohortSummary(1)
		require.NoError(t, err)
		assert.Equal(t, 33, before.Weeks[0].Rate)

		require.NoError(t, s.SaveCohort(ctx, models.Cohort{ID: 1, Name: "spring-24", RosterSize: 1, Status: models.CohortActive}))
		after, err := s.CohortSummary(1)
		require.NoError(t, err)
		assert.Equal(t, 100, after.Weeks[0].Rate)
		assert.Equal(t, 1, after.CompletedMissions)
	})

	t.Run("mission for unknown cohort", func(t *testing.T) {
		err := s.SaveMission(ctx, models.Mission{ID: 50, CohortID: 7, Week: 1, Title: "x", Active: true})
		assert.ErrorIs(t, err, progress.ErrValidation)
	})

	t.Run("roster member for unknown cohort", func(t *testing.T) {
		err := s.AddRosterMember(ctx, 7, "ada.lovelace")
		var nf *progress.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "cohort", nf.Kind)
	})

	t.Run("non-submitters need roster identities", func(t *testing.T) {
		_, err := s.NonSubmitters(10)
		assert.ErrorIs(t, err, progress.ErrRosterUnavailable)
	})

	t.Run("delete mission drops its submissions", func(t *testing.T) {
		require.NoError(t, s.DeleteMission(ctx, 10))
		_, err := s.Ledger.ListSubmissionsFor(10)
		assert.ErrorIs(t, err, progress.ErrNotFound)

		stored, err := s.Store.ListSubmissions()
		require.NoError(t, err)
		assert.Empty(t, stored)

		err = s.DeleteMission(ctx, 10)
		assert.ErrorIs(t, err, progress.ErrNotFound)
	})
}

func TestValidateHeaders(t *testing.T) {
	s := &Service{Config: &Config{}}
	s.Config.API.RequiredHeaders = []HeaderConfig{{Name: "x-board-client", Value: "dashboard"}}

	assert.True(t, s.ValidateHeaders(map[string][]string{"X-Board-Client": {"Dashboard"}}))
	assert.False(t, s.ValidateHeaders(map[string][]string{"X-Board-Client": {"curl"}}))
	assert.False(t, s.ValidateHeaders(map[string][]string{}))
}
