package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

func TestSubmissionLedger(t *testing.T) {
	f := newFixture(t)
	f.cohort(t, 1, 3)
	f.mission(t, 100, 1, 1, testNow.Add(time.Hour))
	f.mission(t, 101, 1, 1, testNow.Add(time.Hour))

	t.Run("resubmission counts once", func(t *testing.T) {
		f.submit(t, 100, "amy.a")
		once, err := f.ledger.CountDistinctStudents(100)
		require.NoError(t, err)

		f.submit(t, 100, "amy.a")
		twice, err := f.ledger.CountDistinctStudents(100)
		require.NoError(t, err)

		assert.Equal(t, 1, once)
		assert.Equal(t, once, twice)

		rows, err := f.ledger.ListSubmissionsFor(100)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("same id replaces the row", func(t *testing.T) {
		sub := models.Submission{ID: "fixed", MissionID: 101, StudentID: "bob.b", SubmittedAt: 10}
		require.NoError(t, f.ledger.Record(sub))
		sub.SubmittedAt = 20
		require.NoError(t, f.ledger.Record(sub))

		rows, err := f.ledger.ListSubmissionsFor(101)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(20), rows[0].SubmittedAt)
		assert.Equal(t, models.SubmissionSubmitted, rows[0].Status)

		at, ok := f.ledger.LastSubmittedAt(101, "bob.b")
		assert.True(t, ok)
		assert.Equal(t, int64(20), at)
	})

	t.Run("distinct students are sorted", func(t *testing.T) {
		f.submit(t, 100, "zed.z", "cat.c")
		ids, err := f.ledger.DistinctStudents(100)
		require.NoError(t, err)
		assert.Equal(t, []string{"amy.a", "cat.c", "zed.z"}, ids)
	})

	t.Run("student ids are opaque", func(t *testing.T) {
		f.mission(t, 102, 1, 2, testNow.Add(time.Hour))
		ids := []string{"42", "u-7f3a9c", "student01", "5f0c1a2e-8d7b-4c3f-9a61-2b7e4d9c0f11"}
		f.submit(t, 102, ids...)

		got, err := f.ledger.DistinctStudents(102)
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, got)
	})

	t.Run("unknown mission", func(t *testing.T) {
		err := f.ledger.Record(models.Submission{ID: "x", MissionID: 999, StudentID: "amy.a"})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.ErrorIs(t, err, ErrNotFound, "cause is kept")

		_, err = f.ledger.CountDistinctStudents(999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("malformed submissions are not silently skipped", func(t *testing.T) {
		before := len(f.ledger.ListSubmissions())
		err := f.ledger.Record(
			models.Submission{ID: "ok", MissionID: 100, StudentID: "dan.d"},
			models.Submission{ID: "bad", MissionID: 100, StudentID: ""},
		)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Len(t, f.ledger.ListSubmissions(), before)

		err = f.ledger.Record(models.Submission{ID: "rej", MissionID: 100, StudentID: "dan.d", Status: "rejected"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("remove mission rows", func(t *testing.T) {
		assert.Equal(t, 4, f.ledger.RemoveMission(100))
		n, err := f.ledger.CountDistinctStudents(100)
		require.NoError(t, err)
		assert.Zero(t, n)

		assert.ErrorIs(t, f.ledger.Remove("nope"), ErrNotFound)
		require.NoError(t, f.ledger.Remove("fixed"))
	})
}

func TestSubmissionLedger_InvalidatesCurrentOwner(t *testing.T) {
	f := newFixture(t)
	f.cohort(t, 1, 3)
	f.cohort(t, 2, 3)
	f.mission(t, 100, 1, 1, testNow.Add(time.Hour))
	require.NoError(t, f.ledger.Record(models.Submission{ID: "s1", MissionID: 100, StudentID: "7"}))

	moved, err := f.catalog.Mission(100)
	require.NoError(t, err)
	moved.CohortID = 2
	require.NoError(t, f.catalog.Put(moved))

	before := f.policy.Token(1)
	beforeMoved := f.policy.Token(2)
	require.NoError(t, f.ledger.Remove("s1"))
	assert.Equal(t, before, f.policy.Token(1), "old owner is untouched")
	assert.Greater(t, f.policy.Token(2), beforeMoved)

	require.NoError(t, f.ledger.Record(models.Submission{ID: "s2", MissionID: 100, StudentID: "8"}))
	beforeMoved = f.policy.Token(2)
	assert.Equal(t, 1, f.ledger.RemoveMission(100))
	assert.Greater(t, f.policy.Token(2), beforeMoved)
}
