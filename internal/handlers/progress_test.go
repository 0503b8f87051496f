package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/missionboard/internal/app"
	"github.com/shrimpsizemoose/missionboard/internal/models"
)

var handlerNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := app.NewStore(":memory:", "../../migrations")
	require.NoError(t, err)

	config := &app.Config{}
	config.Server.Port = ":0"
	config.API.RequiredHeaders = []app.HeaderConfig{{Name: "X-Board-Client", Value: "dashboard"}}

	service := app.New(config, st, nil, func() time.Time { return handlerNow })
	mux := http.NewServeMux()
	NewProgressHandler(service).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		service.Close()
	})
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Board-Client", "dashboard")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func seed(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, _ := call(t, srv, http.MethodPut, "/api/v1/cohorts/1",
		`{"name": "spring-24", "roster_size": 15, "status": "active"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	due := handlerNow.Add(-time.Hour).Unix()
	resp, _ = call(t, srv, http.MethodPut, "/api/v1/missions/10",
		`{"cohort_id": 1, "week": 1, "title": "hello world", "active": true, "due_at": `+strconv.FormatInt(due, 10)+`}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for i := 1; i <= 15; i++ {
		student := fmt.Sprintf("student.%02d", i)
		resp, _ = call(t, srv, http.MethodPut, "/api/v1/cohorts/1/members/"+student, "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		if i <= 13 {
			resp, _ = call(t, srv, http.MethodPost, "/api/v1/missions/10/submissions",
				`{"student_id": "`+student+`"}`)
			require.Equal(t, http.StatusCreated, resp.StatusCode)
		}
	}
}

func TestProgressRoutes(t *testing.T) {
	srv := setupServer(t)
	seed(t, srv)

	t.Run("weekly stats", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodGet, "/api/v1/cohorts/1/weeks/1", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stat models.WeeklyStat
		require.NoError(t, json.Unmarshal(body["stat"], &stat))
		assert.Equal(t, 1, stat.TotalMissions)
		assert.Equal(t, 13, stat.Submissions)
		assert.Equal(t, 87, stat.Rate)
	})

	t.Run("non-submitters", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodGet, "/api/v1/missions/10/non-submitters", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var students []string
		require.NoError(t, json.Unmarshal(body["non_submitters"], &students))
		assert.Equal(t, []string{"student.14", "student.15"}, students)
	})

	t.Run("summary", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodGet, "/api/v1/cohorts/1/summary", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summary models.CohortSummary
		require.NoError(t, json.Unmarshal(body["summary"], &summary))
		assert.Equal(t, 87, summary.OverallRate)
		assert.Equal(t, 13, summary.ActiveStudents)
		assert.Equal(t, 0, summary.CompletedMissions)
	})

	t.Run("all cohorts", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodGet, "/api/v1/cohorts", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summaries []models.CohortSummary
		require.NoError(t, json.Unmarshal(body["cohorts"], &summaries))
		require.Len(t, summaries, 1)
		assert.Equal(t, "spring-24", summaries[0].Name)
	})

	t.Run("student status", func(t *testing.T) {
		resp, body := call(t, srv, http.MethodGet, "/api/v1/cohorts/1/students/student.14", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status models.StudentStatus
		require.NoError(t, json.Unmarshal(body["status"], &status))
		assert.Equal(t, 0, status.SubmittedMissions)
		assert.Equal(t, []int64{10}, status.MissingMissions)
	})
}

func TestProgressErrors(t *testing.T) {
	srv := setupServer(t)
	seed(t, srv)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown cohort", http.MethodGet, "/api/v1/cohorts/9/summary", "", http.StatusNotFound},
		{"unknown mission", http.MethodGet, "/api/v1/missions/99/non-submitters", "", http.StatusNotFound},
		{"week zero", http.MethodGet, "/api/v1/cohorts/1/weeks/0", "", http.StatusUnprocessableEntity},
		{"bad week", http.MethodGet, "/api/v1/cohorts/1/weeks/first", "", http.StatusBadRequest},
		{"bad cohort id", http.MethodGet, "/api/v1/cohorts/abc/summary", "", http.StatusBadRequest},
		{"stranger", http.MethodGet, "/api/v1/cohorts/1/students/eve.hacker", "", http.StatusNotFound},
		{"submission for unknown mission", http.MethodPost, "/api/v1/missions/99/submissions", `{"student_id": "student.01"}`, http.StatusNotFound},
		{"empty student", http.MethodPost, "/api/v1/missions/10/submissions", `{"student_id": ""}`, http.StatusUnprocessableEntity},
		{"broken body", http.MethodPost, "/api/v1/missions/10/submissions", `{`, http.StatusBadRequest},
		{"mission in unknown cohort", http.MethodPut, "/api/v1/missions/11", `{"cohort_id": 9, "week": 1, "title": "x"}`, http.StatusUnprocessableEntity},
		{"delete unknown mission", http.MethodDelete, "/api/v1/missions/99", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := call(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	t.Run("roster unavailable", func(t *testing.T) {
		resp, _ := call(t, srv, http.MethodPut, "/api/v1/cohorts/2",
			`{"name": "autumn-24", "roster_size": 4, "status": "upcoming"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = call(t, srv, http.MethodPut, "/api/v1/missions/20",
			`{"cohort_id": 2, "week": 1, "title": "intro", "active": true}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = call(t, srv, http.MethodGet, "/api/v1/missions/20/non-submitters", "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("missing headers", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/api/v1/cohorts")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
