package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/missionboard/internal/app"
	"github.com/shrimpsizemoose/missionboard/internal/metrics"
	"github.com/shrimpsizemoose/missionboard/internal/models"
	"github.com/shrimpsizemoose/missionboard/internal/progress"
)

type ProgressHandler struct {
	service *app.Service
}

func NewProgressHandler(service *app.Service) *ProgressHandler {
	return &ProgressHandler{
		service: service,
	}
}

// Register mounts every progress route on mux.
func (h *ProgressHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/cohorts", h.instrument(h.HandleCohorts))
	mux.HandleFunc("GET /api/v1/cohorts/{cohort}/summary", h.instrument(h.HandleCohortSummary))
	mux.HandleFunc("GET /api/v1/cohorts/{cohort}/weeks/{week}", h.instrument(h.HandleWeeklyStats))
	mux.HandleFunc("GET /api/v1/cohorts/{cohort}/students/{student}", h.instrument(h.HandleStudentStatus))
	mux.HandleFunc("GET /api/v1/missions/{mission}/non-submitters", h.instrument(h.HandleNonSubmitters))
	mux.HandleFunc("POST /api/v1/missions/{mission}/submissions", h.instrument(h.HandleSubmission))

	mux.HandleFunc("PUT /api/v1/cohorts/{cohort}", h.instrument(h.HandleSaveCohort))
	mux.HandleFunc("PUT /api/v1/cohorts/{cohort}/members/{student}", h.instrument(h.HandleAddMember))
	mux.HandleFunc("PUT /api/v1/missions/{mission}", h.instrument(h.HandleSaveMission))
	mux.HandleFunc("DELETE /api/v1/missions/{mission}", h.instrument(h.HandleDeleteMission))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *ProgressHandler) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			metrics.APIRequestDuration.WithLabelValues(
				r.Pattern,
				r.Method,
				strconv.Itoa(rec.status),
			).Observe(time.Since(start).Seconds())
		}()

		if !h.service.ValidateHeaders(r.Header) {
			http.Error(rec, "these are not the droids you are looking for", http.StatusNotFound)
			return
		}
		next(rec, r)
	}
}

func (h *ProgressHandler) HandleCohorts(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.AllSummaries()
	if err != nil {
		writeError(w, err)
		return
	}
	for _, s := range summaries {
		recordWeeklyRates(s.Weeks)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cohorts": summaries,
	})
}

func (h *ProgressHandler) HandleCohortSummary(w http.ResponseWriter, r *http.Request) {
	cohortID, ok := pathID(w, r, "cohort")
	if !ok {
		return
	}

	summary, err := h.service.CohortSummary(cohortID)
	if err != nil {
		writeError(w, err)
		return
	}
	recordWeeklyRates(summary.Weeks)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
	})
}

func (h *ProgressHandler) HandleWeeklyStats(w http.ResponseWriter, r *http.Request) {
	cohortID, ok := pathID(w, r, "cohort")
	if !ok {
		return
	}
	week, err := strconv.Atoi(r.PathValue("week"))
	if err != nil {
		http.Error(w, "Invalid week", http.StatusBadRequest)
		return
	}

	stat, err := h.service.WeeklyStats(cohortID, week)
	if err != nil {
		writeError(w, err)
		return
	}
	recordWeeklyRates([]models.WeeklyStat{stat})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stat": stat,
	})
}

func (h *ProgressHandler) HandleStudentStatus(w http.ResponseWriter, r *http.Request) {
	cohortID, ok := pathID(w, r, "cohort")
	if !ok {
		return
	}

	status, err := h.service.StudentStatus(cohortID, r.PathValue("student"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
	})
}

func (h *ProgressHandler) HandleNonSubmitters(w http.ResponseWriter, r *http.Request) {
	missionID, ok := pathID(w, r, "mission")
	if !ok {
		return
	}

	students, err := h.service.NonSubmitters(missionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mission_id":     missionID,
		"non_submitters": students,
	})
}

type submissionRequest struct {
	StudentID   string `json:"student_id"`
	SubmittedAt int64  `json:"submitted_at,omitempty"`
}

func (h *ProgressHandler) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	missionID, ok := pathID(w, r, "mission")
	if !ok {
		return
	}

	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var at time.Time
	if req.SubmittedAt > 0 {
		at = time.Unix(req.SubmittedAt, 0)
	}

	sub, err := h.service.RecordSubmission(r.Context(), missionID, req.StudentID, at)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"submission": sub,
	})
}

func (h *ProgressHandler) HandleSaveCohort(w http.ResponseWriter, r *http.Request) {
	cohortID, ok := pathID(w, r, "cohort")
	if !ok {
		return
	}

	var cohort models.Cohort
	if err := json.NewDecoder(r.Body).Decode(&cohort); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cohort.ID = cohortID

	if err := h.service.SaveCohort(r.Context(), cohort); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cohort": cohort,
	})
}

func (h *ProgressHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	cohortID, ok := pathID(w, r, "cohort")
	if !ok {
		return
	}

	student := r.PathValue("student")
	if err := h.service.AddRosterMember(r.Context(), cohortID, student); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProgressHandler) HandleSaveMission(w http.ResponseWriter, r *http.Request) {
	missionID, ok := pathID(w, r, "mission")
	if !ok {
		return
	}

	var mission models.Mission
	if err := json.NewDecoder(r.Body).Decode(&mission); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mission.ID = missionID

	if err := h.service.SaveMission(r.Context(), mission); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mission": mission,
	})
}

func (h *ProgressHandler) HandleDeleteMission(w http.ResponseWriter, r *http.Request) {
	missionID, ok := pathID(w, r, "mission")
	if !ok {
		return
	}

	if err := h.service.DeleteMission(r.Context(), missionID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		logger.Error.Printf("Failed to extract %s from path: %s", name, r.URL.Path)
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func recordWeeklyRates(weeks []models.WeeklyStat) {
	for _, s := range weeks {
		metrics.WeeklyRate.WithLabelValues(
			strconv.FormatInt(s.CohortID, 10),
			strconv.Itoa(s.Week),
		).Set(float64(s.Rate))
	}
}

// writeError maps progress errors onto HTTP statuses. Validation is checked
// first since a validation error may wrap a not-found cause.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, progress.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, progress.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, progress.ErrRosterUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error.Printf("Request failed: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error.Printf("Failed to encode response: %v", err)
	}
}
