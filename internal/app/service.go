package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/missionboard/internal/metrics"
	"github.com/shrimpsizemoose/missionboard/internal/models"
	"github.com/shrimpsizemoose/missionboard/internal/progress"
	"github.com/shrimpsizemoose/missionboard/internal/store"
)

// Service keeps an in-memory snapshot of the persisted records and serves
// progress views from it. Writes go to the store first, then to the
// snapshot.
type Service struct {
	Config      *Config
	Store       store.ProgressStore
	Broadcaster *Broadcaster

	Policy     *progress.InvalidationPolicy
	Registry   *progress.CohortRegistry
	Catalog    *progress.MissionCatalog
	Ledger     *progress.SubmissionLedger
	Aggregator *progress.Aggregator

	// Reload swaps the snapshot under the write lock; everything else,
	// including single-record writes, holds the read lock
	mu  sync.RWMutex
	now func() time.Time
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	broadcaster, err := NewBroadcaster(config)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init broadcaster: %w", err)
	}

	s := New(config, store, broadcaster, nil)
	if err := s.Reload(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return s, nil
}

// New wires a service around an already opened store. The snapshot is empty
// until Reload is called. A nil clock means time.Now.
func New(config *Config, st store.ProgressStore, broadcaster *Broadcaster, now func() time.Time) *Service {
	if broadcaster == nil {
		broadcaster = &Broadcaster{}
	}
	if now == nil {
		now = time.Now
	}
	s := &Service{
		Config:      config,
		Store:       st,
		Broadcaster: broadcaster,
		Policy:      progress.NewInvalidationPolicy(),
		now:         now,
	}
	s.install(s.newSnapshot())
	return s
}

type snapshot struct {
	registry   *progress.CohortRegistry
	catalog    *progress.MissionCatalog
	ledger     *progress.SubmissionLedger
	aggregator *progress.Aggregator
}

func (s *Service) newSnapshot() *snapshot {
	snap := &snapshot{registry: progress.NewCohortRegistry(s.Policy)}
	snap.catalog = progress.NewMissionCatalog(snap.registry, s.Policy)
	snap.ledger = progress.NewSubmissionLedger(snap.catalog, s.Policy)
	snap.aggregator = progress.NewAggregator(snap.registry, snap.catalog, snap.ledger, s.Policy, progress.WithClock(s.now))
	return snap
}

func (s *Service) install(snap *snapshot) {
	s.Registry = snap.registry
	s.Catalog = snap.catalog
	s.Ledger = snap.ledger
	s.Aggregator = snap.aggregator
}

// Reload replaces the snapshot with the current content of the store. The
// records are loaded into a fresh snapshot first; on any error the served
// snapshot is left as it was.
func (s *Service) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cohorts, err := s.Store.ListCohorts()
	if err != nil {
		return err
	}
	members, err := s.Store.ListRosterMembers()
	if err != nil {
		return err
	}
	missions, err := s.Store.ListMissions()
	if err != nil {
		return err
	}
	submissions, err := s.Store.ListSubmissions()
	if err != nil {
		return err
	}

	next := s.newSnapshot()
	if err := next.registry.Load(cohorts); err != nil {
		return fmt.Errorf("failed to load cohorts: %w", err)
	}
	for cohortID, ids := range groupMembers(members) {
		if err := next.registry.SetMembers(cohortID, ids); err != nil {
			return fmt.Errorf("failed to load roster of cohort %d: %w", cohortID, err)
		}
	}
	if err := next.catalog.Load(missions); err != nil {
		return fmt.Errorf("failed to load missions: %w", err)
	}
	if err := next.ledger.Load(submissions); err != nil {
		return fmt.Errorf("failed to load submissions: %w", err)
	}

	s.install(next)
	s.Policy.InvalidateAll()

	logger.Info.Printf("Loaded snapshot: %d cohorts, %d roster members, %d missions, %d submissions",
		len(cohorts), len(members), len(missions), len(submissions))
	return nil
}

func groupMembers(members []models.RosterMember) map[int64][]string {
	out := make(map[int64][]string)
	for _, m := range members {
		out[m.CohortID] = append(out[m.CohortID], m.StudentID)
	}
	return out
}

// StartSync reloads the snapshot whenever a peer instance reports a change.
// It returns immediately when no broadcaster is configured.
func (s *Service) StartSync(ctx context.Context) {
	if !s.Broadcaster.Enabled() {
		return
	}
	go func() {
		err := s.Broadcaster.Listen(ctx, func(cohortID int64) {
			if err := s.Reload(); err != nil {
				logger.Error.Printf("Failed to reload after change in cohort %d: %v", cohortID, err)
			}
		})
		if err != nil {
			logger.Error.Printf("Change listener stopped: %v", err)
		}
	}()
}

func (s *Service) ValidateHeaders(headers map[string][]string) bool {
	for _, required := range s.Config.API.RequiredHeaders {
		value := headers[http.CanonicalHeaderKey(required.Name)]
		if len(value) == 0 || !strings.EqualFold(value[0], required.Value) {
			return false
		}
	}
	return true
}

func (s *Service) Cohorts() []models.Cohort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Registry.ListCohorts()
}

func (s *Service) Missions() []models.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Catalog.ListMissions()
}

func (s *Service) WeeklyStats(cohortID int64, week int) (models.WeeklyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggregator.ComputeWeeklyStats(cohortID, week)
}

func (s *Service) CohortSummary(cohortID int64) (models.CohortSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggregator.ComputeCohortSummary(cohortID)
}

func (s *Service) AllSummaries() ([]models.CohortSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggregator.ComputeAllSummaries()
}

func (s *Service) NonSubmitters(missionID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggregator.ListNonSubmitters(missionID)
}

func (s *Service) StudentStatus(cohortID int64, studentID string) (models.StudentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Aggregator.ComputeStudentStatus(cohortID, studentID)
}

// RecordSubmission persists a new submission and adds it to the snapshot.
// A zero submittedAt means now.
func (s *Service) RecordSubmission(ctx context.Context, missionID int64, studentID string, submittedAt time.Time) (models.Submission, error) {
	if submittedAt.IsZero() {
		submittedAt = s.now()
	}
	sub := models.Submission{
		ID:          uuid.NewString(),
		MissionID:   missionID,
		StudentID:   studentID,
		SubmittedAt: submittedAt.Unix(),
		Status:      models.SubmissionSubmitted,
	}
	if err := sub.Validate(); err != nil {
		return models.Submission{}, &progress.ValidationError{Kind: "submission", ID: sub.ID, Reason: "malformed record", Err: err}
	}

	s.mu.RLock()
	mission, err := s.Catalog.Mission(missionID)
	if err != nil {
		s.mu.RUnlock()
		return models.Submission{}, err
	}
	if err := s.Store.CreateSubmission(&sub); err != nil {
		s.mu.RUnlock()
		return models.Submission{}, err
	}
	err = s.Ledger.Record(sub)
	s.mu.RUnlock()
	if err != nil {
		return models.Submission{}, err
	}

	metrics.SubmissionsTotal.WithLabelValues(strconv.FormatInt(mission.CohortID, 10)).Inc()
	logger.Debug.Printf("Recorded submission %s: mission=%d student=%s", sub.ID, missionID, studentID)
	s.publish(ctx, mission.CohortID)
	return sub, nil
}

func (s *Service) SaveCohort(ctx context.Context, cohort models.Cohort) error {
	if err := cohort.Validate(); err != nil {
		return &progress.ValidationError{Kind: "cohort", ID: cohort.ID, Reason: "malformed record", Err: err}
	}

	s.mu.RLock()
	if err := s.Store.SaveCohort(&cohort); err != nil {
		s.mu.RUnlock()
		return err
	}
	err := s.Registry.Upsert(cohort)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	logger.Info.Printf("Saved cohort %d (%s): roster=%d status=%s", cohort.ID, cohort.Name, cohort.RosterSize, cohort.Status)
	s.publish(ctx, cohort.ID)
	return nil
}

func (s *Service) SaveMission(ctx context.Context, mission models.Mission) error {
	if err := mission.Validate(); err != nil {
		return &progress.ValidationError{Kind: "mission", ID: mission.ID, Reason: "malformed record", Err: err}
	}

	s.mu.RLock()
	if !s.Registry.Has(mission.CohortID) {
		s.mu.RUnlock()
		return &progress.ValidationError{Kind: "mission", ID: mission.ID, Reason: "references unknown cohort"}
	}
	if err := s.Store.SaveMission(&mission); err != nil {
		s.mu.RUnlock()
		return err
	}
	err := s.Catalog.Put(mission)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	logger.Info.Printf("Saved mission %d: cohort=%d week=%d %q", mission.ID, mission.CohortID, mission.Week, mission.Title)
	s.publish(ctx, mission.CohortID)
	return nil
}

// DeleteMission removes a mission together with its submissions.
func (s *Service) DeleteMission(ctx context.Context, missionID int64) error {
	s.mu.RLock()
	mission, err := s.Store.GetMission(missionID)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	if mission == nil {
		s.mu.RUnlock()
		return &progress.NotFoundError{Kind: "mission", ID: missionID}
	}
	if err := s.Store.DeleteMission(missionID); err != nil {
		s.mu.RUnlock()
		return err
	}
	dropped := s.Ledger.RemoveMission(missionID)
	err = s.Catalog.Remove(missionID)
	s.mu.RUnlock()
	if err != nil && !errors.Is(err, progress.ErrNotFound) {
		return err
	}

	logger.Info.Printf("Deleted mission %d with %d submissions", missionID, dropped)
	s.publish(ctx, mission.CohortID)
	return nil
}

func (s *Service) AddRosterMember(ctx context.Context, cohortID int64, studentID string) error {
	member := models.RosterMember{CohortID: cohortID, StudentID: studentID}
	if err := member.Validate(); err != nil {
		return &progress.ValidationError{Kind: "roster member", ID: studentID, Reason: "malformed record", Err: err}
	}

	s.mu.RLock()
	cohort, err := s.Store.GetCohort(cohortID)
	if err != nil {
		s.mu.RUnlock()
		return err
	}
	if cohort == nil {
		s.mu.RUnlock()
		return &progress.NotFoundError{Kind: "cohort", ID: cohortID}
	}
	if err := s.Store.AddRosterMember(&member); err != nil {
		s.mu.RUnlock()
		return err
	}
	err = s.Registry.AddMember(cohortID, studentID)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	s.publish(ctx, cohortID)
	return nil
}

func (s *Service) publish(ctx context.Context, cohortID int64) {
	if err := s.Broadcaster.Publish(ctx, cohortID); err != nil {
		logger.Error.Printf("Failed to broadcast change: %v", err)
	}
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Broadcaster.Close(); err != nil {
		errs = append(errs, fmt.Errorf("broadcaster: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
