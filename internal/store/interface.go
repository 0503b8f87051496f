package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/missionboard/internal/models"
)

type ProgressStore interface {
	Close() error
	ApplyMigrations(dir string) error

	ListCohorts() ([]models.Cohort, error)
	GetCohort(id int64) (*models.Cohort, error)
	SaveCohort(cohort *models.Cohort) error

	ListRosterMembers() ([]models.RosterMember, error)
	AddRosterMember(member *models.RosterMember) error

	ListMissions() ([]models.Mission, error)
	GetMission(id int64) (*models.Mission, error)
	SaveMission(mission *models.Mission) error
	DeleteMission(id int64) error

	ListSubmissions() ([]models.Submission, error)
	CreateSubmission(submission *models.Submission) error
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory in file name
// order, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		logger.Debug.Printf("Applying migration: %s", file.Name())
		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (s *BaseStore) ListCohorts() ([]models.Cohort, error) {
	var cohorts []models.Cohort
	err := s.DB.Select(&cohorts, `
		SELECT id, name, roster_size, status
		FROM cohorts
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cohorts: %w", err)
	}
	return cohorts, nil
}

func (s *BaseStore) GetCohort(id int64) (*models.Cohort, error) {
	var cohort models.Cohort
	query := s.Converter(`
		SELECT id, name, roster_size, status
		FROM cohorts
		WHERE id = ?
	`)
	err := s.DB.Get(&cohort, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cohort: %w", err)
	}
	return &cohort, nil
}

func (s *BaseStore) SaveCohort(cohort *models.Cohort) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO cohorts (id, name, roster_size, status)
		VALUES (:id, :name, :roster_size, :status)
		ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		roster_size = excluded.roster_size,
		status = excluded.status
	`, cohort)
	if err != nil {
		return fmt.Errorf("failed to save cohort: %w", err)
	}
	return nil
}

func (s *BaseStore) ListRosterMembers() ([]models.RosterMember, error) {
	var members []models.RosterMember
	err := s.DB.Select(&members, `
		SELECT cohort_id, student_id
		FROM roster_members
		ORDER BY cohort_id, student_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster members: %w", err)
	}
	return members, nil
}

func (s *BaseStore) AddRosterMember(member *models.RosterMember) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO roster_members (cohort_id, student_id)
		VALUES (:cohort_id, :student_id)
		ON CONFLICT(cohort_id, student_id) DO NOTHING
	`, member)
	if err != nil {
		return fmt.Errorf("failed to add roster member: %w", err)
	}
	return nil
}

func (s *BaseStore) ListMissions() ([]models.Mission, error) {
	var missions []models.Mission
	err := s.DB.Select(&missions, `
		SELECT id, cohort_id, week, title, due_at, active
		FROM missions
		ORDER BY cohort_id, week, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	return missions, nil
}

func (s *BaseStore) GetMission(id int64) (*models.Mission, error) {
	var mission models.Mission
	query := s.Converter(`
		SELECT id, cohort_id, week, title, due_at, active
		FROM missions
		WHERE id = ?
	`)
	err := s.DB.Get(&mission, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	return &mission, nil
}

func (s *BaseStore) SaveMission(mission *models.Mission) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO missions (id, cohort_id, week, title, due_at, active)
		VALUES (:id, :cohort_id, :week, :title, :due_at, :active)
		ON CONFLICT(id) DO UPDATE SET
		cohort_id = excluded.cohort_id,
		week = excluded.week,
		title = excluded.title,
		due_at = excluded.due_at,
		active = excluded.active
	`, mission)
	if err != nil {
		return fmt.Errorf("failed to save mission: %w", err)
	}
	return nil
}

func (s *BaseStore) DeleteMission(id int64) error {
	_, err := s.DB.Exec(s.Converter(`DELETE FROM missions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}
	return nil
}

func (s *BaseStore) ListSubmissions() ([]models.Submission, error) {
	var submissions []models.Submission
	err := s.DB.Select(&submissions, `
		SELECT id, mission_id, student_id, submitted_at, status
		FROM submissions
		ORDER BY mission_id, submitted_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

func (s *BaseStore) CreateSubmission(submission *models.Submission) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO submissions (id, mission_id, student_id, submitted_at, status)
		VALUES (:id, :mission_id, :student_id, :submitted_at, :status)
	`, submission)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}
