package export

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/shrimpsizemoose/missionboard/internal/app"
	"github.com/shrimpsizemoose/missionboard/internal/models"
)

// SummarySource refreshes and serves the cohort summaries to export.
type SummarySource interface {
	Reload() error
	AllSummaries() ([]models.CohortSummary, error)
}

// SheetWriter replaces the content of a sheet.
type SheetWriter interface {
	Replace(ctx context.Context, sheetID, sheetName string, rows [][]interface{}) error
}

type sheetsWriter struct {
	svc *sheets.Service
}

func (w *sheetsWriter) Replace(ctx context.Context, sheetID, sheetName string, rows [][]interface{}) error {
	_, err := w.svc.Spreadsheets.Values.Clear(sheetID, sheetName, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet %s: %w", sheetName, err)
	}

	updateRange := fmt.Sprintf("%s!A1", sheetName)
	_, err = w.svc.Spreadsheets.Values.Update(sheetID, updateRange,
		&sheets.ValueRange{Values: rows}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update sheet %s: %w", sheetName, err)
	}
	return nil
}

type GSheetExporter struct {
	source    SummarySource
	scheduler *gocron.Scheduler
	now       func() time.Time
}

// NewGSheetExporter schedules one export job per configured sheet. Call
// Start to begin running them.
func NewGSheetExporter(configs []app.GSheetConfig, source SummarySource) (*GSheetExporter, error) {
	ctx := context.Background()
	e := &GSheetExporter{
		source:    source,
		scheduler: gocron.NewScheduler(time.UTC),
		now:       time.Now,
	}

	for _, cfg := range configs {
		svc, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets service: %w", err)
		}
		writer := &sheetsWriter{svc: svc}

		_, err = e.scheduler.Cron(cfg.Schedule).Do(func() {
			if err := e.Export(ctx, writer, cfg); err != nil {
				logger.Error.Printf("Export to %s/%s failed: %v", cfg.SheetID, cfg.SheetName, err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule export: %w", err)
		}
	}

	return e, nil
}

func (e *GSheetExporter) Start() {
	e.scheduler.StartAsync()
}

func (e *GSheetExporter) Stop() {
	e.scheduler.Stop()
}

// Export reloads the snapshot and writes the current summaries to one sheet.
func (e *GSheetExporter) Export(ctx context.Context, writer SheetWriter, cfg app.GSheetConfig) error {
	if err := e.source.Reload(); err != nil {
		return fmt.Errorf("failed to reload snapshot: %w", err)
	}
	summaries, err := e.source.AllSummaries()
	if err != nil {
		return fmt.Errorf("failed to compute summaries: %w", err)
	}

	if err := writer.Replace(ctx, cfg.SheetID, cfg.SheetName, BuildRows(summaries, e.now())); err != nil {
		return err
	}
	logger.Info.Printf("Exported %d cohorts to %s/%s", len(summaries), cfg.SheetID, cfg.SheetName)
	return nil
}

var header = []interface{}{
	"cohort", "name", "status", "roster", "overall_rate", "active_students",
	"completed_missions", "total_missions", "week", "week_missions", "week_submissions", "week_rate",
}

// BuildRows lays out one row per cohort week under a timestamp and a header
// row. A cohort without missions still gets a row with the week columns
// left empty.
func BuildRows(summaries []models.CohortSummary, now time.Time) [][]interface{} {
	rows := [][]interface{}{
		{fmt.Sprintf("UPD: %s", now.UTC().Format("2 January 15:04"))},
		header,
	}
	for _, s := range summaries {
		cohort := []interface{}{
			s.CohortID, s.Name, string(s.Status), s.RosterSize, s.OverallRate,
			s.ActiveStudents, s.CompletedMissions, s.TotalMissions,
		}
		if len(s.Weeks) == 0 {
			rows = append(rows, append(cohort, "", "", "", ""))
			continue
		}
		for _, w := range s.Weeks {
			row := make([]interface{}, 0, len(header))
			row = append(row, cohort...)
			row = append(row, w.Week, w.TotalMissions, w.Submissions, w.Rate)
			rows = append(rows, row)
		}
	}
	return rows
}
