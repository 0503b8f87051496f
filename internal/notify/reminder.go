package notify

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/missionboard/internal/metrics"
	"github.com/shrimpsizemoose/missionboard/internal/models"
	"github.com/shrimpsizemoose/missionboard/internal/progress"
)

// Source is what the reminder reads from the progress snapshot.
type Source interface {
	Missions() []models.Mission
	NonSubmitters(missionID int64) ([]string, error)
}

// Reminder pings cohort chats about students who have not submitted a
// mission whose deadline is coming up.
type Reminder struct {
	source Source
	sender Sender
	chats  map[int64]int64
	window time.Duration
	now    func() time.Time
}

// NewReminder maps cohort ids (the keys of chats) to Telegram chat ids.
func NewReminder(source Source, sender Sender, chats map[string]int64, window time.Duration) (*Reminder, error) {
	parsed := make(map[int64]int64, len(chats))
	for key, chatID := range chats {
		cohortID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cohort id %q in reminder chats: %w", key, err)
		}
		parsed[cohortID] = chatID
	}
	return &Reminder{
		source: source,
		sender: sender,
		chats:  parsed,
		window: window,
		now:    time.Now,
	}, nil
}

// Upcoming returns the active missions due within the window, soonest first.
func (r *Reminder) Upcoming() []models.Mission {
	now := r.now()
	deadline := now.Add(r.window)

	var out []models.Mission
	for _, m := range r.source.Missions() {
		due := m.Due()
		if !m.Active || !due.After(now) || due.After(deadline) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b models.Mission) int {
		if c := cmp.Compare(a.DueAt, b.DueAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Run sends one reminder per upcoming mission with missing submissions and
// reports how many went out. Missions of cohorts without a chat or without
// known roster identities are skipped.
func (r *Reminder) Run() (int, error) {
	var (
		sent int
		errs []error
	)
	for _, m := range r.Upcoming() {
		cohort := strconv.FormatInt(m.CohortID, 10)
		chatID, ok := r.chats[m.CohortID]
		if !ok {
			logger.Debug.Printf("No chat configured for cohort %d, skipping mission %d", m.CohortID, m.ID)
			continue
		}

		students, err := r.source.NonSubmitters(m.ID)
		if errors.Is(err, progress.ErrRosterUnavailable) {
			logger.Info.Printf("Roster of cohort %d is unknown, cannot remind about mission %d", m.CohortID, m.ID)
			metrics.RemindersSent.WithLabelValues(cohort, "roster_unavailable").Inc()
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("mission %d: %w", m.ID, err))
			continue
		}
		if len(students) == 0 {
			metrics.RemindersSent.WithLabelValues(cohort, "complete").Inc()
			continue
		}

		if err := r.sender.Send(chatID, FormatReminder(m, students, r.now())); err != nil {
			metrics.RemindersSent.WithLabelValues(cohort, "failed").Inc()
			errs = append(errs, err)
			continue
		}
		metrics.RemindersSent.WithLabelValues(cohort, "sent").Inc()
		sent++
	}

	logger.Info.Printf("Sent %d reminders", sent)
	return sent, errors.Join(errs...)
}

func FormatReminder(m models.Mission, students []string, now time.Time) string {
	left := m.Due().Sub(now).Round(time.Minute)

	var b strings.Builder
	fmt.Fprintf(&b, "Week %d: %s is due in %s\n", m.Week, m.Title, formatDuration(left))
	fmt.Fprintf(&b, "Still missing %d:\n", len(students))
	for _, s := range students {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	days := d / (24 * time.Hour)
	d = d % (24 * time.Hour)
	hours := d / time.Hour
	d = d % time.Hour
	minutes := d / time.Minute

	if days > 0 {
		return fmt.Sprintf("%dd%dh%dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
