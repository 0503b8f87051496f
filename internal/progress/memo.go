package progress

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shrimpsizemoose/missionboard/internal/metrics"
)

type memoScope struct {
	cohortID int64
	scope    string
}

type memoEntry[V any] struct {
	token   uint64
	value   V
	expires time.Time
}

// memo keeps the latest computed value per (cohort, scope). An entry is only
// served for the exact version token it was computed under and, when it has
// one, before its expiry. Concurrent misses for the same key share a single
// computation.
type memo[V any] struct {
	view    string
	now     func() time.Time
	mu      sync.Mutex
	entries map[memoScope]memoEntry[V]
	group   singleflight.Group
}

func newMemo[V any](view string, now func() time.Time) *memo[V] {
	return &memo[V]{
		view:    view,
		now:     now,
		entries: make(map[memoScope]memoEntry[V]),
	}
}

type computeFunc[V any] func() (value V, expires time.Time, err error)

func (m *memo[V]) getOrCompute(cohortID int64, scope string, token uint64, compute computeFunc[V]) (V, time.Time, error) {
	key := memoScope{cohortID: cohortID, scope: scope}

	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if ok && e.token == token && (e.expires.IsZero() || m.now().Before(e.expires)) {
		metrics.CacheLookups.WithLabelValues(m.view, "hit").Inc()
		return e.value, e.expires, nil
	}
	metrics.CacheLookups.WithLabelValues(m.view, "miss").Inc()

	flight := fmt.Sprintf("%d/%s/%d", cohortID, scope, token)
	res, err, _ := m.group.Do(flight, func() (interface{}, error) {
		start := time.Now()
		value, expires, err := compute()
		if err != nil {
			return nil, err
		}
		metrics.RecomputeDuration.WithLabelValues(m.view).Observe(time.Since(start).Seconds())

		entry := memoEntry[V]{token: token, value: value, expires: expires}
		m.mu.Lock()
		if cur, ok := m.entries[key]; !ok || cur.token <= token {
			m.entries[key] = entry
		}
		m.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		var zero V
		return zero, time.Time{}, err
	}
	entry := res.(memoEntry[V])
	return entry.value, entry.expires, nil
}

// len reports the number of live scopes, for tests.
func (m *memo[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
