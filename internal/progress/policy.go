package progress

import "sync"

// Invalidator is notified whenever data scoped to a cohort changes.
type Invalidator interface {
	Invalidate(cohortID int64)
}

// Versions hands out the data-version tokens memoized results are keyed by.
type Versions interface {
	Token(cohortID int64) uint64
	GlobalToken() uint64
}

// InvalidationPolicy keeps one monotonically increasing version per cohort
// plus a global version that moves with any cohort. A memoized result is
// stale as soon as the token it was stored under differs from the current one.
type InvalidationPolicy struct {
	mu       sync.RWMutex
	versions map[int64]uint64
	epoch    uint64
	global   uint64
}

func NewInvalidationPolicy() *InvalidationPolicy {
	return &InvalidationPolicy{versions: make(map[int64]uint64)}
}

func (p *InvalidationPolicy) Invalidate(cohortID int64) {
	p.mu.Lock()
	p.versions[cohortID]++
	p.global++
	p.mu.Unlock()
}

// InvalidateAll bumps every cohort at once, including ones never seen
// before, and is used after a full snapshot reload.
func (p *InvalidationPolicy) InvalidateAll() {
	p.mu.Lock()
	p.epoch++
	p.global++
	p.mu.Unlock()
}

func (p *InvalidationPolicy) Token(cohortID int64) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.versions[cohortID] + p.epoch
}

func (p *InvalidationPolicy) GlobalToken() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.global
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(int64) {}
