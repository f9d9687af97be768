// Package registry holds the live status of pipeline runs in memory.
//
// The registry is process-local. When several server processes share one
// metadata store, a status query routed to a process other than the one
// running the job does not see the run and falls back to the store, which
// shows nothing until the run has completed.
package registry

import (
	"sync"
	"time"

	"github.com/cesargomez89/dictation/internal/domain"
)

// Registry maps a video key to the live status of its latest run. Statuses
// are stored by value, so callers never share a record with the registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]domain.LiveStatus
	now     func() time.Time
}

func New() *Registry {
	return NewWithClock(time.Now)
}

// NewWithClock builds a registry that stamps and ages entries with now
func NewWithClock(now func() time.Time) *Registry {
	return &Registry{
		entries: make(map[string]domain.LiveStatus),
		now:     now,
	}
}

// Get returns a copy of the status for key
func (r *Registry) Get(key string) (domain.LiveStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.entries[key]
	if ok {
		st.Segments = cloneSegments(st.Segments)
	}
	return st, ok
}

// Set replaces the status for key wholesale and stamps UpdatedAt
func (r *Registry) Set(key string, st domain.LiveStatus) {
	st.Key = key
	st.UpdatedAt = r.now()
	st.Segments = cloneSegments(st.Segments)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = st
}

func (r *Registry) Contains(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete drops the status for key. It reports whether an entry existed.
func (r *Registry) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok
}

// Prune evicts completed statuses last updated more than completedTTL ago
// and failed statuses older than failedTTL, and returns how many were
// removed. Statuses of runs still in progress are never evicted. A ttl of
// zero or less keeps that phase forever.
func (r *Registry) Prune(completedTTL, failedTTL time.Duration) int {
	if completedTTL <= 0 && failedTTL <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, st := range r.entries {
		var ttl time.Duration
		switch st.Phase {
		case domain.PhaseCompleted:
			ttl = completedTTL
		case domain.PhaseFailed:
			ttl = failedTTL
		default:
			continue
		}
		if ttl > 0 && st.UpdatedAt.Before(now.Add(-ttl)) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// DropTerminal evicts every terminal status regardless of age
func (r *Registry) DropTerminal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, st := range r.entries {
		if st.Phase.IsTerminal() {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func cloneSegments(s []domain.Segment) []domain.Segment {
	if s == nil {
		return nil
	}
	out := make([]domain.Segment, len(s))
	copy(out, s)
	return out
}
