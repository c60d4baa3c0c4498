package memory

import (
	"context"
	"sync"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/history"
)

// HistoryRepository implements history.Repository
type HistoryRepository struct {
	mu      sync.RWMutex
	entries []*history.Entry
	nextID  int64
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

// Append stores an entry
func (r *HistoryRepository) Append(ctx context.Context, entry *history.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

// List returns matching entries, newest first
func (r *HistoryRepository) List(ctx context.Context, filter history.Filter, limit, offset int) ([]*history.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*history.Entry
	skipped := 0
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !filter.Matches(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of matching entries
func (r *HistoryRepository) Count(ctx context.Context, filter history.Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}
