package entries

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medrex/glucose-tracker/pkg/interfaces"
	"github.com/medrex/glucose-tracker/pkg/types"
)

// MemoryRepository keeps entries in process. Used for development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*types.Entry
	nextID  int64
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() interfaces.EntryRepository {
	return &MemoryRepository{nextID: 1, now: time.Now}
}

// Create stores a copy of entry with a new id
func (r *MemoryRepository) Create(ctx context.Context, entry *types.Entry) (*types.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *entry
	stored.ID = r.nextID
	stored.CreatedAt = r.now().UTC()
	r.nextID++
	r.entries = append(r.entries, &stored)

	out := stored
	return &out, nil
}

// List returns one page in the requested order
func (r *MemoryRepository) List(ctx context.Context, query *types.ListQuery) ([]*types.Entry, error) {
	r.mu.RLock()
	sorted := make([]*types.Entry, len(r.entries))
	copy(sorted, r.entries)
	r.mu.RUnlock()

	sort.SliceStable(sorted, less(sorted, query.SortBy))

	offset := (query.Page - 1) * query.Size
	if offset >= len(sorted) {
		return []*types.Entry{}, nil
	}
	end := offset + query.Size
	if end > len(sorted) {
		end = len(sorted)
	}

	page := make([]*types.Entry, 0, end-offset)
	for _, e := range sorted[offset:end] {
		c := *e
		page = append(page, &c)
	}
	return page, nil
}

// Count returns the number of stored entries
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

// Delete removes an entry by id
func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return types.NewNotFoundError(types.ErrCodeNotFound, "entry not found")
}

// Recent returns up to limit entries, most recent reading first
func (r *MemoryRepository) Recent(ctx context.Context, limit int) ([]*types.Entry, error) {
	return r.List(ctx, &types.ListQuery{SortBy: types.SortTimeDesc, Page: 1, Size: limit})
}

// less orders by the sort key and breaks ties by id in the same direction
func less(entries []*types.Entry, key types.SortKey) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch key {
		case types.SortTimeAsc:
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.ID < b.ID
		case types.SortValueAsc:
			if a.Value != b.Value {
				return a.Value < b.Value
			}
			return a.ID < b.ID
		case types.SortValueDesc:
			if a.Value != b.Value {
				return a.Value > b.Value
			}
			return a.ID > b.ID
		default:
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.ID > b.ID
		}
	}
}
