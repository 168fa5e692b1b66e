package consent

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[uuid.UUID]Record)}
}

func (r *InMemoryRepository) Find(ctx context.Context, q Query) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.records {
		if q.matches(rec) {
			rec.Scopes = slices.Clone(rec.Scopes)
			out = append(out, rec)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Scopes = slices.Clone(rec.Scopes)
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *InMemoryRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrConsentNotFound
	}
	rec.Status = status
	r.records[id] = rec
	return nil
}
