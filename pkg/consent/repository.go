package consent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists consent records
type Repository interface {
	// Find returns matching records ordered by creation time, oldest first
	Find(ctx context.Context, q Query) ([]Record, error)
	Create(ctx context.Context, r Record) (Record, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
}
