package interfaces

import (
	"context"

	"github.com/medrex/glucose-tracker/pkg/types"
)

// ReadingStore defines the remote source of truth for readings as seen by clients
type ReadingStore interface {
	ListEntries(ctx context.Context, query *types.ListQuery) (*types.EntryPage, error)
	CreateEntry(ctx context.Context, payload *types.SubmissionPayload) (types.WirePayload, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// RecommendationService returns the currently preferred puncture sites as codes
type RecommendationService interface {
	RecommendedSpots(ctx context.Context) ([]string, error)
}

// EntriesService defines the server side of the reading store
type EntriesService interface {
	Create(ctx context.Context, payload *types.SubmissionPayload) (*types.Entry, error)
	List(ctx context.Context, query *types.ListQuery) ([]*types.Entry, int, error)
	Delete(ctx context.Context, id int64) error
	RecommendedSpots(ctx context.Context) ([]string, error)
}

// EntryRepository defines persistence for stored entries
type EntryRepository interface {
	Create(ctx context.Context, entry *types.Entry) (*types.Entry, error)
	List(ctx context.Context, query *types.ListQuery) ([]*types.Entry, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id int64) error
	Recent(ctx context.Context, limit int) ([]*types.Entry, error)
}
