package interfaces

import (
	"context"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

// SearchQuery narrows a similarity search. Zero values mean no filter.
type SearchQuery struct {
	Sources []model.Source
	Since   time.Time
	Until   time.Time
}

// VectorIndex is the ephemeral per-owner vector store
type VectorIndex interface {
	Insert(ctx context.Context, entry *model.IndexEntry, payload model.Payload) error
	Contains(ctx context.Context, owner model.OwnerID, key model.RecordKey) bool
	Search(ctx context.Context, owner model.OwnerID, vector []float32, topK int, q SearchQuery) ([]model.SearchHit, error)
	Resolve(ctx context.Context, owner model.OwnerID, ref model.PayloadRef) (model.Payload, error)
	PurgeExpired(ctx context.Context) (int, error)
	DeleteOwner(ctx context.Context, owner model.OwnerID) (int, error)
}
