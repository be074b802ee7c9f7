package interfaces

import (
	"context"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

// KeyService hands out per-owner data keys. Implementations must not let
// callers persist key material.
type KeyService interface {
	DataKey(ctx context.Context, owner model.OwnerID) (*model.DataKey, error)
}

// Summarizer produces a summary of rendered record fields along with the
// identifier spans it detected in that summary.
type Summarizer interface {
	Summarize(ctx context.Context, source model.Source, text string) (*model.Summary, error)
}

// Embedder converts text into a vector of the service's fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelVersion identifies the embedding model; same text and version
	// must produce the same vector.
	ModelVersion() string
}

// Completer is a black-box text completion service.
type Completer interface {
	Complete(ctx context.Context, req *model.CompletionRequest) (string, error)
}

// AuditSink receives one record per answered query.
type AuditSink interface {
	PutAudit(ctx context.Context, record *model.AuditRecord) error
}
