package llm

import (
	"context"
	"fmt"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
)

type embeddingClient interface {
	Embedding(ctx context.Context, text string, dimensions int) ([]float32, error)
	EmbeddingModel() string
}

// Embedder adapts a Gemini or OpenAI client to interfaces.Embedder with a
// fixed output dimension.
type Embedder struct {
	client     embeddingClient
	dimensions int
}

var _ interfaces.Embedder = (*Embedder)(nil)

// NewEmbedder accepts adapter.Gemini or adapter.OpenAI.
func NewEmbedder(client embeddingClient, dimensions int) *Embedder {
	return &Embedder{client: client, dimensions: dimensions}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embedding(ctx, text, e.dimensions)
}

// ModelVersion includes the dimension since truncated outputs of one model
// are not comparable across sizes.
func (e *Embedder) ModelVersion() string {
	return fmt.Sprintf("%s@%d", e.client.EmbeddingModel(), e.dimensions)
}
