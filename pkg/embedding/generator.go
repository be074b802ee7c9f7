// Package embedding wraps an external embedding service with a timeout,
// result validation and an optional content-hash cache.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
)

const DefaultTimeout = 10 * time.Second

type Generator struct {
	embedder   interfaces.Embedder
	dimensions int
	timeout    time.Duration
	cache      *cache
}

type Option func(*Generator)

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithCache enables caching of up to size vectors keyed by model version
// and text hash.
func WithCache(size int) Option {
	return func(g *Generator) {
		if size > 0 {
			g.cache = newCache(size)
		}
	}
}

func New(embedder interfaces.Embedder, dimensions int, opts ...Option) *Generator {
	g := &Generator{
		embedder:   embedder,
		dimensions: dimensions,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Dimensions() int {
	return g.dimensions
}

type result struct {
	vector []float32
	err    error
}

// Embed returns the vector for text. Any failure, including a timeout, an
// empty vector or a dimension mismatch, is ErrEmbeddingServiceUnavailable.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(g.embedder.ModelVersion(), text)
	if v, ok := g.cache.get(key); ok {
		return v, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		v, err := g.embedder.Embed(ctx, text)
		ch <- result{vector: v, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, goerr.Wrap(model.WithCause(model.ErrEmbeddingServiceUnavailable, ctx.Err()), "embedding timed out",
			goerr.V("timeout", g.timeout.String()))
	}

	if r.err != nil {
		return nil, goerr.Wrap(model.WithCause(model.ErrEmbeddingServiceUnavailable, r.err), "embedding request failed")
	}
	if len(r.vector) == 0 {
		return nil, goerr.Wrap(model.ErrEmbeddingServiceUnavailable, "embedding service returned empty vector")
	}
	if g.dimensions > 0 && len(r.vector) != g.dimensions {
		return nil, goerr.Wrap(model.ErrEmbeddingServiceUnavailable, "unexpected embedding dimension",
			goerr.V("expected", g.dimensions), goerr.V("actual", len(r.vector)))
	}

	g.cache.put(key, r.vector)
	return r.vector, nil
}

func cacheKey(modelVersion, text string) string {
	h := sha256.New()
	h.Write([]byte(modelVersion))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// cache keeps the most recently used vectors. A nil cache is a no-op.
type cache struct {
	lru *lru.Cache[string, []float32]
}

func newCache(size int) *cache {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil
	}
	return &cache{lru: c}
}

func (c *cache) get(key string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

func (c *cache) put(key string, v []float32) {
	if c == nil {
		return
	}
	c.lru.Add(key, append([]float32(nil), v...))
}
