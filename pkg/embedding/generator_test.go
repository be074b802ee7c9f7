package embedding_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/embedding"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/gt"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	return m.embedFunc(ctx, text)
}

func (m *mockEmbedder) ModelVersion() string { return "mock-v1" }

func TestEmbed(t *testing.T) {
	m := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	}}

	v, err := embedding.New(m, 3).Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.Equal(t, v, []float32{1, 2, 3})
}

func TestEmbedFailuresAreExplicit(t *testing.T) {
	cases := map[string]func(ctx context.Context, text string) ([]float32, error){
		"service error": func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("503")
		},
		"empty vector": func(ctx context.Context, text string) ([]float32, error) {
			return []float32{}, nil
		},
		"wrong dimension": func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 2}, nil
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			v, err := embedding.New(&mockEmbedder{embedFunc: fn}, 3).Embed(context.Background(), "x")
			gt.True(t, errors.Is(err, model.ErrEmbeddingServiceUnavailable))
			gt.Nil(t, v)
		})
	}
}

func TestEmbedTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		// ignores ctx on purpose
		<-release
		return []float32{1}, nil
	}}

	start := time.Now()
	_, err := embedding.New(m, 1, embedding.WithTimeout(20*time.Millisecond)).Embed(context.Background(), "x")
	gt.True(t, errors.Is(err, model.ErrEmbeddingServiceUnavailable))
	gt.True(t, errors.Is(err, context.DeadlineExceeded))
	gt.True(t, time.Since(start) < time.Second)
}

func TestEmbedCache(t *testing.T) {
	m := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	}}
	g := embedding.New(m, 1, embedding.WithCache(2))
	ctx := context.Background()

	a, err := g.Embed(ctx, "a")
	gt.NoError(t, err)
	again, err := g.Embed(ctx, "a")
	gt.NoError(t, err)
	gt.Equal(t, a, again)
	gt.Equal(t, m.calls.Load(), int32(1))

	// cached vectors are copies
	again[0] = 99
	third, err := g.Embed(ctx, "a")
	gt.NoError(t, err)
	gt.Equal(t, third[0], float32(1))

	_, _ = g.Embed(ctx, "bb")
	_, _ = g.Embed(ctx, "ccc")
	_, _ = g.Embed(ctx, "a")
	gt.Equal(t, m.calls.Load(), int32(4))
}

func TestEmbedCacheKeepsRecentlyUsed(t *testing.T) {
	m := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	}}
	g := embedding.New(m, 1, embedding.WithCache(2))
	ctx := context.Background()

	for _, text := range []string{"a", "bb", "a", "ccc"} {
		_, err := g.Embed(ctx, text)
		gt.NoError(t, err)
	}
	gt.Equal(t, m.calls.Load(), int32(3))

	// "bb" was the least recently used and has been evicted
	_, err := g.Embed(ctx, "a")
	gt.NoError(t, err)
	gt.Equal(t, m.calls.Load(), int32(3))
	_, err = g.Embed(ctx, "bb")
	gt.NoError(t, err)
	gt.Equal(t, m.calls.Load(), int32(4))
}
