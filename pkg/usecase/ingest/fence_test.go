package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestFenceDropsIdleOwners(t *testing.T) {
	f := newFence()

	gen := f.acquire("u-1")
	again := f.acquire("u-1")
	gt.Equal(t, gen, again)
	gt.Equal(t, f.size(), 1)

	f.release("u-1")
	gt.Equal(t, f.size(), 1)
	f.release("u-1")
	gt.Equal(t, f.size(), 0)

	// nothing holds a generation, so there is nothing to invalidate
	f.bump("u-1")
	gt.Equal(t, f.size(), 0)
}

func TestFenceBumpInvalidatesHeldGenerations(t *testing.T) {
	f := newFence()
	gen := f.acquire("u-1")
	other := f.acquire("u-2")
	defer f.release("u-2")

	f.bump("u-1")
	gt.False(t, f.current("u-1", gen))
	gt.True(t, f.current("u-2", other))

	ran := false
	ok, err := f.guard("u-1", gen, func() error {
		ran = true
		return nil
	})
	gt.NoError(t, err)
	gt.False(t, ok)
	gt.False(t, ran)

	f.release("u-1")
	gt.Equal(t, f.size(), 1)
}

func TestIngestReleasesFence(t *testing.T) {
	uc := New(nil, nil, nil, nil)

	_, err := uc.Ingest(context.Background(), "u-1", model.SourceEmail, []byte("not json"))
	gt.True(t, errors.Is(err, model.ErrMalformedSourceData))
	gt.Equal(t, uc.fence.size(), 0)
}
