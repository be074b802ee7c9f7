package ingest

import (
	"sync"
	"sync/atomic"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

// fence tracks a generation per owner. Forget bumps it; an insert carrying
// an older generation is discarded. Inserts hold the owner's read lock from
// the check until the index write returns, so a Forget either waits for
// the insert or invalidates it.
//
// An owner has an entry only while some ingestion holds one of its
// generations. With no holders there is nothing to invalidate, so the
// entry is dropped and the map stays bounded by in-flight work.
type fence struct {
	mu     sync.Mutex
	owners map[model.OwnerID]*ownerFence
}

type ownerFence struct {
	mu   sync.RWMutex
	gen  atomic.Uint64
	refs int
}

func newFence() *fence {
	return &fence{owners: make(map[model.OwnerID]*ownerFence)}
}

// acquire returns the current generation of owner and pins it until the
// matching release.
func (f *fence) acquire(owner model.OwnerID) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	of, ok := f.owners[owner]
	if !ok {
		of = &ownerFence{}
		f.owners[owner] = of
	}
	of.refs++
	return of.gen.Load()
}

func (f *fence) release(owner model.OwnerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	of, ok := f.owners[owner]
	if !ok {
		return
	}
	of.refs--
	if of.refs <= 0 {
		delete(f.owners, owner)
	}
}

func (f *fence) lookup(owner model.OwnerID) *ownerFence {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[owner]
}

// current reports whether gen is still the generation of owner.
func (f *fence) current(owner model.OwnerID, gen uint64) bool {
	of := f.lookup(owner)
	return of != nil && of.gen.Load() == gen
}

// bump invalidates every generation handed out for owner and waits for
// inserts that already passed their check.
func (f *fence) bump(owner model.OwnerID) {
	of := f.lookup(owner)
	if of == nil {
		return
	}
	of.mu.Lock()
	of.gen.Add(1)
	of.mu.Unlock()
}

// guard runs fn under the owner's read lock when gen is still current.
func (f *fence) guard(owner model.OwnerID, gen uint64, fn func() error) (bool, error) {
	of := f.lookup(owner)
	if of == nil {
		return false, nil
	}
	of.mu.RLock()
	defer of.mu.RUnlock()
	if of.gen.Load() != gen {
		return false, nil
	}
	return true, fn()
}

func (f *fence) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.owners)
}
