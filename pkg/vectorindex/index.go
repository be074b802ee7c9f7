// Package vectorindex is an in-memory, per-owner partitioned vector store
// whose entries expire after a fixed TTL.
package vectorindex

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultPurgeBatch = 256
)

type sourceKey struct {
	source model.Source
	id     string
}

// partition holds one owner's entries. dead is set under mu when the
// partition is detached from the index; writers that observe it retry
// against the current partition.
type partition struct {
	mu       sync.RWMutex
	entries  map[model.EntryID]*model.IndexEntry
	payloads map[model.PayloadRef]model.Payload
	latest   map[sourceKey]model.EntryID
	dead     bool
}

func newPartition() *partition {
	return &partition{
		entries:  map[model.EntryID]*model.IndexEntry{},
		payloads: map[model.PayloadRef]model.Payload{},
		latest:   map[sourceKey]model.EntryID{},
	}
}

func (p *partition) remove(id model.EntryID) {
	e, ok := p.entries[id]
	if !ok {
		return
	}
	delete(p.entries, id)
	delete(p.payloads, e.PayloadRef)
	sk := sourceKey{e.RecordKey.Source, e.RecordKey.SourceID}
	if p.latest[sk] == id {
		delete(p.latest, sk)
	}
}

type Index struct {
	// mu guards the owners map only. Lock order is mu then partition.mu.
	mu         sync.RWMutex
	owners     map[model.OwnerID]*partition
	dimensions int
	ttl        time.Duration
	purgeBatch int
	now        func() time.Time
}

var _ interfaces.VectorIndex = (*Index)(nil)

type Option func(*Index)

func WithTTL(ttl time.Duration) Option {
	return func(idx *Index) {
		idx.ttl = ttl
	}
}

// WithDimensions fixes the vector length accepted by Insert and Search.
func WithDimensions(dim int) Option {
	return func(idx *Index) {
		idx.dimensions = dim
	}
}

func WithPurgeBatch(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.purgeBatch = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(idx *Index) {
		idx.now = now
	}
}

func New(opts ...Option) *Index {
	idx := &Index{
		owners:     map[model.OwnerID]*partition{},
		ttl:        DefaultTTL,
		purgeBatch: DefaultPurgeBatch,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Index) TTL() time.Duration {
	return idx.ttl
}

func (idx *Index) lookup(owner model.OwnerID) *partition {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.owners[owner]
}

func (idx *Index) lookupOrCreate(owner model.OwnerID) *partition {
	if p := idx.lookup(owner); p != nil {
		return p
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	p, ok := idx.owners[owner]
	if !ok {
		p = newPartition()
		idx.owners[owner] = p
	}
	return p
}

func (idx *Index) checkVector(v []float32) error {
	if len(v) == 0 || (idx.dimensions > 0 && len(v) != idx.dimensions) {
		return goerr.Wrap(model.ErrDimensionMismatch, "invalid vector",
			goerr.V("expected", idx.dimensions), goerr.V("actual", len(v)))
	}
	return nil
}

// Insert stores entry together with its payload. ID, PayloadRef, CreatedAt
// and ExpiresAt are assigned here and written back to entry. A stored entry
// with the same source and source id is replaced in the same step.
func (idx *Index) Insert(ctx context.Context, entry *model.IndexEntry, payload model.Payload) error {
	if entry == nil || payload == nil {
		return goerr.New("entry and payload are required")
	}
	if entry.OwnerID == "" {
		return goerr.New("entry has no owner")
	}
	if err := idx.checkVector(entry.Vector); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = model.NewEntryID()
	}
	entry.PayloadRef = model.PayloadRef(entry.ID)
	entry.Mode = payload.Mode()
	entry.Source = entry.RecordKey.Source

	for {
		if err := ctx.Err(); err != nil {
			return goerr.Wrap(err, "insert cancelled")
		}

		p := idx.lookupOrCreate(entry.OwnerID)
		p.mu.Lock()
		if p.dead {
			p.mu.Unlock()
			continue
		}

		entry.CreatedAt = idx.now()
		entry.ExpiresAt = entry.CreatedAt.Add(idx.ttl)

		sk := sourceKey{entry.RecordKey.Source, entry.RecordKey.SourceID}
		if prev, ok := p.latest[sk]; ok {
			p.remove(prev)
		}
		stored := entry.Clone()
		p.entries[stored.ID] = stored
		p.payloads[stored.PayloadRef] = payload
		p.latest[sk] = stored.ID
		p.mu.Unlock()
		return nil
	}
}

// Contains reports whether a live entry for exactly key is stored.
func (idx *Index) Contains(ctx context.Context, owner model.OwnerID, key model.RecordKey) bool {
	p := idx.lookup(owner)
	if p == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.latest[sourceKey{key.Source, key.SourceID}]
	if !ok {
		return false
	}
	e := p.entries[id]
	return e != nil && e.RecordKey == key && !e.Expired(idx.now())
}

// Search returns up to topK live entries of owner ordered by descending
// cosine similarity, then newest first, then by id.
func (idx *Index) Search(ctx context.Context, owner model.OwnerID, vector []float32, topK int, q interfaces.SearchQuery) ([]model.SearchHit, error) {
	if err := idx.checkVector(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []model.SearchHit{}, nil
	}

	p := idx.lookup(owner)
	if p == nil {
		return []model.SearchHit{}, nil
	}

	now := idx.now()
	p.mu.RLock()
	hits := make([]model.SearchHit, 0, min(topK, len(p.entries)))
	for _, e := range p.entries {
		if e.Expired(now) || !matches(e, q) {
			continue
		}
		hits = append(hits, model.SearchHit{Entry: e.Clone(), Score: cosineSimilarity(vector, e.Vector)})
	}
	p.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.CreatedAt.Equal(b.Entry.CreatedAt) {
			return a.Entry.CreatedAt.After(b.Entry.CreatedAt)
		}
		return a.Entry.ID < b.Entry.ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func matches(e *model.IndexEntry, q interfaces.SearchQuery) bool {
	if len(q.Sources) > 0 && !slices.Contains(q.Sources, e.Source) {
		return false
	}
	if !q.Since.IsZero() && e.RecordTime.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.RecordTime.After(q.Until) {
		return false
	}
	return true
}

// Resolve returns the payload of a live entry of owner.
func (idx *Index) Resolve(ctx context.Context, owner model.OwnerID, ref model.PayloadRef) (model.Payload, error) {
	p := idx.lookup(owner)
	if p == nil {
		return nil, goerr.Wrap(model.ErrPayloadNotFound, "owner has no entries", goerr.V("ref", ref))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[model.EntryID(ref)]
	if !ok || e.Expired(idx.now()) {
		return nil, goerr.Wrap(model.ErrPayloadNotFound, "payload is gone", goerr.V("ref", ref))
	}
	return p.payloads[ref], nil
}

// PurgeExpired deletes entries whose expiry has passed. Each partition is
// locked for at most one batch at a time.
func (idx *Index) PurgeExpired(ctx context.Context) (int, error) {
	idx.mu.RLock()
	owners := make(map[model.OwnerID]*partition, len(idx.owners))
	for o, p := range idx.owners {
		owners[o] = p
	}
	idx.mu.RUnlock()

	total := 0
	for owner, p := range owners {
		for {
			if err := ctx.Err(); err != nil {
				return total, goerr.Wrap(err, "purge cancelled", goerr.V("purged", total))
			}
			n, more := idx.purgeBatchOf(p)
			total += n
			if !more {
				break
			}
		}
		idx.dropIfEmpty(owner, p)
	}
	return total, nil
}

func (idx *Index) purgeBatchOf(p *partition) (int, bool) {
	now := idx.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for id, e := range p.entries {
		if !e.Expired(now) {
			continue
		}
		if n == idx.purgeBatch {
			return n, true
		}
		p.remove(id)
		n++
	}
	return n, false
}

func (idx *Index) dropIfEmpty(owner model.OwnerID, p *partition) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx.owners[owner] == p && len(p.entries) == 0 {
		delete(idx.owners, owner)
		p.dead = true
	}
}

// DeleteOwner removes every entry of owner before returning. Searches
// started after it returns see nothing for owner.
func (idx *Index) DeleteOwner(ctx context.Context, owner model.OwnerID) (int, error) {
	idx.mu.Lock()
	p := idx.owners[owner]
	delete(idx.owners, owner)
	idx.mu.Unlock()

	if p == nil {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries)
	p.dead = true
	p.entries = map[model.EntryID]*model.IndexEntry{}
	p.payloads = map[model.PayloadRef]model.Payload{}
	p.latest = map[sourceKey]model.EntryID{}
	return n, nil
}

// Stored returns the number of entries held for owner, expired or not.
func (idx *Index) Stored(owner model.OwnerID) int {
	p := idx.lookup(owner)
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
