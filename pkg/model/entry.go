package model

import (
	"time"

	"github.com/google/uuid"
)

type EntryID string

// NewEntryID generates a new unique EntryID
func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

// PayloadRef points to the payload stored alongside an index entry.
type PayloadRef string

// IndexEntry is what the vector index keeps for a processed record. Only
// non-sensitive metadata lives here; content stays in the payload.
type IndexEntry struct {
	ID         EntryID
	OwnerID    OwnerID
	RecordKey  RecordKey
	Source     Source
	RecordTime time.Time
	Mode       PrivacyMode
	Vector     []float32
	PayloadRef PayloadRef
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the entry must no longer be served at now.
func (e *IndexEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Clone returns a copy that shares no mutable state with e.
func (e *IndexEntry) Clone() *IndexEntry {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	return &c
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Entry *IndexEntry
	Score float64
}
