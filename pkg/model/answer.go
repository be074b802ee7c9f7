package model

import (
	"time"
)

// UsedEntry describes an index entry that went into a completion context.
type UsedEntry struct {
	EntryID   EntryID     `json:"entry_id"`
	RecordKey RecordKey   `json:"record_key"`
	Mode      PrivacyMode `json:"mode"`
	Score     float64     `json:"score"`
	Rank      int         `json:"rank"`
	Truncated bool        `json:"truncated,omitempty"`
}

// Answer is the completion text returned verbatim together with the
// entries that were actually placed in the context.
type Answer struct {
	Text    string      `json:"text"`
	Used    []UsedEntry `json:"used"`
	Dropped int         `json:"dropped"`
}

// CompletionRequest is handed to a completion service.
type CompletionRequest struct {
	System  string
	Prompt  string
	Context string
	Query   string
}

// AuditRecord is written per answer for auditability. It carries no record
// content and no query text.
type AuditRecord struct {
	OwnerID   OwnerID   `json:"owner_id"`
	QueryHash string    `json:"query_hash"`
	EntryIDs  []EntryID `json:"entry_ids"`
	Dropped   int       `json:"dropped"`
	CreatedAt time.Time `json:"created_at"`
}
