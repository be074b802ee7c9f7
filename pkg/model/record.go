package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type OwnerID string

// Source is the provider-side kind of a record.
type Source string

const (
	SourceEmail         Source = "email"
	SourceCalendarEvent Source = "calendar_event"
	SourceTransaction   Source = "transaction"
)

// Sources lists every supported source in a stable order.
var Sources = []Source{SourceEmail, SourceCalendarEvent, SourceTransaction}

// Validate checks if the source is supported
func (s Source) Validate() error {
	switch s {
	case SourceEmail, SourceCalendarEvent, SourceTransaction:
		return nil
	default:
		return goerr.Wrap(ErrMalformedSourceData, "unknown source", goerr.V("source", string(s)))
	}
}

// Label is a human readable name used in surrogate text and prompts.
func (s Source) Label() string {
	switch s {
	case SourceEmail:
		return "email"
	case SourceCalendarEvent:
		return "calendar event"
	case SourceTransaction:
		return "transaction"
	default:
		return string(s)
	}
}

// RecordKey identifies one immutable version of a provider record.
type RecordKey struct {
	Source   Source `json:"source"`
	SourceID string `json:"source_id"`
	Version  string `json:"version"`
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Source, k.SourceID, k.Version)
}

// Record is the canonical shape of a provider record. It must not be
// modified after normalization.
type Record struct {
	OwnerID   OwnerID           `json:"owner_id"`
	Source    Source            `json:"source"`
	SourceID  string            `json:"source_id"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	RawFields map[string]string `json:"raw_fields"`
}

func (r *Record) Key() RecordKey {
	return RecordKey{Source: r.Source, SourceID: r.SourceID, Version: r.Version}
}

// Canonical returns the deterministic encoding of the record. encoding/json
// sorts map keys, so equal records always produce identical bytes.
func (r *Record) Canonical() []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		// every field is a string, time or string map
		panic(err)
	}
	return raw
}

// CanonicalFields returns the deterministic encoding of RawFields only.
func (r *Record) CanonicalFields() []byte {
	fields := r.RawFields
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return raw
}
