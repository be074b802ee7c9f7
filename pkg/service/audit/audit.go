// Package audit writes per-answer audit records. Records carry entry ids
// and a query hash only.
package audit

import (
	"context"
	"encoding/json"
	"path"

	"github.com/AnthonyCampos1234/Facsimile/pkg/adapter"
	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// StorageSink stores each record as a JSON object under
// <prefix>/<owner>/<yyyy>/<mm>/<dd>/<uuid>.json.
type StorageSink struct {
	storage adapter.Storage
	prefix  string
}

var _ interfaces.AuditSink = (*StorageSink)(nil)

func NewStorageSink(storage adapter.Storage, prefix string) *StorageSink {
	if prefix == "" {
		prefix = "audit"
	}
	return &StorageSink{storage: storage, prefix: prefix}
}

func (s *StorageSink) key(record *model.AuditRecord) string {
	ts := record.CreatedAt.UTC()
	return path.Join(
		s.prefix,
		string(record.OwnerID),
		ts.Format("2006"), ts.Format("01"), ts.Format("02"),
		uuid.NewString()+".json",
	)
}

func (s *StorageSink) PutAudit(ctx context.Context, record *model.AuditRecord) error {
	key := s.key(record)

	w, err := s.storage.Put(ctx, key, "application/json")
	if err != nil {
		return goerr.Wrap(err, "failed to open audit object", goerr.V("key", key))
	}

	if err := json.NewEncoder(w).Encode(record); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write audit record", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit audit record", goerr.V("key", key))
	}
	return nil
}

// LogSink emits audit records to the structured log.
type LogSink struct{}

var _ interfaces.AuditSink = LogSink{}

func (LogSink) PutAudit(ctx context.Context, record *model.AuditRecord) error {
	logging.From(ctx).Info("answer audit",
		"owner_id", record.OwnerID,
		"query_hash", record.QueryHash,
		"entry_ids", record.EntryIDs,
		"dropped", record.Dropped,
	)
	return nil
}
