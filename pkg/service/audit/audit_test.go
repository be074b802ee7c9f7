package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/service/audit"
	"github.com/m-mizutani/gt"
)

type buffer struct {
	bytes.Buffer
	closed bool
}

func (b *buffer) Close() error {
	b.closed = true
	return nil
}

type mockStorage struct {
	objects map[string]*buffer
	types   map[string]string
	putErr  error
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string]*buffer{}, types: map[string]string{}}
}

func (m *mockStorage) Put(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	b := &buffer{}
	m.objects[key] = b
	m.types[key] = contentType
	return b, nil
}

func TestStorageSink(t *testing.T) {
	storage := newMockStorage()
	sink := audit.NewStorageSink(storage, "")

	record := &model.AuditRecord{
		OwnerID:   "u-1",
		QueryHash: "abc123",
		EntryIDs:  []model.EntryID{"e-1", "e-2"},
		Dropped:   1,
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	gt.NoError(t, sink.PutAudit(context.Background(), record))
	gt.Equal(t, len(storage.objects), 1)

	for key, obj := range storage.objects {
		gt.True(t, strings.HasPrefix(key, "audit/u-1/2026/03/02/"))
		gt.True(t, strings.HasSuffix(key, ".json"))
		gt.True(t, obj.closed)
		gt.Equal(t, storage.types[key], "application/json")

		var got model.AuditRecord
		gt.NoError(t, json.Unmarshal(obj.Bytes(), &got))
		gt.Equal(t, got.QueryHash, "abc123")
		gt.Equal(t, got.EntryIDs, record.EntryIDs)
		gt.Equal(t, got.Dropped, 1)
	}
}

func TestStorageSinkError(t *testing.T) {
	storage := newMockStorage()
	storage.putErr = errors.New("permission denied")
	sink := audit.NewStorageSink(storage, "trail")

	err := sink.PutAudit(context.Background(), &model.AuditRecord{OwnerID: "u-1", CreatedAt: time.Now()})
	gt.Error(t, err)
}

func TestLogSink(t *testing.T) {
	gt.NoError(t, audit.LogSink{}.PutAudit(context.Background(), &model.AuditRecord{OwnerID: "u-1"}))
}
