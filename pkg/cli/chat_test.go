package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type mockAnswerer struct {
	answerFunc func(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error)
}

func (m *mockAnswerer) Answer(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error) {
	return m.answerFunc(ctx, owner, query, opts...)
}

type mockLifecycle struct {
	mode    model.PrivacyMode
	deleted []string
}

func (m *mockLifecycle) Logout(ctx context.Context, owner model.OwnerID) (int, error) {
	m.deleted = append(m.deleted, "logout")
	return 2, nil
}

func (m *mockLifecycle) DeleteData(ctx context.Context, owner model.OwnerID) (int, error) {
	m.deleted = append(m.deleted, "delete")
	m.mode = model.PrivacyModeAnonymized
	return 2, nil
}

func (m *mockLifecycle) SetMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	m.mode = mode
	return nil
}

func (m *mockLifecycle) Mode(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error) {
	return m.mode, nil
}

func newTestSession(answerer *mockAnswerer, lc *mockLifecycle) (*chatSession, *bytes.Buffer) {
	var buf bytes.Buffer
	return &chatSession{
		owner:     "u-1",
		answerer:  answerer,
		lifecycle: lc,
		w:         &buf,
		spin:      func(io.Writer) func() { return func() {} },
	}, &buf
}

func TestChatSessionAnswer(t *testing.T) {
	ctx := context.Background()
	answerer := &mockAnswerer{answerFunc: func(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error) {
		if query == "down" {
			return nil, goerr.Wrap(model.ErrEmbeddingServiceUnavailable, "timeout")
		}
		return &model.Answer{Text: "On Friday.", Used: []model.UsedEntry{{EntryID: "e-1"}}, Dropped: 1}, nil
	}}
	s, buf := newTestSession(answerer, &mockLifecycle{})

	quit, err := s.handle(ctx, "when is the lease due?")
	gt.NoError(t, err)
	gt.False(t, quit)
	gt.S(t, buf.String()).Contains("On Friday.")
	gt.S(t, buf.String()).Contains("(1 records used, 1 unreadable)")

	buf.Reset()
	quit, err = s.handle(ctx, "down")
	gt.NoError(t, err)
	gt.False(t, quit)
	gt.S(t, buf.String()).Contains("Service unavailable")

	quit, err = s.handle(ctx, "   ")
	gt.NoError(t, err)
	gt.False(t, quit)
}

func TestChatSessionCommands(t *testing.T) {
	ctx := context.Background()
	lc := &mockLifecycle{mode: model.PrivacyModeAnonymized}
	s, buf := newTestSession(&mockAnswerer{}, lc)

	_, err := s.handle(ctx, "/mode")
	gt.NoError(t, err)
	gt.S(t, buf.String()).Contains("Privacy mode: anonymized")

	_, err = s.handle(ctx, "/mode RAW")
	gt.NoError(t, err)
	gt.Equal(t, lc.mode, model.PrivacyModeRaw)

	buf.Reset()
	_, err = s.handle(ctx, "/mode clear")
	gt.NoError(t, err)
	gt.S(t, buf.String()).Contains("Unknown mode")
	gt.Equal(t, lc.mode, model.PrivacyModeRaw)

	_, err = s.handle(ctx, "/logout")
	gt.NoError(t, err)
	_, err = s.handle(ctx, "/delete")
	gt.NoError(t, err)
	gt.Equal(t, lc.deleted, []string{"logout", "delete"})

	buf.Reset()
	_, err = s.handle(ctx, "/nope")
	gt.NoError(t, err)
	gt.S(t, buf.String()).Contains("Unknown command /nope")

	quit, err := s.handle(ctx, "/quit")
	gt.NoError(t, err)
	gt.True(t, quit)
}

type mockIngester struct {
	ingestFunc func(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error)
}

func (m *mockIngester) Ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error) {
	return m.ingestFunc(ctx, owner, source, payload)
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		gt.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}
	paths := []string{
		write("a.transaction.json", `{"id":"tx-1","date":"2026-01-02"}`),
		write("b.transaction.json", `{"id":"dup","date":"2026-01-02"}`),
		write("c.transaction.json", `{"date":"2026-01-02"}`),
		write("notes.txt", "ignored"),
	}

	ingester := &mockIngester{ingestFunc: func(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error) {
		gt.Equal(t, source, model.SourceTransaction)
		switch {
		case bytes.Contains(payload, []byte(`"dup"`)):
			return &ingest.Result{Skipped: true, Reason: ingest.ReasonDuplicate}, nil
		case !bytes.Contains(payload, []byte(`"id"`)):
			return nil, goerr.Wrap(model.ErrMalformedSourceData, "source_id is missing")
		}
		return &ingest.Result{EntryID: "e-1"}, nil
	}}

	n, err := ingestFiles(context.Background(), ingester, "u-1", paths)
	gt.NoError(t, err)
	gt.Equal(t, n, 1)

	failing := &mockIngester{ingestFunc: func(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error) {
		return nil, goerr.Wrap(model.ErrSummarizationUnavailable, "down")
	}}
	_, err = ingestFiles(context.Background(), failing, "u-1", paths[:1])
	gt.Error(t, err)
}
