package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/server"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

type mockIngester struct {
	ingestFunc func(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error)
}

func (m *mockIngester) Ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error) {
	return m.ingestFunc(ctx, owner, source, payload)
}

type mockQueue struct {
	enqueueFunc func(owner model.OwnerID, source model.Source, payload []byte) error
}

func (m *mockQueue) Enqueue(owner model.OwnerID, source model.Source, payload []byte) error {
	return m.enqueueFunc(owner, source, payload)
}

type mockAnswerer struct {
	answerFunc func(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error)
}

func (m *mockAnswerer) Answer(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error) {
	return m.answerFunc(ctx, owner, query, opts...)
}

type mockLifecycle struct {
	logoutFunc     func(ctx context.Context, owner model.OwnerID) (int, error)
	deleteDataFunc func(ctx context.Context, owner model.OwnerID) (int, error)
	setModeFunc    func(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error
	modeFunc       func(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error)
}

func (m *mockLifecycle) Logout(ctx context.Context, owner model.OwnerID) (int, error) {
	return m.logoutFunc(ctx, owner)
}

func (m *mockLifecycle) DeleteData(ctx context.Context, owner model.OwnerID) (int, error) {
	return m.deleteDataFunc(ctx, owner)
}

func (m *mockLifecycle) SetMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error {
	return m.setModeFunc(ctx, owner, mode)
}

func (m *mockLifecycle) Mode(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error) {
	return m.modeFunc(ctx, owner)
}

type testEnv struct {
	ingester  *mockIngester
	queue     *mockQueue
	answerer  *mockAnswerer
	lifecycle *mockLifecycle
}

func newEnv() *testEnv {
	return &testEnv{
		ingester:  &mockIngester{},
		queue:     &mockQueue{},
		answerer:  &mockAnswerer{},
		lifecycle: &mockLifecycle{},
	}
}

func (e *testEnv) handler(opts ...server.Option) http.Handler {
	opts = append([]server.Option{server.WithQueue(e.queue)}, opts...)
	return server.New(e.ingester, e.answerer, e.lifecycle, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			gt.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(server.OwnerHeader, "u-1")
	for k, v := range header {
		if v == "" {
			req.Header.Del(k)
		} else {
			req.Header.Set(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

var transaction = map[string]any{
	"source":  "transaction",
	"payload": map[string]any{"id": "tx-1", "date": "2026-01-02", "amount": 12.5},
}

func TestHealthz(t *testing.T) {
	h := newEnv().handler(server.WithAuthToken("secret"))
	w := do(t, h, http.MethodGet, "/healthz", nil, map[string]string{server.OwnerHeader: ""})
	gt.Equal(t, w.Code, http.StatusOK)
}

func TestAuth(t *testing.T) {
	env := newEnv()
	env.lifecycle.modeFunc = func(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error) {
		return model.PrivacyModeRaw, nil
	}
	h := env.handler(server.WithAuthToken("secret"))

	w := do(t, h, http.MethodGet, "/settings/mode", nil, nil)
	gt.Equal(t, w.Code, http.StatusUnauthorized)

	w = do(t, h, http.MethodGet, "/settings/mode", nil, map[string]string{"Authorization": "Bearer wrong"})
	gt.Equal(t, w.Code, http.StatusUnauthorized)

	w = do(t, h, http.MethodGet, "/settings/mode", nil, map[string]string{"Authorization": "Bearer secret"})
	gt.Equal(t, w.Code, http.StatusOK)
}

func TestOwnerRequired(t *testing.T) {
	h := newEnv().handler()
	w := do(t, h, http.MethodPost, "/logout", nil, map[string]string{server.OwnerHeader: ""})
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestPostRecordQueued(t *testing.T) {
	env := newEnv()
	var got model.Source
	env.queue.enqueueFunc = func(owner model.OwnerID, source model.Source, payload []byte) error {
		gt.Equal(t, owner, model.OwnerID("u-1"))
		got = source
		gt.S(t, string(payload)).Contains(`"tx-1"`)
		return nil
	}

	w := do(t, env.handler(), http.MethodPost, "/records", transaction, nil)
	gt.Equal(t, w.Code, http.StatusAccepted)
	gt.Equal(t, got, model.SourceTransaction)
}

func TestPostRecordQueueFull(t *testing.T) {
	env := newEnv()
	env.queue.enqueueFunc = func(owner model.OwnerID, source model.Source, payload []byte) error {
		return goerr.Wrap(ingest.ErrQueueFull, "full")
	}

	w := do(t, env.handler(), http.MethodPost, "/records", transaction, nil)
	gt.Equal(t, w.Code, http.StatusServiceUnavailable)
	gt.Equal(t, w.Header().Get("Retry-After"), "1")
}

func TestPostRecordSync(t *testing.T) {
	cases := map[string]struct {
		result *ingest.Result
		err    error
		status int
	}{
		"inserted": {
			result: &ingest.Result{EntryID: "e-1", Mode: model.PrivacyModeRaw},
			status: http.StatusCreated,
		},
		"skipped": {
			result: &ingest.Result{Skipped: true, Reason: ingest.ReasonDuplicate},
			status: http.StatusOK,
		},
		"malformed": {
			err:    goerr.Wrap(model.ErrMalformedSourceData, "bad"),
			status: http.StatusUnprocessableEntity,
		},
		"summarizer down": {
			err:    goerr.Wrap(model.ErrSummarizationUnavailable, "down"),
			status: http.StatusServiceUnavailable,
		},
		"unexpected": {
			err:    goerr.New("boom"),
			status: http.StatusInternalServerError,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := newEnv()
			env.queue.enqueueFunc = func(owner model.OwnerID, source model.Source, payload []byte) error {
				t.Error("sync ingestion must not enqueue")
				return nil
			}
			env.ingester.ingestFunc = func(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error) {
				return tc.result, tc.err
			}

			w := do(t, env.handler(), http.MethodPost, "/records?sync=true", transaction, nil)
			gt.Equal(t, w.Code, tc.status)
			if tc.err != nil {
				gt.S(t, w.Body.String()).NotContains("boom")
			}
		})
	}
}

func TestPostRecordValidation(t *testing.T) {
	h := newEnv().handler()

	w := do(t, h, http.MethodPost, "/records", `{"source":`, nil)
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodPost, "/records", map[string]any{"source": "fax", "payload": map[string]any{}}, nil)
	gt.Equal(t, w.Code, http.StatusBadRequest)

	w = do(t, h, http.MethodPost, "/records", map[string]any{"source": "email"}, nil)
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestPostAnswer(t *testing.T) {
	env := newEnv()
	var (
		nOpts int
		query string
	)
	env.answerer.answerFunc = func(ctx context.Context, owner model.OwnerID, q string, opts ...answer.QueryOption) (*model.Answer, error) {
		gt.Equal(t, owner, model.OwnerID("u-1"))
		query = q
		nOpts = len(opts)
		return &model.Answer{
			Text:    "Tuesday at 7:40.",
			Used:    []model.UsedEntry{{EntryID: "e-1", Rank: 1, Score: 0.9, Mode: model.PrivacyModeAnonymized}},
			Dropped: 1,
		}, nil
	}
	h := env.handler()

	w := do(t, h, http.MethodPost, "/answer", map[string]any{
		"query":   "when is my flight?",
		"top_k":   4,
		"sources": []string{"email"},
		"since":   "2026-01-01T00:00:00Z",
	}, nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, query, "when is my flight?")
	gt.Equal(t, nOpts, 3)

	var resp model.Answer
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	gt.Equal(t, resp.Text, "Tuesday at 7:40.")
	gt.A(t, resp.Used).Length(1)
	gt.Equal(t, resp.Dropped, 1)

	w = do(t, h, http.MethodPost, "/answer", map[string]any{"query": "anything"}, nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, query, "anything")
	gt.Equal(t, nOpts, 0)
}

func TestPostAnswerEmptyIndex(t *testing.T) {
	env := newEnv()
	env.answerer.answerFunc = func(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error) {
		return &model.Answer{Text: "I don't know."}, nil
	}

	w := do(t, env.handler(), http.MethodPost, "/answer", map[string]any{"query": "q"}, nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains(`"used":[]`)
}

func TestPostAnswerErrors(t *testing.T) {
	cases := map[string]struct {
		body   any
		err    error
		status int
		msg    string
	}{
		"missing query":   {body: map[string]any{"query": ""}, status: http.StatusBadRequest},
		"top_k too large": {body: map[string]any{"query": "q", "top_k": 1000}, status: http.StatusBadRequest},
		"unknown source":  {body: map[string]any{"query": "q", "sources": []string{"fax"}}, status: http.StatusBadRequest},
		"inverted range": {
			body:   map[string]any{"query": "q", "since": "2026-02-01T00:00:00Z", "until": "2026-01-01T00:00:00Z"},
			status: http.StatusBadRequest,
		},
		"embedding down": {
			body:   map[string]any{"query": "q"},
			err:    goerr.Wrap(model.ErrEmbeddingServiceUnavailable, "timeout"),
			status: http.StatusServiceUnavailable,
			msg:    "embedding service unavailable",
		},
		"completion down": {
			body:   map[string]any{"query": "q"},
			err:    goerr.Wrap(model.ErrCompletionServiceUnavailable, "timeout"),
			status: http.StatusServiceUnavailable,
			msg:    "completion service unavailable",
		},
		"blank query": {
			body:   map[string]any{"query": "   "},
			err:    goerr.Wrap(answer.ErrEmptyQuery, "blank"),
			status: http.StatusBadRequest,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			env := newEnv()
			env.answerer.answerFunc = func(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error) {
				if tc.err == nil {
					t.Error("invalid request must not reach the orchestrator")
				}
				return nil, tc.err
			}

			w := do(t, env.handler(), http.MethodPost, "/answer", tc.body, nil)
			gt.Equal(t, w.Code, tc.status)
			if tc.msg != "" {
				gt.S(t, w.Body.String()).Contains(tc.msg)
			}
		})
	}
}

func TestMode(t *testing.T) {
	env := newEnv()
	stored := model.PrivacyModeAnonymized
	env.lifecycle.modeFunc = func(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error) {
		return stored, nil
	}
	env.lifecycle.setModeFunc = func(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error {
		stored = mode
		return nil
	}
	h := env.handler()

	w := do(t, h, http.MethodGet, "/settings/mode", nil, nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.S(t, w.Body.String()).Contains(`"mode":"anonymized"`)

	w = do(t, h, http.MethodPut, "/settings/mode", map[string]string{"mode": "raw"}, nil)
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, stored, model.PrivacyModeRaw)

	w = do(t, h, http.MethodPut, "/settings/mode", map[string]string{"mode": "clear"}, nil)
	gt.Equal(t, w.Code, http.StatusBadRequest)
	gt.Equal(t, stored, model.PrivacyModeRaw)
}

func TestLogoutAndDelete(t *testing.T) {
	env := newEnv()
	var calls []string
	env.lifecycle.logoutFunc = func(ctx context.Context, owner model.OwnerID) (int, error) {
		calls = append(calls, "logout:"+string(owner))
		return 3, nil
	}
	env.lifecycle.deleteDataFunc = func(ctx context.Context, owner model.OwnerID) (int, error) {
		calls = append(calls, "delete:"+string(owner))
		return 0, nil
	}
	h := env.handler()

	w := do(t, h, http.MethodPost, "/logout", nil, nil)
	gt.Equal(t, w.Code, http.StatusNoContent)

	w = do(t, h, http.MethodDelete, "/data", nil, nil)
	gt.Equal(t, w.Code, http.StatusNoContent)

	gt.Equal(t, calls, []string{"logout:u-1", "delete:u-1"})
}
