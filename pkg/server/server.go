// Package server exposes the context pipeline over HTTP. Callers are
// authenticated upstream; the owner arrives in the X-Owner-ID header.
package server

import (
	"context"
	"net/http"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OwnerHeader carries the authenticated owner id.
const OwnerHeader = "X-Owner-ID"

type Ingester interface {
	Ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error)
}

type Enqueuer interface {
	Enqueue(owner model.OwnerID, source model.Source, payload []byte) error
}

type Answerer interface {
	Answer(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error)
}

type Lifecycle interface {
	Logout(ctx context.Context, owner model.OwnerID) (int, error)
	DeleteData(ctx context.Context, owner model.OwnerID) (int, error)
	SetMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error
	Mode(ctx context.Context, owner model.OwnerID) (model.PrivacyMode, error)
}

type Server struct {
	ingester  Ingester
	queue     Enqueuer
	answerer  Answerer
	lifecycle Lifecycle
	authToken string
}

type Option func(*Server)

// WithAuthToken enables Bearer token authentication.
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.authToken = token
	}
}

// WithQueue enables background ingestion. Without a queue every record is
// ingested inline.
func WithQueue(q Enqueuer) Option {
	return func(s *Server) {
		s.queue = q
	}
}

func New(ingester Ingester, answerer Answerer, lifecycle Lifecycle, opts ...Option) *Server {
	s := &Server{
		ingester:  ingester,
		answerer:  answerer,
		lifecycle: lifecycle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.authToken))
		r.Use(ownerMiddleware)

		r.Post("/records", s.postRecord)
		r.Post("/answer", s.postAnswer)
		r.Get("/settings/mode", s.getMode)
		r.Put("/settings/mode", s.putMode)
		r.Post("/logout", s.postLogout)
		r.Delete("/data", s.deleteData)
	})

	return r
}
