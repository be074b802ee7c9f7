package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Default().Error("json encode failed", "error", err)
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps pipeline errors to status codes. Messages never carry
// wrapped values since those may include record content.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrMalformedSourceData):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("malformed source data"))
	case errors.Is(err, model.ErrInvalidPrivacyMode):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid privacy mode"))
	case errors.Is(err, answer.ErrEmptyQuery):
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
	case errors.Is(err, ingest.ErrQueueFull), errors.Is(err, ingest.ErrWorkerStopped):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody("ingestion queue unavailable"))
	case model.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody(unavailableMessage(err)))
	default:
		logging.From(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func unavailableMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrEmbeddingServiceUnavailable):
		return "embedding service unavailable"
	case errors.Is(err, model.ErrCompletionServiceUnavailable):
		return "completion service unavailable"
	case errors.Is(err, model.ErrSummarizationUnavailable):
		return "summarization unavailable"
	default:
		return "encryption key unavailable"
	}
}
