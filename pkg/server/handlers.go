package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/AnthonyCampos1234/Facsimile/pkg/config"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxBodySize = 10 << 20

var sourceRule = validation.In(model.SourceEmail, model.SourceCalendarEvent, model.SourceTransaction)

type recordRequest struct {
	Source  model.Source    `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

func (r recordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required, sourceRule),
		validation.Field(&r.Payload, validation.Required),
	)
}

type answerRequest struct {
	Query   string         `json:"query"`
	TopK    int            `json:"top_k"`
	Sources []model.Source `json:"sources"`
	Since   *time.Time     `json:"since"`
	Until   *time.Time     `json:"until"`
}

func (r answerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.TopK, validation.Min(0), validation.Max(config.MaxTopK)),
		validation.Field(&r.Sources, validation.Each(sourceRule)),
		validation.Field(&r.Until, validation.When(r.Since != nil && r.Until != nil,
			validation.By(func(any) error {
				if r.Until.Before(*r.Since) {
					return validation.NewError("validation_until_before_since", "must not be before since")
				}
				return nil
			}))),
	)
}

type modeRequest struct {
	Mode model.PrivacyMode `json:"mode"`
}

func (r modeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.Required,
			validation.In(model.PrivacyModeRaw, model.PrivacyModeAnonymized)),
	)
}

type modeResponse struct {
	Mode model.PrivacyMode `json:"mode"`
}

type queuedResponse struct {
	Status string `json:"status"`
}

func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// postRecord handles POST /records. With ?sync=true the record is ingested
// before responding, otherwise it is queued.
func (s *Server) postRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	owner := ownerFrom(ctx)

	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	if sync || s.queue == nil {
		result, err := s.ingester.Ingest(ctx, owner, req.Source, req.Payload)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusCreated
		if result.Skipped {
			status = http.StatusOK
		}
		writeJSON(w, status, result)
		return
	}

	if err := s.queue.Enqueue(owner, req.Source, req.Payload); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued"})
}

// postAnswer handles POST /answer.
func (s *Server) postAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}

	var opts []answer.QueryOption
	if req.TopK > 0 {
		opts = append(opts, answer.WithLimit(req.TopK))
	}
	if len(req.Sources) > 0 {
		opts = append(opts, answer.WithSources(req.Sources...))
	}
	if req.Since != nil || req.Until != nil {
		var since, until time.Time
		if req.Since != nil {
			since = *req.Since
		}
		if req.Until != nil {
			until = *req.Until
		}
		opts = append(opts, answer.WithTimeRange(since, until))
	}

	ctx := r.Context()
	resp, err := s.answerer.Answer(ctx, ownerFrom(ctx), req.Query, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Used == nil {
		resp.Used = []model.UsedEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mode, err := s.lifecycle.Mode(ctx, ownerFrom(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse{Mode: mode})
}

func (s *Server) putMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := s.lifecycle.SetMode(ctx, ownerFrom(ctx), req.Mode); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, modeResponse(req))
}

func (s *Server) postLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := s.lifecycle.Logout(ctx, ownerFrom(ctx)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := s.lifecycle.DeleteData(ctx, ownerFrom(ctx)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
