// Package mcp serves the context pipeline of one owner as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/answer"
	"github.com/AnthonyCampos1234/Facsimile/pkg/usecase/ingest"
	"github.com/AnthonyCampos1234/Facsimile/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type Ingester interface {
	Ingest(ctx context.Context, owner model.OwnerID, source model.Source, payload []byte) (*ingest.Result, error)
}

type Answerer interface {
	Answer(ctx context.Context, owner model.OwnerID, query string, opts ...answer.QueryOption) (*model.Answer, error)
}

type Lifecycle interface {
	Logout(ctx context.Context, owner model.OwnerID) (int, error)
	DeleteData(ctx context.Context, owner model.OwnerID) (int, error)
	SetMode(ctx context.Context, owner model.OwnerID, mode model.PrivacyMode) error
}

// Server exposes ask, ingest_record, set_privacy_mode and forget_me for a
// single owner.
type Server struct {
	owner     model.OwnerID
	ingester  Ingester
	answerer  Answerer
	lifecycle Lifecycle
	server    *mcp.Server
}

func New(owner model.OwnerID, ingester Ingester, answerer Answerer, lifecycle Lifecycle, version string) *Server {
	s := &Server{
		owner:     owner,
		ingester:  ingester,
		answerer:  answerer,
		lifecycle: lifecycle,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "facsimile",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using the user's recent emails, calendar events and transactions",
	}, s.ask)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_record",
		Description: "Add one email, calendar event or transaction to the user's context",
	}, s.ingestRecord)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_privacy_mode",
		Description: "Choose how records ingested from now on are stored: raw (encrypted) or anonymized (summary only)",
	}, s.setPrivacyMode)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forget_me",
		Description: "Delete everything held for the user",
	}, s.forgetMe)

	return s
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	logging.From(ctx).Info("mcp server started", "owner_id", s.owner)
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Connect serves a single session over transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult reports err to the model without its wrapped values, which
// may carry record content.
func errorResult(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	var msg string
	switch {
	case errors.Is(err, model.ErrMalformedSourceData):
		msg = "the record is malformed"
	case errors.Is(err, model.ErrInvalidPrivacyMode):
		msg = "mode must be raw or anonymized"
	case errors.Is(err, answer.ErrEmptyQuery):
		msg = "query is required"
	case errors.Is(err, model.ErrEmbeddingServiceUnavailable):
		msg = "the embedding service is unavailable, try again later"
	case errors.Is(err, model.ErrCompletionServiceUnavailable):
		msg = "the completion service is unavailable, try again later"
	case model.IsRetryable(err):
		msg = "a dependency is unavailable, try again later"
	default:
		logging.From(ctx).Error("mcp tool failed", "tool", tool, "error", err)
		msg = "internal error"
	}

	res := textResult(msg)
	res.IsError = true
	return res
}

type askParams struct {
	Query   string   `json:"query" jsonschema:"Question to answer"`
	TopK    int      `json:"top_k,omitempty" jsonschema:"Maximum number of records to consider"`
	Sources []string `json:"sources,omitempty" jsonschema:"Restrict to these sources: email, calendar_event, transaction"`
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
	var opts []answer.QueryOption
	if params.TopK > 0 {
		opts = append(opts, answer.WithLimit(params.TopK))
	}
	if len(params.Sources) > 0 {
		sources := make([]model.Source, 0, len(params.Sources))
		for _, src := range params.Sources {
			source := model.Source(src)
			if err := source.Validate(); err != nil {
				return errorResult(ctx, "ask", err), nil, nil
			}
			sources = append(sources, source)
		}
		opts = append(opts, answer.WithSources(sources...))
	}

	resp, err := s.answerer.Answer(ctx, s.owner, params.Query, opts...)
	if err != nil {
		return errorResult(ctx, "ask", err), nil, nil
	}
	return textResult(resp.Text), nil, nil
}

type ingestParams struct {
	Source  string         `json:"source" jsonschema:"One of email, calendar_event, transaction"`
	Payload map[string]any `json:"payload" jsonschema:"Provider payload of the record"`
}

func (s *Server) ingestRecord(ctx context.Context, req *mcp.CallToolRequest, params *ingestParams) (*mcp.CallToolResult, any, error) {
	raw, err := json.Marshal(params.Payload)
	if err != nil {
		return errorResult(ctx, "ingest_record", goerr.Wrap(model.ErrMalformedSourceData, "payload is not encodable")), nil, nil
	}

	result, err := s.ingester.Ingest(ctx, s.owner, model.Source(params.Source), raw)
	if err != nil {
		return errorResult(ctx, "ingest_record", err), nil, nil
	}
	if result.Skipped {
		return textResult("skipped: " + result.Reason), nil, nil
	}
	return textResult(fmt.Sprintf("stored %s in %s mode", result.Key, result.Mode)), nil, nil
}

type modeParams struct {
	Mode string `json:"mode" jsonschema:"raw or anonymized"`
}

func (s *Server) setPrivacyMode(ctx context.Context, req *mcp.CallToolRequest, params *modeParams) (*mcp.CallToolResult, any, error) {
	mode := model.PrivacyMode(strings.ToLower(strings.TrimSpace(params.Mode)))
	if err := s.lifecycle.SetMode(ctx, s.owner, mode); err != nil {
		return errorResult(ctx, "set_privacy_mode", err), nil, nil
	}
	return textResult(fmt.Sprintf("privacy mode set to %s for new records", mode)), nil, nil
}

type forgetParams struct {
	KeepSettings bool `json:"keep_settings,omitempty" jsonschema:"Keep the privacy mode setting and only drop indexed records"`
}

func (s *Server) forgetMe(ctx context.Context, req *mcp.CallToolRequest, params *forgetParams) (*mcp.CallToolResult, any, error) {
	var (
		n   int
		err error
	)
	if params.KeepSettings {
		n, err = s.lifecycle.Logout(ctx, s.owner)
	} else {
		n, err = s.lifecycle.DeleteData(ctx, s.owner)
	}
	if err != nil {
		return errorResult(ctx, "forget_me", err), nil, nil
	}
	return textResult(fmt.Sprintf("deleted %d records", n)), nil, nil
}
