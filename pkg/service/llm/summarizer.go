package llm

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
	"text/template"

	"github.com/AnthonyCampos1234/Facsimile/pkg/adapter"
	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/summarize.md
var summarizePromptRaw string

var summarizePromptTmpl = template.Must(template.New("summarize").Parse(summarizePromptRaw))

type summaryResponse struct {
	Summary     string               `json:"summary" jsonschema:"Short summary of the record"`
	Identifiers []identifierResponse `json:"identifiers" jsonschema:"Identifiers that appear in the summary"`
}

type identifierResponse struct {
	Text string `json:"text" jsonschema:"Identifier exactly as written in the summary"`
	Kind string `json:"kind" jsonschema:"Identifier category"`
}

var identifierKinds = []model.IdentifierKind{
	model.IdentifierPerson,
	model.IdentifierEmail,
	model.IdentifierPhone,
	model.IdentifierAccount,
	model.IdentifierOrganization,
	model.IdentifierLocation,
	model.IdentifierNationalID,
}

// summaryResponseSchema derives the structured output schema from
// summaryResponse and pins the identifier kinds.
func summaryResponseSchema() (*genai.Schema, error) {
	js, err := jsonschema.For[summaryResponse](nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to infer summary schema")
	}

	if ids, ok := js.Properties["identifiers"]; ok && ids.Items != nil {
		if kind, ok := ids.Items.Properties["kind"]; ok {
			for _, k := range identifierKinds {
				kind.Enum = append(kind.Enum, string(k))
			}
		}
	}

	return convertJSONSchemaToGenai(js)
}

// GeminiSummarizer summarizes records with Gemini structured output.
type GeminiSummarizer struct {
	gemini       adapter.Gemini
	schema       *genai.Schema
	maxSentences int
}

var _ interfaces.Summarizer = (*GeminiSummarizer)(nil)

func NewGeminiSummarizer(gemini adapter.Gemini) (*GeminiSummarizer, error) {
	schema, err := summaryResponseSchema()
	if err != nil {
		return nil, err
	}
	return &GeminiSummarizer{
		gemini:       gemini,
		schema:       schema,
		maxSentences: 3,
	}, nil
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, source model.Source, text string) (*model.Summary, error) {
	var buf bytes.Buffer
	if err := summarizePromptTmpl.Execute(&buf, map[string]any{
		"Source":       source.Label(),
		"MaxSentences": s.maxSentences,
		"Record":       text,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute summarize prompt template")
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   s.schema,
		Temperature:      genai.Ptr(float32(0)),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(buf.String(), genai.RoleUser)}
	resp, err := s.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate summary")
	}

	raw := adapter.ResponseText(resp)
	if raw == "" {
		return nil, goerr.New("empty summary response")
	}

	var out summaryResponse
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, goerr.Wrap(err, "failed to parse summary response")
	}

	return &model.Summary{
		Text:        out.Summary,
		Identifiers: locateIdentifiers(out.Summary, out.Identifiers),
	}, nil
}

// locateIdentifiers turns identifier strings into spans of summary.
// Identifiers that do not occur in it are dropped, and only the first
// occurrence is reported since substitution covers every occurrence.
func locateIdentifiers(summary string, ids []identifierResponse) []model.IdentifierSpan {
	lower := strings.ToLower(summary)
	seen := make(map[string]bool)
	var spans []model.IdentifierSpan

	for _, id := range ids {
		literal := strings.TrimSpace(id.Text)
		if literal == "" || seen[strings.ToLower(literal)] {
			continue
		}
		seen[strings.ToLower(literal)] = true

		start := strings.Index(summary, literal)
		if start < 0 {
			start = strings.Index(lower, strings.ToLower(literal))
		}
		if start < 0 {
			continue
		}

		spans = append(spans, model.IdentifierSpan{
			Start: start,
			End:   start + len(literal),
			Kind:  parseKind(id.Kind),
		})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

func parseKind(s string) model.IdentifierKind {
	k := model.IdentifierKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range identifierKinds {
		if k == known {
			return k
		}
	}
	// unknown categories fall back to person
	return model.IdentifierPerson
}
