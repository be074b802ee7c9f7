package llm_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/AnthonyCampos1234/Facsimile/pkg/service/llm"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/gt"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

type mockGemini struct {
	generateFunc  func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	embeddingFunc func(ctx context.Context, text string, dimensions int) ([]float32, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGemini) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	if m.embeddingFunc != nil {
		return m.embeddingFunc(ctx, text, dimensions)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGemini) EmbeddingModel() string { return "mock-embedding" }

type mockClaude struct {
	chatFunc func(ctx context.Context, system string, messages []anthropic.MessageParam) (*anthropic.Message, error)
}

func (m *mockClaude) Chat(ctx context.Context, system string, messages []anthropic.MessageParam) (*anthropic.Message, error) {
	return m.chatFunc(ctx, system, messages)
}

type mockOpenAI struct {
	chatFunc      func(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	embeddingFunc func(ctx context.Context, text string, dimensions int) ([]float32, error)
}

func (m *mockOpenAI) Chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.chatFunc(ctx, messages)
}

func (m *mockOpenAI) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	return m.embeddingFunc(ctx, text, dimensions)
}

func (m *mockOpenAI) EmbeddingModel() string { return "text-embedding-3-small" }

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestGeminiSummarizer(t *testing.T) {
	var gotConfig *genai.GenerateContentConfig
	var gotPrompt string
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotConfig = config
			gotPrompt = contents[0].Parts[0].Text
			return textResponse(`{
				"summary": "Dana Reyes asked Acme Corp to move the review. dana reyes will call back.",
				"identifiers": [
					{"text": "Dana Reyes", "kind": "person"},
					{"text": "Acme Corp", "kind": "organization"},
					{"text": "Nobody Here", "kind": "person"},
					{"text": "Dana Reyes", "kind": "person"}
				]
			}`), nil
		},
	}

	s, err := llm.NewGeminiSummarizer(gemini)
	gt.NoError(t, err)

	summary, err := s.Summarize(context.Background(), model.SourceEmail, "from: Dana Reyes\nsubject: review")
	gt.NoError(t, err)

	gt.S(t, gotPrompt).Contains("from: Dana Reyes")
	gt.S(t, gotPrompt).Contains("email")
	gt.Equal(t, gotConfig.ResponseMIMEType, "application/json")
	gt.Equal(t, gotConfig.ResponseSchema.Type, genai.TypeObject)

	ids := gotConfig.ResponseSchema.Properties["identifiers"]
	gt.V(t, ids).NotNil()
	gt.Equal(t, ids.Type, genai.TypeArray)
	gt.True(t, slices.Contains(ids.Items.Properties["kind"].Enum, "organization"))

	gt.A(t, summary.Identifiers).Length(2)
	first := summary.Identifiers[0]
	gt.Equal(t, summary.Text[first.Start:first.End], "Dana Reyes")
	gt.Equal(t, first.Kind, model.IdentifierPerson)
	second := summary.Identifiers[1]
	gt.Equal(t, summary.Text[second.Start:second.End], "Acme Corp")
	gt.Equal(t, second.Kind, model.IdentifierOrganization)
}

func TestGeminiSummarizerUnknownKind(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(`{"summary": "Met Kim at noon.", "identifiers": [{"text": "kim", "kind": "nickname"}]}`), nil
		},
	}
	s, err := llm.NewGeminiSummarizer(gemini)
	gt.NoError(t, err)

	summary, err := s.Summarize(context.Background(), model.SourceCalendarEvent, "title: lunch")
	gt.NoError(t, err)
	gt.A(t, summary.Identifiers).Length(1)
	span := summary.Identifiers[0]
	gt.Equal(t, summary.Text[span.Start:span.End], "Kim")
	gt.Equal(t, span.Kind, model.IdentifierPerson)
}

func TestGeminiSummarizerFailure(t *testing.T) {
	testCases := map[string]func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error){
		"api error": func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("quota exceeded")
		},
		"empty response": func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
		"not json": func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse("sorry, I cannot do that"), nil
		},
	}

	for name, fn := range testCases {
		t.Run(name, func(t *testing.T) {
			s, err := llm.NewGeminiSummarizer(&mockGemini{generateFunc: fn})
			gt.NoError(t, err)
			_, err = s.Summarize(context.Background(), model.SourceTransaction, "amount: 12.00")
			gt.Error(t, err)
		})
	}
}

func TestGeminiCompleter(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gt.Equal(t, config.SystemInstruction.Parts[0].Text, "be brief")
			gt.Equal(t, contents[0].Parts[0].Text, "the prompt")
			return textResponse("the answer"), nil
		},
	}

	text, err := llm.NewGeminiCompleter(gemini).Complete(context.Background(), &model.CompletionRequest{
		System: "be brief",
		Prompt: "the prompt",
	})
	gt.NoError(t, err)
	gt.Equal(t, text, "the answer")

	empty := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}
	_, err = llm.NewGeminiCompleter(empty).Complete(context.Background(), &model.CompletionRequest{Prompt: "p"})
	gt.Error(t, err)
}

func TestClaudeCompleter(t *testing.T) {
	claude := &mockClaude{
		chatFunc: func(ctx context.Context, system string, messages []anthropic.MessageParam) (*anthropic.Message, error) {
			gt.Equal(t, system, "be brief")
			gt.A(t, messages).Length(1)
			return &anthropic.Message{
				Content: []anthropic.ContentBlockUnion{
					{Type: "text", Text: "part one, "},
					{Type: "tool_use"},
					{Type: "text", Text: "part two"},
				},
			}, nil
		},
	}

	text, err := llm.NewClaudeCompleter(claude).Complete(context.Background(), &model.CompletionRequest{
		System: "be brief",
		Prompt: "the prompt",
	})
	gt.NoError(t, err)
	gt.Equal(t, text, "part one, part two")
}

func TestOpenAICompleter(t *testing.T) {
	client := &mockOpenAI{
		chatFunc: func(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
			gt.A(t, messages).Length(2)
			return "the answer", nil
		},
	}

	text, err := llm.NewOpenAICompleter(client).Complete(context.Background(), &model.CompletionRequest{
		System: "be brief",
		Prompt: "the prompt",
	})
	gt.NoError(t, err)
	gt.Equal(t, text, "the answer")

	failing := &mockOpenAI{
		chatFunc: func(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
			return "", errors.New("rate limited")
		},
	}
	_, err = llm.NewOpenAICompleter(failing).Complete(context.Background(), &model.CompletionRequest{Prompt: "p"})
	gt.Error(t, err)
}

func TestEmbedder(t *testing.T) {
	gemini := &mockGemini{
		embeddingFunc: func(ctx context.Context, text string, dimensions int) ([]float32, error) {
			gt.Equal(t, dimensions, 4)
			return []float32{1, 2, 3, 4}, nil
		},
	}

	e := llm.NewEmbedder(gemini, 4)
	vector, err := e.Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.A(t, vector).Length(4)
	gt.Equal(t, e.ModelVersion(), "mock-embedding@4")

	o := llm.NewEmbedder(&mockOpenAI{}, 256)
	gt.Equal(t, o.ModelVersion(), "text-embedding-3-small@256")
}
