package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/adapter"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func newGemini(t *testing.T) *adapter.GeminiClient {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	client, err := adapter.NewGemini(context.Background(), projectID, location)
	gt.NoError(t, err)
	return client
}

func TestGenerateContent(t *testing.T) {
	client := newGemini(t)
	ctx := context.Background()

	contents := []*genai.Content{
		genai.NewContentFromText("Reply with the single word: ready", genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, contents, nil)
	gt.NoError(t, err)

	text := adapter.ResponseText(resp)
	gt.NotEqual(t, text, "")
	t.Log("response:", text)
}

func TestEmbedding(t *testing.T) {
	client := newGemini(t)
	ctx := context.Background()

	vector, err := client.Embedding(ctx, "meeting with the finance team on tuesday", 256)
	gt.NoError(t, err)
	gt.A(t, vector).Length(256)
	gt.Equal(t, client.EmbeddingModel(), "gemini-embedding-001")
}

func TestResponseText(t *testing.T) {
	gt.Equal(t, adapter.ResponseText(nil), "")
	gt.Equal(t, adapter.ResponseText(&genai.GenerateContentResponse{}), "")

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "hello "}, nil, {Text: "world"}}}},
		},
	}
	gt.Equal(t, adapter.ResponseText(resp), "hello world")
}
