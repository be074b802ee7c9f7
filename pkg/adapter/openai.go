package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI is the interface for OpenAI-compatible chat and embedding APIs
type OpenAI interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	Embedding(ctx context.Context, text string, dimensions int) ([]float32, error)
	EmbeddingModel() string
}

type openAIClient struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
}

type OpenAIOption func(*openAIClient)

func WithOpenAIChatModel(model string) OpenAIOption {
	return func(c *openAIClient) {
		if model != "" {
			c.chatModel = model
		}
	}
}

func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(c *openAIClient) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// NewOpenAI creates a client. baseURL may point to any OpenAI-compatible
// endpoint; empty uses the default.
func NewOpenAI(apiKey, baseURL string, opts ...OpenAIOption) OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	c := &openAIClient{
		client:         openai.NewClient(reqOpts...),
		chatModel:      "gpt-4o",
		embeddingModel: "text-embedding-3-small",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *openAIClient) Chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.chatModel),
		Messages: messages,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat completion", goerr.V("model", c.chatModel))
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("no choices in chat completion", goerr.V("model", c.chatModel))
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	}
	if dimensions > 0 {
		params.Dimensions = openai.Int(int64(dimensions))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding", goerr.V("model", c.embeddingModel))
	}
	if len(resp.Data) == 0 {
		return nil, goerr.New("no embedding in response", goerr.V("model", c.embeddingModel))
	}

	values := resp.Data[0].Embedding
	vector := make([]float32, len(values))
	for i, v := range values {
		vector[i] = float32(v)
	}
	return vector, nil
}

func (c *openAIClient) EmbeddingModel() string {
	return c.embeddingModel
}
