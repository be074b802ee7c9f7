package llm

import (
	"context"
	"strings"

	"github.com/AnthonyCampos1234/Facsimile/pkg/adapter"
	"github.com/AnthonyCampos1234/Facsimile/pkg/interfaces"
	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// GeminiCompleter answers prompts with Gemini.
type GeminiCompleter struct {
	gemini adapter.Gemini
}

var _ interfaces.Completer = (*GeminiCompleter)(nil)

func NewGeminiCompleter(gemini adapter.Gemini) *GeminiCompleter {
	return &GeminiCompleter{gemini: gemini}
}

func (c *GeminiCompleter) Complete(ctx context.Context, req *model.CompletionRequest) (string, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, "")
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := c.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", err
	}

	text := adapter.ResponseText(resp)
	if text == "" {
		return "", goerr.New("empty completion from gemini")
	}
	return text, nil
}

// ClaudeCompleter answers prompts with Claude.
type ClaudeCompleter struct {
	claude adapter.Claude
}

var _ interfaces.Completer = (*ClaudeCompleter)(nil)

func NewClaudeCompleter(claude adapter.Claude) *ClaudeCompleter {
	return &ClaudeCompleter{claude: claude}
}

func (c *ClaudeCompleter) Complete(ctx context.Context, req *model.CompletionRequest) (string, error) {
	msg, err := c.claude.Chat(ctx, req.System, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", goerr.New("empty completion from claude", goerr.V("stop_reason", msg.StopReason))
	}
	return b.String(), nil
}

// OpenAICompleter answers prompts with an OpenAI compatible chat API.
type OpenAICompleter struct {
	client adapter.OpenAI
}

var _ interfaces.Completer = (*OpenAICompleter)(nil)

func NewOpenAICompleter(client adapter.OpenAI) *OpenAICompleter {
	return &OpenAICompleter{client: client}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req *model.CompletionRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	text, err := c.client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", goerr.New("empty completion from openai")
	}
	return text, nil
}
