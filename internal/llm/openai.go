package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"medtriage/internal/logger"
)

// ErrUnavailable is returned once every model in the fallback chain has
// failed. Callers recover locally with placeholder text; this error never
// fails an intake-completion transition.
var ErrUnavailable = errors.New("summarization unavailable")

// summaryInstruction constrains the model to a descriptive clinical note.
const summaryInstruction = "You are a medical intake assistant. " +
	"Your only task is to summarize the patient's answers into a short, professional note for a nurse. " +
	"Describe the symptoms and current situation clearly. " +
	"Strictly forbidden: do not provide medical advice, suggestions, diagnoses, or care plans."

// Client is the summarization collaborator consumed by the core. The core
// treats any failure as recoverable.
type Client interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// OpenAIClient generates intake summaries through the OpenAI chat API,
// trying each configured model in order before giving up.
type OpenAIClient struct {
	client         *openai.Client
	models         []string
	attemptTimeout time.Duration
}

// NewOpenAIClient constructs the summarizer. models are tried in order;
// attemptTimeout bounds each individual model call.
func NewOpenAIClient(apiKey string, models []string, attemptTimeout time.Duration) *OpenAIClient {
	if len(models) == 0 {
		models = []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	var c *openai.Client
	if apiKey != "" {
		c = openai.NewClient(apiKey)
	}
	return &OpenAIClient{client: c, models: models, attemptTimeout: attemptTimeout}
}

// Summarize walks the model fallback chain and returns the first non-empty
// completion. Each attempt has its own timeout so the chain always finishes
// in bounded time.
func (c *OpenAIClient) Summarize(ctx context.Context, prompt string) (string, error) {
	if c.client == nil {
		return "", ErrUnavailable
	}
	for _, model := range c.models {
		actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		resp, err := c.client.CreateChatCompletion(actx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: summaryInstruction},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.2,
		})
		cancel()
		if err != nil {
			logger.Warn("summary model failed", "model", model, "err", err)
			continue
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := strings.TrimSpace(resp.Choices[0].Message.Content); text != "" {
			return text, nil
		}
	}
	return "", ErrUnavailable
}
