package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// OPENAI-COMPATIBLE CLIENT (generator)
// =============================================================================

const (
	// DefaultGeneratorBaseURL targets the Cerebras OpenAI-compatible endpoint.
	DefaultGeneratorBaseURL = "https://api.cerebras.ai/v1"
	// DefaultGeneratorModel is the model every organization member runs on.
	// One model for all roles keeps topology comparisons about structure, not
	// model strength.
	DefaultGeneratorModel = "zai-glm-4.7"
)

// OpenAIConfig configures an OpenAI-compatible chat client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns the Cerebras generator configuration.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  apiKey,
		BaseURL: DefaultGeneratorBaseURL,
		Model:   DefaultGeneratorModel,
		Timeout: 120 * time.Second,
	}
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client from the given config.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai-compatible client: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeneratorModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}, nil
}

// Complete sends a single user message and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion (%s): %w", c.model, err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("chat completion (%s): empty choices", c.model)
	}

	return Completion{
		Text:    resp.Choices[0].Message.Content,
		Elapsed: time.Since(start),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string {
	return c.model
}
