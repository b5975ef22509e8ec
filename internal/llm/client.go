// Package llm provides the model-call capability used by every stage of the
// benchmark: topology specialists and synthesis (the generator) and blind
// evaluation plus retrospectives (the judge). Clients are constructed from
// explicit config objects; there is no package-level key or client cache.
package llm

import (
	"context"
	"time"
)

// Usage is the token accounting for a single call. Zero when the provider
// omits usage data.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completion is the result of one model call.
type Completion struct {
	Text    string        `json:"text"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Usage   Usage         `json:"usage"`
}

// Client is a minimal text-in text-out model client.
type Client interface {
	// Complete sends a single-turn prompt and returns the model's text.
	Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error)
	// Model identifies the underlying model, for result records.
	Model() string
}

// UsageSummary aggregates usage across the calls of a run.
type UsageSummary struct {
	Calls            int `json:"calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add folds one call's usage into the summary.
func (s *UsageSummary) Add(u Usage) {
	s.Calls++
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
}

// Merge folds another summary into this one.
func (s *UsageSummary) Merge(o UsageSummary) {
	s.Calls += o.Calls
	s.PromptTokens += o.PromptTokens
	s.CompletionTokens += o.CompletionTokens
}
