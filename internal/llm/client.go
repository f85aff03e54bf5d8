// Package llm provides the language-model clients used by the intent
// classifier's fallback path. The pipeline never requires an LLM for the
// common case; every client here is a safety net behind the deterministic
// ruleset.
package llm

import "context"

// Client is the provider-agnostic completion interface. CompleteJSON must
// return a raw JSON document (no markdown fences).
type Client interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Close() error
}

// Provider names accepted in configuration
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)
