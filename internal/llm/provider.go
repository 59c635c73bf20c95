package llm

import "context"

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "ollama", "openai").
	Name() string
}

// RequestOptions carries per-call overrides for a completion request.
// Nil fields fall back to provider defaults.
type RequestOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	StopSeqs    []string
}

// Float64 returns a pointer to v, for use in RequestOptions literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for use in RequestOptions literals.
func Int(v int) *int { return &v }
