// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM chat providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (Response, error)

	// ChatWithFormat sends a chat completion request with a response format.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (Response, error)
}

// Embedder produces vector embeddings for text. Implemented by providers
// that expose an embeddings endpoint; used by the embedding-cosine
// novelty scorer.
type Embedder interface {
	// Embed returns one embedding vector per input string.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
