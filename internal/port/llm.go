package port

import "context"

// Message is one role/content pair sent to a chat model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fragment is one element of a model stream. A well-formed stream ends with a
// fragment whose Done is true; a stream that closes without one was truncated.
type Fragment struct {
	Text string
	Done bool
	Err  error
}

// LLM represents a streaming chat model.
type LLM interface {
	// Stream starts a completion. The returned channel is closed after the
	// final fragment. Cancelling ctx aborts the in-flight request.
	Stream(ctx context.Context, messages []Message) (<-chan Fragment, error)

	// ListModels returns the model ids the provider exposes.
	ListModels(ctx context.Context) ([]string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
