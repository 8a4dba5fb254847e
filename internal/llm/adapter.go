// Package llm isolates the Controller from the language-model inference
// backend behind a narrow Adapter interface, and builds the Command Router
// and Intent Classifier on top of it.
package llm

import "context"

// Message is one turn of a chat-completion conversation, mirroring the
// teacher's openaiMessage shape (internal/protocol/openai_parser.go) down
// to field meaning, trimmed to what this repo's prompts actually use.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Adapter is the seam between the Controller and whatever serves
// completions. Production code talks to an OpenAI-compatible HTTP
// endpoint; tests and offline demos use a canned, in-process adapter.
type Adapter interface {
	// Generate returns a short completion for messages, used by the
	// Command Router and Intent Classifier, which only need a handful of
	// tokens to recover one of a small closed vocabulary.
	Generate(ctx context.Context, messages []Message, maxNewTokens int) (string, error)

	// RunWithPrompt runs a named prompt (git/summarize_experiment/edit/
	// conversation, ...) against the system prompt text looked up by the
	// caller, returning the full completion text.
	RunWithPrompt(ctx context.Context, systemPrompt, userContent string) (string, error)

	// Reset clears any server-side conversation state the backend keeps
	// for this client, if the backend is stateful. Adapters that are
	// stateless may implement this as a no-op.
	Reset(ctx context.Context) error

	// Load asks the backend to (re)load a given model identifier before
	// serving further requests. Adapters that only ever serve one fixed
	// model may implement this as a no-op.
	Load(ctx context.Context, modelName string) error
}
