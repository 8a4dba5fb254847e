package llm

import "context"

// StaticAdapter is an in-process Adapter that returns pre-scripted
// completions, used by tests and offline demos so the Controller's
// workflow logic can be exercised without a real inference backend.
type StaticAdapter struct {
	// Responses is consumed in FIFO order by Generate and RunWithPrompt.
	// When exhausted, Default is returned instead.
	Responses []string
	Default   string

	calls int
	// Prompts records every (system, user) pair RunWithPrompt was called
	// with, and every message slice Generate was called with, so tests can
	// assert on what the Controller actually asked for.
	Prompts []PromptCall
}

// PromptCall records one call into the StaticAdapter, for test assertions.
type PromptCall struct {
	Messages []Message
	System   string
	User     string
}

func (a *StaticAdapter) next() string {
	if a.calls < len(a.Responses) {
		r := a.Responses[a.calls]
		a.calls++
		return r
	}
	return a.Default
}

func (a *StaticAdapter) Generate(ctx context.Context, messages []Message, maxNewTokens int) (string, error) {
	a.Prompts = append(a.Prompts, PromptCall{Messages: messages})
	return a.next(), nil
}

func (a *StaticAdapter) RunWithPrompt(ctx context.Context, systemPrompt, userContent string) (string, error) {
	a.Prompts = append(a.Prompts, PromptCall{System: systemPrompt, User: userContent})
	return a.next(), nil
}

func (a *StaticAdapter) Reset(ctx context.Context) error { return nil }

func (a *StaticAdapter) Load(ctx context.Context, modelName string) error { return nil }
