package llm

import (
	"context"
	"fmt"
)

// IntentClassifier classifies a human's answer to a pending approval
// prompt into one of {positive, negative, revise, direct}, grounded on the
// original supervisor's utils/intent.py IntentClassifier.
type IntentClassifier struct {
	adapter Adapter
	prompts PromptSet
}

// NewIntentClassifier returns an IntentClassifier backed by adapter, using
// prompts["intent_classifier"] as the system prompt.
func NewIntentClassifier(adapter Adapter, prompts PromptSet) *IntentClassifier {
	return &IntentClassifier{adapter: adapter, prompts: prompts}
}

var intentCandidates = []string{"positive", "negative", "revise", "direct"}

// GetIntent classifies answer, optionally paired with the question it
// answers (folded into a "Q: ...\nA: ..." turn exactly as the original
// does). An LLM response matching none of the candidates falls back to
// "negative", the original's miss default, so an unparseable answer never
// silently advances a workflow.
func (c *IntentClassifier) GetIntent(ctx context.Context, answer, question string) (string, error) {
	content := answer
	if question != "" {
		content = fmt.Sprintf("Q: %s\nA: %s", question, answer)
	}

	messages := []Message{
		{Role: "system", Content: c.prompts.Prompt("intent_classifier")},
		{Role: "user", Content: content},
	}
	raw, err := c.adapter.Generate(ctx, messages, 8)
	if err != nil {
		return "", fmt.Errorf("llm: intent generate: %w", err)
	}

	cand, ok := firstMatch(raw, intentCandidates)
	if !ok {
		return "negative", nil
	}
	return cand, nil
}
