package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z]+`)

// words lowercases raw and splits it into contiguous runs of a-z letters,
// discarding punctuation and digits. Unlike the original classifier's
// strip-then-substring check, this keeps word boundaries intact so a
// candidate only matches a whole token, never a fragment embedded inside a
// longer one.
func words(raw string) []string {
	return wordPattern.FindAllString(strings.ToLower(raw), -1)
}

// firstMatch returns the first candidate (in candidate order, not raw's
// word order) that appears as a whole word in raw, and true. If none
// appear, it returns "", false.
func firstMatch(raw string, candidates []string) (string, bool) {
	tokens := words(raw)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}
	for _, cand := range candidates {
		if tokenSet[cand] {
			return cand, true
		}
	}
	return "", false
}

// Router classifies free-form user text into one of {git, code, train,
// conversation}, grounded on the original refact_Supvervisor CommandRouter.
type Router struct {
	adapter Adapter
	prompts PromptSet
}

// PromptSet is the subset of the YAML prompts file the classifiers need,
// keyed the same way the original sysprompts dict was.
type PromptSet interface {
	Prompt(name string) string
}

// NewRouter returns a Router backed by adapter, using prompts["classifier"]
// as the system prompt.
func NewRouter(adapter Adapter, prompts PromptSet) *Router {
	return &Router{adapter: adapter, prompts: prompts}
}

var routerCandidates = []string{"git", "code", "train", "conversation"}

// GetCommand classifies userText, returning (command, persistent). Only
// "conversation" is persistent, matching the original's `persistent = cand
// in ["conversation"]`. An LLM response matching none of the candidates
// falls back to ("conversation", true), the same default the original
// returns on a miss.
func (r *Router) GetCommand(ctx context.Context, userText string) (command string, persistent bool, err error) {
	messages := []Message{
		{Role: "system", Content: r.prompts.Prompt("classifier")},
		{Role: "user", Content: userText},
	}
	raw, err := r.adapter.Generate(ctx, messages, 8)
	if err != nil {
		return "", false, fmt.Errorf("llm: router generate: %w", err)
	}

	cand, ok := firstMatch(raw, routerCandidates)
	if !ok {
		return "conversation", true, nil
	}
	return cand, cand == "conversation", nil
}
