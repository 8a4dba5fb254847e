package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// PromptSet is the set of system prompts the Command Router, Intent
// Classifier, and GitHandler look up by name (classifier,
// intent_classifier, git, summarize_experiment, edit, conversation),
// matching the original supervisor's sysprompts dict.
type PromptSet struct {
	prompts map[string]string
}

// Prompt returns the named prompt, or "" if not configured. It satisfies
// the llm.PromptSet and workflow.GitHandler prompt lookup contracts.
func (p PromptSet) Prompt(name string) string {
	return p.prompts[name]
}

// LoadPrompts resolves a PromptSet from cfg: a YAML file at cfg.Path takes
// precedence, falling back to the cfg.Inline map when no path is set.
func LoadPrompts(cfg PromptsConfig) (PromptSet, error) {
	if cfg.Path != "" {
		f, err := os.Open(cfg.Path)
		if err != nil {
			return PromptSet{}, fmt.Errorf("config: open prompts file %s: %w", cfg.Path, err)
		}
		defer f.Close()

		var prompts map[string]string
		if err := yaml.NewDecoder(f).Decode(&prompts); err != nil {
			return PromptSet{}, fmt.Errorf("config: decode prompts file %s: %w", cfg.Path, err)
		}
		return PromptSet{prompts: prompts}, nil
	}
	return PromptSet{prompts: cfg.Inline}, nil
}
