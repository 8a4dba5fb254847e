package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentctl/controller/internal/llm"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// GitHandler wraps the LLM adapter for the two git-flow prompts
// (summarize_experiment, edit), grounded on the original Supervisor's
// GitHandler.extract_urls/summarize_experiment/generate_edit_task.
//
// The original also scraped a repo's README over HTTP before summarizing
// it (utils/web/web_manager.py); that concern has no SPEC_FULL.md
// component (the Controller never fetches arbitrary web content) and is
// dropped rather than force-fit, per DESIGN.md.
type GitHandler struct {
	adapter llm.Adapter
	prompts llm.PromptSet
}

// NewGitHandler returns a GitHandler backed by adapter and prompts.
func NewGitHandler(adapter llm.Adapter, prompts llm.PromptSet) *GitHandler {
	return &GitHandler{adapter: adapter, prompts: prompts}
}

// ExtractGitURL returns the first http(s) URL found in text, or "" if none.
func ExtractGitURL(text string) string {
	return urlPattern.FindString(text)
}

// ExtractRepoName derives a directory name from a git URL, stripping a
// trailing slash and ".git" suffix, matching the original's
// utils/git_utils.extract_repo_name. An empty URL yields "repo".
func ExtractRepoName(gitURL string) string {
	if gitURL == "" {
		return "repo"
	}
	trimmed := strings.TrimRight(gitURL, "/")
	parts := strings.Split(trimmed, "/")
	name := parts[len(parts)-1]
	return strings.TrimSuffix(name, ".git")
}

// ExperimentSummary is the result of SummarizeExperiment: a summary shown
// to the Bridge and one kept server-side, matching the original's
// {"system_summary", "user_summary"} dict, plus the execute file name the
// original folded into the same completion text.
type ExperimentSummary struct {
	SystemSummary string
	UserSummary   string
	ExecuteFile   string
}

// SummarizeExperiment asks the LLM to describe the cloned repository's
// Python files, splitting the completion on the "[User Summary]" marker
// exactly as the original did. pyFiles is the metadata map the Executor
// returned for read_py_files ({"files": [{"filename","content"}, ...]}).
func (g *GitHandler) SummarizeExperiment(ctx context.Context, pyFiles map[string]any) (*ExperimentSummary, error) {
	merged := mergeFileContents(pyFiles)

	raw, err := g.adapter.RunWithPrompt(ctx, g.prompts.Prompt("summarize_experiment"), merged)
	if err != nil {
		return nil, fmt.Errorf("workflow: summarize_experiment: %w", err)
	}

	summary := &ExperimentSummary{ExecuteFile: "train.py"}
	if idx := strings.Index(raw, "[User Summary]"); idx >= 0 {
		sysPart := strings.ReplaceAll(raw[:idx], "[System Summary]", "")
		summary.SystemSummary = strings.TrimSpace(sysPart)
		summary.UserSummary = strings.TrimSpace(raw[idx+len("[User Summary]"):])
	} else {
		summary.SystemSummary = strings.TrimSpace(raw)
		summary.UserSummary = "No explicit User Summary found."
	}
	return summary, nil
}

// EditTask is the result of GenerateEditTask: the set of files to edit and
// their new content, matching the original's
// {"action": "edit", "target": [...], "metadata": {...}}.
type EditTask struct {
	Target   []string
	Metadata map[string]any
}

// GenerateEditTask asks the LLM to propose file edits satisfying
// userRequest against the most recently read Python files, parsing the
// completion's "### filename" section markers exactly as the original
// generate_edit_task did.
func (g *GitHandler) GenerateEditTask(ctx context.Context, userRequest string, pyFiles map[string]any) (*EditTask, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %s", userRequest)
	for _, f := range fileList(pyFiles) {
		fmt.Fprintf(&b, "\n\n### %s\n%s", f.Filename, f.Content)
	}

	raw, err := g.adapter.RunWithPrompt(ctx, g.prompts.Prompt("edit"), b.String())
	if err != nil {
		return nil, fmt.Errorf("workflow: generate_edit_task: %w", err)
	}

	result := make(map[string]any)
	var target []string
	var currentFile string
	var buf []string

	flush := func() {
		if currentFile != "" && len(buf) > 0 {
			result[currentFile] = strings.TrimSpace(strings.Join(buf, "\n"))
			target = append(target, currentFile)
			buf = nil
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "### ") {
			flush()
			currentFile = strings.TrimSpace(strings.TrimPrefix(line, "### "))
		} else {
			buf = append(buf, line)
		}
	}
	flush()

	return &EditTask{Target: target, Metadata: result}, nil
}

type fileEntry struct {
	Filename string
	Content  string
}

// fileList normalizes the read_py_files metadata's "files" entry (a list
// of {"filename","content"} maps, as produced by the reference Executor)
// into a typed slice.
func fileList(pyFiles map[string]any) []fileEntry {
	if pyFiles == nil {
		return nil
	}
	raw, _ := pyFiles["files"].([]any)
	out := make([]fileEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["filename"].(string)
		content, _ := m["content"].(string)
		out = append(out, fileEntry{Filename: name, Content: content})
	}
	return out
}

func mergeFileContents(pyFiles map[string]any) string {
	var parts []string
	for _, f := range fileList(pyFiles) {
		parts = append(parts, fmt.Sprintf("### %s\n%s", f.Filename, f.Content))
	}
	return strings.Join(parts, "\n\n")
}
