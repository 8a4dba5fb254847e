package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/controller/internal/llm"
)

type fakePrompts map[string]string

func (f fakePrompts) Prompt(name string) string { return f[name] }

func TestExtractGitURL(t *testing.T) {
	assert.Equal(t, "https://github.com/example/repo.git",
		ExtractGitURL("please clone https://github.com/example/repo.git now"))
	assert.Equal(t, "", ExtractGitURL("no url here"))
}

func TestExtractRepoName(t *testing.T) {
	assert.Equal(t, "repo", ExtractRepoName("https://github.com/example/repo.git"))
	assert.Equal(t, "repo", ExtractRepoName("https://github.com/example/repo/"))
	assert.Equal(t, "repo", ExtractRepoName(""))
}

func TestSummarizeExperimentSplitsOnUserSummaryMarker(t *testing.T) {
	adapter := &llm.StaticAdapter{
		Responses: []string{"[System Summary]\nTrains a classifier.\n[User Summary]\nRun train.py to reproduce."},
	}
	g := NewGitHandler(adapter, fakePrompts{"summarize_experiment": "summarize"})

	summary, err := g.SummarizeExperiment(context.Background(), map[string]any{
		"files": []any{
			map[string]any{"filename": "train.py", "content": "print('hi')"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Trains a classifier.", summary.SystemSummary)
	assert.Equal(t, "Run train.py to reproduce.", summary.UserSummary)
	assert.Equal(t, "train.py", summary.ExecuteFile)
}

func TestSummarizeExperimentWithoutMarkerFallsBack(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"just a summary, no marker"}}
	g := NewGitHandler(adapter, fakePrompts{"summarize_experiment": "summarize"})

	summary, err := g.SummarizeExperiment(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "just a summary, no marker", summary.SystemSummary)
	assert.Equal(t, "No explicit User Summary found.", summary.UserSummary)
}

func TestGenerateEditTaskParsesFileSections(t *testing.T) {
	adapter := &llm.StaticAdapter{
		Responses: []string{"### train.py\nprint('v2')\n\n### utils.py\ndef f(): pass"},
	}
	g := NewGitHandler(adapter, fakePrompts{"edit": "edit"})

	edit, err := g.GenerateEditTask(context.Background(), "use v2", map[string]any{
		"files": []any{map[string]any{"filename": "train.py", "content": "print('v1')"}},
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"train.py", "utils.py"}, edit.Target)
	assert.Equal(t, "print('v2')", edit.Metadata["train.py"])
	assert.Equal(t, "def f(): pass", edit.Metadata["utils.py"])
}
