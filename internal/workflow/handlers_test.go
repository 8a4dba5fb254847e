package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/controller/internal/llm"
	"github.com/agentctl/controller/internal/pending"
	"github.com/agentctl/controller/internal/protocol"
)

type fakeTaskSender struct {
	sent []*protocol.Task
}

func (f *fakeTaskSender) Send(task *protocol.Task) error {
	f.sent = append(f.sent, task)
	return nil
}

type fakeBridgeSender struct {
	sent []protocol.OutboundBridgeMessage
}

func (f *fakeBridgeSender) Send(msg protocol.OutboundBridgeMessage) {
	f.sent = append(f.sent, msg)
}

func newTestWorkflow(adapter llm.Adapter, prompts llm.PromptSet) (*Workflow, *fakeTaskSender, *fakeBridgeSender) {
	tasks := &fakeTaskSender{}
	bridge := &fakeBridgeSender{}
	tabs := NewTabs()
	w := &Workflow{
		Dispatcher: nil,
		Tasks:      tasks,
		Bridge:     bridge,
		Router:     llm.NewRouter(adapter, prompts),
		Intent:     llm.NewIntentClassifier(adapter, prompts),
		Git:        NewGitHandler(adapter, prompts),
		Adapter:    adapter,
		Prompts:    prompts,
		Tabs:       tabs,
		NewPending: func() *pending.Manager { return pending.NewManager(nil) },
	}
	return w, tasks, bridge
}

func TestHandleUserInputNormalGitRoutesCloneTask(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"git"}}
	w, tasks, _ := newTestWorkflow(adapter, fakePrompts{"classifier": "c"})

	err := w.handleUserInputNormal(context.Background(), UserInput{Text: "clone https://github.com/a/b.git"})

	require.NoError(t, err)
	require.Len(t, tasks.sent, 1)
	assert.Equal(t, "clone_repo", tasks.sent[0].Action)
	assert.Equal(t, "https://github.com/a/b.git", tasks.sent[0].Metadata["git_url"])
	assert.Equal(t, 1, tasks.sent[0].Metadata["tabId"])
}

func TestHandleUserInputNormalConversationRepliesOnBridge(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"conversation", "hello there"}}
	w, tasks, bridge := newTestWorkflow(adapter, fakePrompts{"classifier": "c", "conversation": "you are a helpful assistant"})

	err := w.handleUserInputNormal(context.Background(), UserInput{Text: "how are you"})

	require.NoError(t, err)
	assert.Empty(t, tasks.sent)
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, protocol.OutboundMainInput, bridge.sent[0].Type)
	assert.Equal(t, "hello there", bridge.sent[0].Text)
	require.Len(t, adapter.Prompts, 2)
	assert.Equal(t, "you are a helpful assistant", adapter.Prompts[1].System)
}

func TestHandleCloneOnSuccessRequestsReadPyFiles(t *testing.T) {
	adapter := &llm.StaticAdapter{}
	w, tasks, bridge := newTestWorkflow(adapter, fakePrompts{})
	tab := w.Tabs.New(w.NewPending)

	reply := &protocol.Reply{
		Command: "git",
		Action:  "clone_repo",
		Result:  protocol.ResultSuccess,
		Metadata: map[string]any{
			"git_url":  "https://github.com/a/b.git",
			"dir_path": "b",
			"tabId":    tab.TabID,
			"stdout":   map[string]any{"repo": "a/b"},
		},
	}

	err := w.handleClone(context.Background(), reply)

	require.NoError(t, err)
	require.Len(t, tasks.sent, 1)
	assert.Equal(t, "read_py_files", tasks.sent[0].Action)
	assert.Equal(t, "b", tasks.sent[0].Metadata["dir_path"])
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, "b", w.Tabs.Get(tab.TabID).LastDirName())
}

func TestHandleCloneOnFailureSurfacesErrorAndStops(t *testing.T) {
	w, tasks, bridge := newTestWorkflow(&llm.StaticAdapter{}, fakePrompts{})
	reply := &protocol.Reply{
		Command: "git", Action: "clone_repo", Result: protocol.ResultFail,
		Metadata: map[string]any{"stderr": "fatal: repository not found"},
	}

	err := w.handleClone(context.Background(), reply)

	require.NoError(t, err)
	assert.Empty(t, tasks.sent)
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, protocol.OutboundError, bridge.sent[0].Type)
	assert.Equal(t, "fatal: repository not found", bridge.sent[0].Text)
}

func TestHandleReadFilesPushesPendingApproval(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"[System Summary]\nsummary\n[User Summary]\nuser summary"}}
	w, _, bridge := newTestWorkflow(adapter, fakePrompts{"summarize_experiment": "s"})
	tab := w.Tabs.New(w.NewPending)

	reply := &protocol.Reply{
		Command:  "git",
		Action:   "read_py_files",
		Result:   protocol.ResultSuccess,
		Metadata: map[string]any{"tabId": tab.TabID, "files": []any{}},
	}

	err := w.handleReadFiles(context.Background(), reply)

	require.NoError(t, err)
	assert.True(t, tab.Pending.HasPending())
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, "summary", bridge.sent[0].Text)
}

func TestHandleReadFilesOnFailureSurfacesErrorAndStops(t *testing.T) {
	w, _, bridge := newTestWorkflow(&llm.StaticAdapter{}, fakePrompts{})
	tab := w.Tabs.New(w.NewPending)

	reply := &protocol.Reply{
		Command: "git", Action: "read_py_files", Result: protocol.ResultFail,
		Metadata: map[string]any{"tabId": tab.TabID, "stderr": "no such directory"},
	}

	err := w.handleReadFiles(context.Background(), reply)

	require.NoError(t, err)
	assert.False(t, tab.Pending.HasPending())
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, protocol.OutboundError, bridge.sent[0].Type)
	assert.Equal(t, "no such directory", bridge.sent[0].Text)
}

func TestHandleCreateVenvOnFailureSurfacesErrorAndStops(t *testing.T) {
	w, _, bridge := newTestWorkflow(&llm.StaticAdapter{}, fakePrompts{})
	tab := w.Tabs.New(w.NewPending)

	reply := &protocol.Reply{
		Command: "git", Action: "create_venv", Result: protocol.ResultFail,
		Metadata: map[string]any{"tabId": tab.TabID, "stderr": "python3: command not found"},
	}

	err := w.handleCreateVenv(context.Background(), reply)

	require.NoError(t, err)
	assert.False(t, tab.Pending.HasPending())
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, protocol.OutboundError, bridge.sent[0].Type)
	assert.Equal(t, "python3: command not found", bridge.sent[0].Text)
}

func TestHandleEditOnFailureSurfacesErrorAndStops(t *testing.T) {
	w, _, bridge := newTestWorkflow(&llm.StaticAdapter{}, fakePrompts{})
	tab := w.Tabs.New(w.NewPending)

	reply := &protocol.Reply{
		Command: "git", Action: "edit", Result: protocol.ResultFail,
		Metadata: map[string]any{"tabId": tab.TabID, "stderr": "permission denied"},
	}

	err := w.handleEdit(context.Background(), reply)

	require.NoError(t, err)
	assert.False(t, tab.Pending.HasPending())
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, protocol.OutboundError, bridge.sent[0].Type)
	assert.Equal(t, "permission denied", bridge.sent[0].Text)
}

func TestHandleUserInputPendingPositiveReadFilesCreatesVenv(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"positive"}}
	w, tasks, _ := newTestWorkflow(adapter, fakePrompts{"intent_classifier": "i"})
	tab := w.Tabs.New(w.NewPending)
	tab.SetGitResult("https://github.com/a/repo.git", "repo")

	action := &pending.Action{
		ID:   "x",
		Type: "read_py_files",
		Msg:  map[string]any{"response": "Is this correct?"},
	}

	err := w.handleUserInputPending(context.Background(), PendingInput{Text: "yes", Pending: action})

	require.NoError(t, err)
	require.Len(t, tasks.sent, 1)
	assert.Equal(t, "create_venv", tasks.sent[0].Action)
	assert.Equal(t, "repo/", tasks.sent[0].Metadata["dir_path"])
}

func TestHandleUserInputPendingNegativeReadFilesCancelsWorkflow(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"negative"}}
	w, tasks, _ := newTestWorkflow(adapter, fakePrompts{"intent_classifier": "i"})
	w.Tabs.New(w.NewPending)

	action := &pending.Action{Type: "read_py_files", Msg: map[string]any{"response": "Is this correct?"}}
	err := w.handleUserInputPending(context.Background(), PendingInput{Text: "no", Pending: action})

	require.NoError(t, err)
	assert.Empty(t, tasks.sent)
}

func TestHandleUserInputPendingEditConfirmPositiveRunsInVenv(t *testing.T) {
	adapter := &llm.StaticAdapter{Responses: []string{"positive"}}
	w, tasks, _ := newTestWorkflow(adapter, fakePrompts{"intent_classifier": "i"})
	tab := w.Tabs.New(w.NewPending)
	tab.SetGitResult("https://github.com/a/repo.git", "repo")
	tab.SetReadResult("train.py", nil)

	action := &pending.Action{Type: "git_edit_confirm", Msg: map[string]any{"response": "Shall we proceed?"}}
	err := w.handleUserInputPending(context.Background(), PendingInput{Text: "yes", Pending: action})

	require.NoError(t, err)
	require.Len(t, tasks.sent, 1)
	assert.Equal(t, "run_in_venv", tasks.sent[0].Action)
	assert.Equal(t, "train.py", tasks.sent[0].Target)
}

func TestHandleResetClearsLLMMemoryAndLeavesPendingQueueAlone(t *testing.T) {
	adapter := &llm.StaticAdapter{}
	w, _, bridge := newTestWorkflow(adapter, fakePrompts{})
	tab := w.Tabs.New(w.NewPending)
	w.Tabs.SetActive(tab.TabID)
	tab.Pending.Add("read_py_files", nil)
	require.True(t, tab.Pending.HasPending())

	err := w.handleReset(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, tab.Pending.HasPending())
	require.Len(t, bridge.sent, 1)
	assert.Equal(t, protocol.OutboundSystem, bridge.sent[0].Type)
	assert.Equal(t, "LLM memory reset", bridge.sent[0].Text)
}
