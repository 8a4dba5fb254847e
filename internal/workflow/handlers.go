package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentctl/controller/internal/dispatcher"
	"github.com/agentctl/controller/internal/llm"
	"github.com/agentctl/controller/internal/pending"
	"github.com/agentctl/controller/internal/protocol"
)

// TaskSender delivers a Task to the Executor over the Framed Transport.
type TaskSender interface {
	Send(task *protocol.Task) error
}

// BridgeSender delivers an outbound message to the Bridge's send queue.
type BridgeSender interface {
	Send(msg protocol.OutboundBridgeMessage)
}

// AuditSink records a best-effort audit trail entry. Implementations must
// never block the caller for long and must swallow their own errors (log
// and continue), per SPEC_FULL.md §5.
type AuditSink interface {
	Record(direction string, tabID int, payload any)
}

// PendingInput is the msg payload for the user_input_pending dispatch key:
// free text paired with the PendingAction it answers.
type PendingInput struct {
	Text    string
	Pending *pending.Action
}

// UserInput is the msg payload for the user_input_normal dispatch key.
type UserInput struct {
	Text string
}

// Workflow wires the Dispatcher's handlers to the Transport, Bridge,
// classifiers, and per-tab state, grounded end-to-end on the original
// supervisor's handlers/git_handlers.py and handlers/user_handlers.py.
type Workflow struct {
	Dispatcher *dispatcher.Dispatcher
	Tasks      TaskSender
	Bridge     BridgeSender
	Router     *llm.Router
	Intent     *llm.IntentClassifier
	Git        *GitHandler
	Adapter    llm.Adapter
	Prompts    llm.PromptSet
	Tabs       *Tabs
	NewPending PendingFactory
	Audit      AuditSink // may be nil
}

// Register installs every handler on w.Dispatcher. Call once at startup.
func (w *Workflow) Register() {
	w.Dispatcher.Register("git", "clone_repo", w.handleClone)
	w.Dispatcher.Register("git", "read_py_files", w.handleReadFiles)
	w.Dispatcher.Register("git", "create_venv", w.handleCreateVenv)
	w.Dispatcher.Register("git", "edit", w.handleEdit)
	w.Dispatcher.Register("git", "run_in_venv", w.handleRunInVenv)

	w.Dispatcher.Register(dispatcher.NoCommand, "user_input_normal", w.handleUserInputNormal)
	w.Dispatcher.Register(dispatcher.NoCommand, "user_input_pending", w.handleUserInputPending)
	w.Dispatcher.Register(dispatcher.NoCommand, "reset", w.handleReset)
}

func (w *Workflow) audit(direction string, tabID int, payload any) {
	if w.Audit == nil {
		return
	}
	w.Audit.Record(direction, tabID, payload)
}

func (w *Workflow) sendBridge(msgType string, text any, tabID int) {
	w.Bridge.Send(protocol.OutboundBridgeMessage{Type: msgType, Text: text, TabID: tabID})
}

func (w *Workflow) tabOrDefault(tabID int) (*State, int) {
	if tabID == 0 {
		tabID = 1
	}
	st := w.Tabs.Get(tabID)
	return st, tabID
}

// handleClone is the ("git","clone_repo") handler, grounded on
// git_handlers.py's handle_clone.
func (w *Workflow) handleClone(ctx context.Context, raw any) error {
	reply := raw.(*protocol.Reply)
	w.audit("reply", reply.TabID(), reply)
	if !reply.Succeeded() {
		_, tabID := w.tabOrDefault(reply.TabID())
		w.sendBridge(protocol.OutboundError, reply.Stderr(), tabID)
		return nil
	}

	st, tabID := w.tabOrDefault(reply.TabID())
	repo, _ := metadataString(reply.Metadata, "stdout", "repo")
	dirPath, _ := reply.Metadata["dir_path"].(string)

	webMsg := fmt.Sprintf(
		"%s task progress\nRequested repo: %s\nResult: %s\nStored at: %s",
		reply.Action, repo, reply.Result, dirPath,
	)
	w.sendBridge(protocol.OutboundPendingReq, webMsg, tabID)

	gitURL, _ := reply.Metadata["git_url"].(string)
	dirName := ExtractRepoName(gitURL)
	if st != nil {
		st.SetGitResult(gitURL, dirName)
	}

	task := protocol.BuildTask("git", "read_py_files", nil, map[string]any{
		"dir_path": dirName,
		"tabId":    tabID,
	})
	return w.Tasks.Send(task)
}

// handleReadFiles is the ("git","read_py_files") handler, grounded on
// git_handlers.py's handle_read_files.
func (w *Workflow) handleReadFiles(ctx context.Context, raw any) error {
	reply := raw.(*protocol.Reply)
	w.audit("reply", reply.TabID(), reply)
	if !reply.Succeeded() {
		_, tabID := w.tabOrDefault(reply.TabID())
		w.sendBridge(protocol.OutboundError, reply.Stderr(), tabID)
		return nil
	}

	st, tabID := w.tabOrDefault(reply.TabID())
	if st == nil {
		slog.Warn("workflow: read_py_files for unknown tab", "tabId", tabID)
		return nil
	}
	summary, err := w.Git.SummarizeExperiment(ctx, reply.Metadata)
	if err != nil {
		slog.Error("workflow: summarize_experiment failed", "error", err)
		return nil
	}
	st.SetReadResult(summary.ExecuteFile, reply.Metadata)
	w.sendBridge(protocol.OutboundPendingReq, summary.SystemSummary, tabID)

	pendingMsg := map[string]any{
		"response": "Is this correct?",
		"metadata": reply.Metadata,
	}
	st.Pending.Add("read_py_files", pendingMsg)
	return nil
}

// handleCreateVenv is the ("git","create_venv") handler, grounded on
// git_handlers.py's handle_create_venv.
func (w *Workflow) handleCreateVenv(ctx context.Context, raw any) error {
	reply := raw.(*protocol.Reply)
	w.audit("reply", reply.TabID(), reply)
	if !reply.Succeeded() {
		_, tabID := w.tabOrDefault(reply.TabID())
		w.sendBridge(protocol.OutboundError, reply.Stderr(), tabID)
		return nil
	}

	st, _ := w.tabOrDefault(reply.TabID())
	if st == nil {
		return nil
	}
	st.Pending.Add("git_edit_request", map[string]any{
		"response": "Would you like to make modifications, or proceed as is?",
		"metadata": reply.Metadata,
	})
	return nil
}

// handleEdit is the ("git","edit") handler, grounded on
// git_handlers.py's handle_edit.
func (w *Workflow) handleEdit(ctx context.Context, raw any) error {
	reply := raw.(*protocol.Reply)
	w.audit("reply", reply.TabID(), reply)
	if !reply.Succeeded() {
		_, tabID := w.tabOrDefault(reply.TabID())
		w.sendBridge(protocol.OutboundError, reply.Stderr(), tabID)
		return nil
	}

	st, tabID := w.tabOrDefault(reply.TabID())
	var diff []string
	for filename, content := range reply.Metadata {
		diff = append(diff, fmt.Sprintf("--- %s ---\n%v", filename, content))
	}
	w.sendBridge(protocol.OutboundPendingReq, strings.Join(diff, "\n\n"), tabID)

	if st == nil {
		return nil
	}
	st.Pending.Add("git_edit_confirm", map[string]any{
		"response": "Shall we proceed with training using this modification?",
		"metadata": reply.Metadata,
	})
	return nil
}

// handleRunInVenv is the ("git","run_in_venv") handler, grounded on
// git_handlers.py's handle_result.
func (w *Workflow) handleRunInVenv(ctx context.Context, raw any) error {
	reply := raw.(*protocol.Reply)
	w.audit("reply", reply.TabID(), reply)

	_, tabID := w.tabOrDefault(reply.TabID())
	if reply.Succeeded() {
		w.sendBridge(protocol.OutboundPendingReq, "Training complete!", tabID)
		w.sendBridge(protocol.OutboundPendingReq, reply.Stdout(), tabID)
	} else {
		w.sendBridge(protocol.OutboundPendingReq, "Training failed.", tabID)
		w.sendBridge(protocol.OutboundPendingReq, fmt.Sprintf("Error: %s", reply.Stderr()), tabID)
	}
	return nil
}

// handleUserInputNormal is the (NoCommand,"user_input_normal") handler,
// grounded on user_handlers.py's handle_user_input_normal.
func (w *Workflow) handleUserInputNormal(ctx context.Context, raw any) error {
	in := raw.(UserInput)
	w.audit("user", 0, in)

	command, _, err := w.Router.GetCommand(ctx, in.Text)
	if err != nil {
		slog.Error("workflow: router classification failed", "error", err)
		return nil
	}

	var tabID int
	if command == "git" || command == "code" {
		st := w.Tabs.New(w.NewPending)
		tabID = st.TabID
	} else if active := w.Tabs.Active(); active != nil {
		tabID = active.TabID
	} else {
		tabID = 1
	}

	switch command {
	case "git":
		url := ExtractGitURL(in.Text)
		task := protocol.BuildTask("git", "clone_repo", nil, map[string]any{
			"git_url": url,
			"tabId":   tabID,
		})
		return w.Tasks.Send(task)
	case "conversation":
		response, err := w.Adapter.RunWithPrompt(ctx, w.Prompts.Prompt("conversation"), in.Text)
		if err != nil {
			slog.Error("workflow: conversation completion failed", "error", err)
			return nil
		}
		w.sendBridge(protocol.OutboundMainInput, response, tabID)
		return nil
	case "code":
		slog.Info("workflow: code command received, no handler wired yet", "tabId", tabID)
		return nil
	default:
		slog.Warn("workflow: unknown command", "command", command)
		return nil
	}
}

// handleUserInputPending is the (NoCommand,"user_input_pending") handler,
// grounded on user_handlers.py's handle_user_input_pending.
func (w *Workflow) handleUserInputPending(ctx context.Context, raw any) error {
	in := raw.(PendingInput)
	w.audit("user", 0, in)

	active := w.Tabs.Active()
	if active == nil {
		return nil
	}
	tabID := active.TabID
	action := in.Pending
	response, _ := action.Msg["response"].(string)

	w.sendBridge(protocol.OutboundPendingReq, response, tabID)
	intent, err := w.Intent.GetIntent(ctx, in.Text, response)
	if err != nil {
		slog.Error("workflow: intent classification failed", "error", err)
		return nil
	}
	w.sendBridge(protocol.OutboundPendingReq, fmt.Sprintf("your intent: %s", intent), tabID)

	switch action.Type {
	case "read_py_files":
		return w.onReadFilesIntent(ctx, active, tabID, intent)
	case "git_edit_request":
		return w.onEditRequestIntent(ctx, active, tabID, intent, in.Text)
	case "git_edit_confirm":
		return w.onEditConfirmIntent(active, tabID, intent)
	default:
		slog.Warn("workflow: unknown pending type", "type", action.Type)
		return nil
	}
}

func (w *Workflow) onReadFilesIntent(ctx context.Context, st *State, tabID int, intent string) error {
	if intent != "positive" {
		slog.Info("workflow: read_py_files pending cancelled", "intent", intent)
		return nil
	}
	task := protocol.BuildTask("git", "create_venv", nil, map[string]any{
		"dir_path":     st.LastDirName() + "/",
		"requirements": "requirements.txt",
		"tabId":        tabID,
	})
	return w.Tasks.Send(task)
}

func (w *Workflow) onEditRequestIntent(ctx context.Context, st *State, tabID int, intent, userText string) error {
	switch intent {
	case "revise":
		edit, err := w.Git.GenerateEditTask(ctx, userText, st.PyFiles())
		if err != nil {
			slog.Error("workflow: generate_edit_task failed", "error", err)
			return nil
		}
		metadata := make(map[string]any, len(edit.Metadata)+1)
		for k, v := range edit.Metadata {
			metadata[k] = v
		}
		metadata["tabId"] = tabID
		task := protocol.BuildTask("git", "edit", edit.Target, metadata)
		return w.Tasks.Send(task)
	case "direct":
		dirName := st.LastDirName()
		task := protocol.BuildTask("git", "run_in_venv", st.ExecuteFile(), map[string]any{
			"cwd":       dirName + "/",
			"venv_path": dirName + "/venv",
			"skip_edit": true,
			"tabId":     tabID,
		})
		return w.Tasks.Send(task)
	default:
		slog.Info("workflow: git_edit_request pending resolved with no-op intent", "intent", intent)
		return nil
	}
}

func (w *Workflow) onEditConfirmIntent(st *State, tabID int, intent string) error {
	switch intent {
	case "positive", "direct":
		dirName := st.LastDirName()
		task := protocol.BuildTask("git", "run_in_venv", st.ExecuteFile(), map[string]any{
			"cwd":       dirName + "/",
			"venv_path": dirName + "/venv",
			"tabId":     tabID,
		})
		return w.Tasks.Send(task)
	case "negative":
		w.sendBridge(protocol.OutboundPendingReq, "Modification has been canceled.", tabID)
		return nil
	case "revise":
		w.sendBridge(protocol.OutboundPendingReq, "Please resend your requested modification.", tabID)
		return nil
	}
	return nil
}

// handleReset is the (NoCommand,"reset") handler, grounded on
// supervisor_base.py's reset branch (both the supervisor/ and
// refact_Supvervisor/ variants agree here): clear the LLM's memory and
// tell the Bridge it happened. The pending queue is left untouched.
func (w *Workflow) handleReset(ctx context.Context, raw any) error {
	active := w.Tabs.Active()
	var tabID int
	if active != nil {
		tabID = active.TabID
	}

	if err := w.Adapter.Reset(ctx); err != nil {
		slog.Error("workflow: llm reset failed", "error", err)
	}
	w.sendBridge(protocol.OutboundSystem, "LLM memory reset", tabID)

	slog.Info("workflow: reset", "tabId", tabID)
	return nil
}

// metadataString reads a nested string field out of a Task/Reply metadata
// map, e.g. metadata["stdout"]["repo"]. The second result is false if any
// step of the path is missing or not a string.
func metadataString(metadata map[string]any, path ...string) (string, bool) {
	var cur any = metadata
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
