// Package executor implements the reference Executor: a real (not
// mocked) implementation of the Controller's action vocabulary, dialing
// the Framed Transport as a TCP client and running git/venv/process
// primitives via os/exec, grounded on mrdon-cleared's internal/gitops's
// os/exec usage and internal/sandbox/bridge.go's request/response
// correlation shape.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/agentctl/controller/internal/protocol"
)

// ActionFunc runs one Task and returns the metadata to report back.
type ActionFunc func(ctx context.Context, task *protocol.Task) (metadata map[string]any, err error)

// Client connects to the Controller's Framed Transport and services Tasks
// until the connection drops or ctx is cancelled.
type Client struct {
	addr     string
	actions  map[string]ActionFunc
	dialFunc func(network, address string) (net.Conn, error)
}

// New returns a Client that will dial addr and run the given action table
// (keyed by Task.Action) once Run is called.
func New(addr string, actions map[string]ActionFunc) *Client {
	return &Client{addr: addr, actions: actions, dialFunc: net.Dial}
}

// Run dials addr, reads length-prefixed Task frames, executes the
// matching action, and writes back a length-prefixed Reply frame for
// each one. It returns when the connection closes or ctx is cancelled;
// callers wanting reconnect-on-drop behavior should call Run in a loop.
func (c *Client) Run(ctx context.Context) error {
	conn, err := c.dialFunc("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("executor: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("executor: read frame: %w", err)
		}

		var task protocol.Task
		if err := json.Unmarshal(payload, &task); err != nil {
			slog.Warn("executor: invalid task JSON, skipping", "error", err)
			continue
		}

		reply := c.execute(ctx, &task)
		encoded, err := json.Marshal(reply)
		if err != nil {
			slog.Error("executor: encode reply failed", "error", err)
			continue
		}
		if err := protocol.WriteFrame(conn, encoded); err != nil {
			return fmt.Errorf("executor: write frame: %w", err)
		}
	}
}

func (c *Client) execute(ctx context.Context, task *protocol.Task) *protocol.Reply {
	fn, ok := c.actions[task.Action]
	if !ok {
		slog.Warn("executor: no action registered", "action", task.Action)
		metadata := map[string]any{"stderr": fmt.Sprintf("unknown action %q", task.Action)}
		if tabID, ok := task.Metadata["tabId"]; ok {
			metadata["tabId"] = tabID
		}
		return &protocol.Reply{
			Command:  task.Command,
			Action:   task.Action,
			Result:   protocol.ResultFail,
			Metadata: metadata,
		}
	}

	runCtx := ctx
	if timeout, ok := task.Metadata["timeout"]; ok {
		if seconds, ok := toFloat(timeout); ok && seconds > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
			defer cancel()
		}
	}

	metadata, err := fn(runCtx, task)
	if metadata == nil {
		metadata = make(map[string]any)
	}
	if tabID, ok := task.Metadata["tabId"]; ok {
		metadata["tabId"] = tabID
	}
	if err != nil {
		// An action may already report its own stderr (e.g. git's output);
		// the error text is used only when it did not.
		if s, _ := metadata["stderr"].(string); s == "" {
			metadata["stderr"] = err.Error()
		}
		return &protocol.Reply{Command: task.Command, Action: task.Action, Result: protocol.ResultFail, Metadata: metadata}
	}
	return &protocol.Reply{Command: task.Command, Action: task.Action, Result: protocol.ResultSuccess, Metadata: metadata}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
