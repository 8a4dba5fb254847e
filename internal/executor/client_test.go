package executor

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/controller/internal/protocol"
)

func TestExecuteUnknownActionFails(t *testing.T) {
	c := New("unused", map[string]ActionFunc{})
	reply := c.execute(context.Background(), &protocol.Task{Command: "git", Action: "bogus"})
	assert.Equal(t, protocol.ResultFail, reply.Result)
	assert.Contains(t, reply.Metadata["stderr"], "unknown action")
}

func TestExecuteRunsRegisteredActionAndCarriesTabID(t *testing.T) {
	actions := map[string]ActionFunc{
		"echo": func(ctx context.Context, task *protocol.Task) (map[string]any, error) {
			return map[string]any{"stdout": "ok"}, nil
		},
	}
	c := New("unused", actions)
	task := &protocol.Task{Command: "noop", Action: "echo", Metadata: map[string]any{"tabId": float64(4)}}

	reply := c.execute(context.Background(), task)
	assert.Equal(t, protocol.ResultSuccess, reply.Result)
	assert.Equal(t, "ok", reply.Metadata["stdout"])
	assert.Equal(t, float64(4), reply.Metadata["tabId"])
}

func TestExecuteActionErrorReportsStderr(t *testing.T) {
	actions := map[string]ActionFunc{
		"fail": func(ctx context.Context, task *protocol.Task) (map[string]any, error) {
			return nil, assertErr{}
		},
	}
	c := New("unused", actions)
	reply := c.execute(context.Background(), &protocol.Task{Command: "noop", Action: "fail"})
	assert.Equal(t, protocol.ResultFail, reply.Result)
	assert.Equal(t, "boom", reply.Metadata["stderr"])
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestExecuteHonorsTaskTimeout(t *testing.T) {
	started := make(chan struct{})
	actions := map[string]ActionFunc{
		"slow": func(ctx context.Context, task *protocol.Task) (map[string]any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := New("unused", actions)
	task := &protocol.Task{Command: "noop", Action: "slow", Metadata: map[string]any{"timeout": 0.01}}

	done := make(chan *protocol.Reply, 1)
	go func() { done <- c.execute(context.Background(), task) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("action never started")
	}

	select {
	case reply := <-done:
		assert.Equal(t, protocol.ResultFail, reply.Result)
	case <-time.After(time.Second):
		t.Fatal("execute did not respect timeout")
	}
}

func TestRunServicesOneTaskOverRealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	var received *protocol.Task
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		taskBytes, _ := json.Marshal(&protocol.Task{Command: "git", Action: "echo", Metadata: map[string]any{"tabId": 1}})
		if err := protocol.WriteFrame(conn, taskBytes); err != nil {
			return
		}

		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			return
		}
		var reply protocol.Reply
		_ = json.Unmarshal(payload, &reply)
		received = &protocol.Task{Command: reply.Command, Action: reply.Action}
	}()

	actions := map[string]ActionFunc{
		"echo": func(ctx context.Context, task *protocol.Task) (map[string]any, error) {
			return map[string]any{"stdout": "done"}, nil
		},
	}
	client := New(ln.Addr().String(), actions)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = client.Run(ctx)
	assert.Error(t, err) // Run returns once the server side closes the connection

	<-serverDone
	require.NotNil(t, received)
	assert.Equal(t, "echo", received.Action)
}
