package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/controller/internal/events"
	"github.com/agentctl/controller/internal/protocol"
)

func startTestServer(t *testing.T) (*Server, *events.Emitter, func()) {
	t.Helper()
	emitter := events.New()
	srv := NewServer("127.0.0.1:0", emitter)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.listener = ln
	srv.addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if !srv.tryAcceptSingle(conn) {
				conn.Close()
				continue
			}
			go srv.handleConn(conn)
		}
	}()

	return srv, emitter, func() {
		cancel()
		ln.Close()
	}
}

func TestServerDecodesSingleFrame(t *testing.T) {
	srv, emitter, stop := startTestServer(t)
	defer stop()

	received := make(chan *protocol.Reply, 1)
	emitter.On("coder_message", func(args ...any) {
		received <- args[0].(*protocol.Reply)
	})

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte(`{"command":"git","action":"clone_repo","result":"success"}`)
	require.NoError(t, protocol.WriteFrame(conn, payload))

	select {
	case reply := <-received:
		assert.Equal(t, "git", reply.Command)
		assert.True(t, reply.Succeeded())
		assert.NotEmpty(t, reply.ConnID)
		assert.Equal(t, uint64(1), reply.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded frame")
	}
}

func TestServerDecodesFrameSplitAcrossWrites(t *testing.T) {
	srv, emitter, stop := startTestServer(t)
	defer stop()

	received := make(chan *protocol.Reply, 1)
	emitter.On("coder_message", func(args ...any) {
		received <- args[0].(*protocol.Reply)
	})

	conn, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte(`{"command":"git","action":"read_py_files","result":"success"}`)
	framed, err := protocol.EncodeFrame(payload)
	require.NoError(t, err)

	mid := len(framed) / 2
	_, err = conn.Write(framed[:mid])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = conn.Write(framed[mid:])
	require.NoError(t, err)

	select {
	case reply := <-received:
		assert.Equal(t, "read_py_files", reply.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for split-frame decode")
	}
}

func TestServerRejectsSecondPeer(t *testing.T) {
	srv, _, stop := startTestServer(t)
	defer stop()

	first, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer first.Close()
	time.Sleep(50 * time.Millisecond)

	second, err := net.Dial("tcp", srv.addr)
	require.NoError(t, err)
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = second.Read(buf)
	assert.Error(t, err, "second connection should be closed by the server")
}

func TestSendWithNoExecutorConnectedErrors(t *testing.T) {
	emitter := events.New()
	srv := NewServer("127.0.0.1:0", emitter)

	err := srv.Send(protocol.BuildTask("git", "clone_repo", nil, nil))
	assert.Error(t, err)
}
