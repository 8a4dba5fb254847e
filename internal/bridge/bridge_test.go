package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/controller/internal/events"
	"github.com/agentctl/controller/internal/protocol"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetPingHandler(func(string) error {
			return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second))
		})
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.TextMessage {
				conn.WriteMessage(websocket.TextMessage, data)
			}
		}
	})
	return httptest.NewServer(handler)
}

func TestLinkConnectsAndReceivesUserMessage(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	emitter := events.New()
	link := New(wsURL, emitter)

	received := make(chan *protocol.UserMessage, 1)
	emitter.On("user_message", func(args ...any) {
		// The echo server also reflects the Link's connect hello (type
		// "system"); only the chat message sent below is of interest.
		if msg := args[0].(*protocol.UserMessage); msg.Type == "chat" {
			received <- msg
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Run(ctx)

	require.Eventually(t, link.Connected, 2*time.Second, 20*time.Millisecond)

	link.Send(protocol.OutboundBridgeMessage{Type: "chat", Text: "hi"})

	select {
	case msg := <-received:
		assert.Equal(t, "hi", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive echoed message")
	}
}

func TestSendDropsOldestWhenQueueFull(t *testing.T) {
	emitter := events.New()
	link := New("ws://unused.invalid", emitter)

	for i := 0; i < outboundQueueSz; i++ {
		link.Send(protocol.OutboundBridgeMessage{Type: "info", Text: i})
	}
	// Queue is now full; one more send must not block.
	done := make(chan struct{})
	go func() {
		link.Send(protocol.OutboundBridgeMessage{Type: "info", Text: "overflow"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked instead of dropping the oldest queued message")
	}
}
