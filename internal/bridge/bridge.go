// Package bridge implements the Bridge Link: a reconnecting WebSocket
// client carrying chat traffic between the Controller and the UI,
// grounded on the original supervisor's core/bridge_client.py and on the
// other_examples buildworker client.go reconnect-with-backoff shape.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentctl/controller/internal/events"
	"github.com/agentctl/controller/internal/protocol"
)

const (
	pingInterval    = 20 * time.Second
	pingTimeout     = 20 * time.Second
	backoffBase     = 1 * time.Second
	backoffMax      = 10 * time.Second
	outboundQueueSz = 1000
)

// Link dials a Bridge WebSocket endpoint and keeps it connected,
// reconnecting with capped exponential backoff on any failure. Inbound
// UserMessage frames are republished on the Emitter's "user_message" topic;
// outbound messages are queued and drained by a dedicated writer goroutine
// so Send never blocks the caller.
type Link struct {
	url     string
	emitter *events.Emitter

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	outbound chan protocol.OutboundBridgeMessage

	onReconnect func(attempt int, backoff time.Duration)
	onConnected func(connected bool)
}

// New returns a Link that will dial url once Run is called.
func New(url string, emitter *events.Emitter) *Link {
	return &Link{
		url:      url,
		emitter:  emitter,
		outbound: make(chan protocol.OutboundBridgeMessage, outboundQueueSz),
	}
}

// OnReconnect registers a callback invoked before every reconnect attempt,
// used by the Controller to drive the bridge_reconnect_total counter and
// backoff gauge.
func (l *Link) OnReconnect(fn func(attempt int, backoff time.Duration)) {
	l.onReconnect = fn
}

// OnConnectedChange registers a callback invoked whenever connection state
// flips, used to drive the bridge_connected gauge.
func (l *Link) OnConnectedChange(fn func(connected bool)) {
	l.onConnected = fn
}

// Run dials and redials l.url until ctx is cancelled, matching the
// original's _manager() loop: backoff resets to backoffBase after any
// successful connection and doubles, capped at backoffMax, after each
// failure.
func (l *Link) Run(ctx context.Context) {
	backoff := backoffBase
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		attempt++
		if l.onReconnect != nil {
			l.onReconnect(attempt, backoff)
		}

		if err := l.connectAndServe(ctx); err != nil {
			slog.Warn("bridge: connection ended", "error", err, "attempt", attempt, "backoff", backoff)
		}

		if l.Connected() {
			// This attempt got through, so the wait before the next one
			// starts again from backoffBase.
			backoff = backoffBase
		}
		l.setConnected(false)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (l *Link) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, http.Header{})
	if err != nil {
		return err
	}
	defer conn.Close()

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.setConnected(true)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pingTimeout))

	hello := protocol.OutboundBridgeMessage{Type: protocol.OutboundSystem, Text: "Supervisor is connected"}
	if encoded, err := json.Marshal(hello); err == nil {
		conn.WriteMessage(websocket.TextMessage, encoded)
	}

	readErr := make(chan error, 1)
	go l.readLoop(conn, readErr)

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout)); err != nil {
				return err
			}
		case msg, ok := <-l.outbound:
			if !ok {
				return nil
			}
			encoded, err := json.Marshal(msg)
			if err != nil {
				slog.Error("bridge: encode outbound message failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
				return err
			}
		}
	}
}

func (l *Link) readLoop(conn *websocket.Conn, errc chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}

		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			// Malformed JSON is wrapped as a raw text envelope rather than
			// dropped, matching bridge_client.py's {"type":"raw","text":raw}
			// fallback.
			l.emitter.Emit("user_message", &protocol.UserMessage{Type: "raw", Text: string(data)})
			continue
		}

		var msg protocol.UserMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("bridge: could not decode UserMessage shape", "raw", raw)
			continue
		}
		l.emitter.Emit("user_message", &msg)
	}
}

func (l *Link) setConnected(v bool) {
	l.mu.Lock()
	changed := l.connected != v
	l.connected = v
	l.mu.Unlock()
	if changed && l.onConnected != nil {
		l.onConnected(v)
	}
}

// Connected reports current connection state, for /healthz.
func (l *Link) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// Send enqueues msg for delivery without blocking. When the outbound queue
// is full the oldest queued message is dropped to make room, matching
// SPEC_FULL.md's drop-oldest overflow policy for the ~1000-deep bounded
// queue.
func (l *Link) Send(msg protocol.OutboundBridgeMessage) {
	select {
	case l.outbound <- msg:
		return
	default:
	}

	select {
	case <-l.outbound:
	default:
	}
	select {
	case l.outbound <- msg:
	default:
		slog.Warn("bridge: outbound queue saturated, dropping message", "type", msg.Type)
	}
}
