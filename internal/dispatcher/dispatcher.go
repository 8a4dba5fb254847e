// Package dispatcher implements the (command, action) -> handler routing
// table the Controller uses to drive both Executor replies and Bridge
// user-input events through the workflow state machine, grounded on the
// original supervisor's core/event_dispatcher.py EventDispatcher.
package dispatcher

import (
	"context"
	"log/slog"
)

// Handler processes one decoded message. msg is either a *protocol.Reply
// (for git/<action> keys) or an internal user-input envelope (for the
// NoCommand/<action> keys); handlers type-assert on the shape they expect.
type Handler func(ctx context.Context, msg any) error

// key pairs a command with an action, mirroring the original's
// (command, action) tuple dict key.
type key struct {
	command string
	action  string
}

// NoCommand is the registration command used for handlers that dispatch
// purely on action -- user_input_normal, user_input_pending, reset --
// matching the original's `dispatcher.register(None, "user_input_normal")`.
const NoCommand = ""

// Dispatcher routes decoded messages to the handler registered for their
// (command, action) pair.
type Dispatcher struct {
	handlers map[key]Handler
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[key]Handler)}
}

// Register installs fn as the handler for (command, action). A later call
// with the same pair replaces the earlier registration.
func (d *Dispatcher) Register(command, action string, fn Handler) {
	d.handlers[key{command, action}] = fn
}

// Dispatch looks up the handler for (command, action) and invokes it. A
// missing handler is logged and treated as a no-op, matching the
// original's "핸들러 없음" (no handler) warning path -- it never panics or
// blocks the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, command, action string, msg any) error {
	fn, ok := d.handlers[key{command, action}]
	if !ok {
		slog.Warn("dispatcher: no handler registered", "command", command, "action", action)
		return nil
	}
	return fn(ctx, msg)
}

// Registered reports whether a handler exists for (command, action), for
// tests and introspection.
func (d *Dispatcher) Registered(command, action string) bool {
	_, ok := d.handlers[key{command, action}]
	return ok
}
