package core

import (
	"context"
	"encoding/json"
	"errors"
)

// Frame is a raw binary payload (e.g., a signaling envelope).
type Frame []byte

var ErrBackpressure = errors.New("backpressure")

// EventHandler receives the raw payload of a named push event.
type EventHandler func(data json.RawMessage)

// PushChannel is a duplex event channel to the remote authority. It carries
// fire-and-forget notifications and request/acknowledgement commands.
// Owned by the session root; the session root must Close() it.
type PushChannel interface {
	// Emit sends a fire-and-forget command.
	Emit(event string, payload any) error
	// Request sends a command and blocks until the acknowledgement arrives,
	// decoding it into reply. A ctx cancellation abandons the request; a
	// late acknowledgement for an abandoned request is discarded.
	Request(ctx context.Context, event string, payload any, reply any) error
	// On registers the handler for a named inbound event, replacing any
	// previous one. Handlers run on the read loop and must not block on
	// round-trips through this same channel.
	On(event string, h EventHandler)
	Off(event string)
	Close()
}
