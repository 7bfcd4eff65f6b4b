// Package push implements the duplex event channel to the remote game
// authority over a websocket.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/core"
)

const defaultAckTimeout = 10 * time.Second

// envelope is the wire format: named events with an optional ack id.
// The authority answers a command by echoing ackId with event "ack".
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

type Channel struct {
	conn *websocket.Conn
	send chan core.Frame

	mu       sync.RWMutex
	closed   bool
	handlers map[string]core.EventHandler
	pending  map[string]chan json.RawMessage

	ackTimeout time.Duration
	logger     zerolog.Logger
	once       sync.Once
}

type Option func(*Channel)

func WithAckTimeout(d time.Duration) Option {
	return func(c *Channel) { c.ackTimeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// Dial connects to the authority's push endpoint and starts the pumps.
func Dial(ctx context.Context, url string, opts ...Option) (*Channel, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("push dial %s: %w", url, err)
	}
	c := NewChannel(ws, opts...)
	go c.writePump(ctx)
	go c.readPump(ctx)
	return c, nil
}

// NewChannel wraps an established websocket without starting pumps;
// Dial is the normal entry point.
func NewChannel(ws *websocket.Conn, opts ...Option) *Channel {
	c := &Channel{
		conn:       ws,
		send:       make(chan core.Frame, 32),
		handlers:   make(map[string]core.EventHandler),
		pending:    make(map[string]chan json.RawMessage),
		ackTimeout: defaultAckTimeout,
		logger:     log.With().Str("module", "push").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) trySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("channel closed")
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Emit sends a fire-and-forget command.
func (c *Channel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return c.trySend(frame)
}

// Request sends a command and waits for its acknowledgement. Cancelling
// ctx abandons the request; the matching late ack, if it ever arrives,
// is dropped at the wire.
func (c *Channel) Request(ctx context.Context, event string, payload any, reply any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("request %s: %w", event, err)
	}
	ackID := uuid.NewString()
	frame, err := json.Marshal(envelope{Event: event, Data: data, AckID: ackID})
	if err != nil {
		return fmt.Errorf("request %s: %w", event, err)
	}

	ch := make(chan json.RawMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("channel closed")
	}
	c.pending[ackID] = ch
	c.mu.Unlock()

	drop := func() {
		c.mu.Lock()
		delete(c.pending, ackID)
		c.mu.Unlock()
	}

	if err := c.trySend(frame); err != nil {
		drop()
		return fmt.Errorf("request %s: %w", event, err)
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case raw := <-ch:
		if reply == nil {
			return nil
		}
		if err := json.Unmarshal(raw, reply); err != nil {
			return fmt.Errorf("request %s: bad ack payload: %w", event, err)
		}
		return nil
	case <-timer.C:
		drop()
		return fmt.Errorf("request %s: ack timeout", event)
	case <-ctx.Done():
		drop()
		return fmt.Errorf("request %s: %w", event, ctx.Err())
	}
}

func (c *Channel) On(event string, h core.EventHandler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

func (c *Channel) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

func (c *Channel) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *Channel) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				c.logger.Warn().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context) {
	defer func() {
		c.logger.Info().Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				c.logger.Error().Err(err).Msg("readPump read error")
				return
			}
			c.dispatch(data)
		}
	}
}

func (c *Channel) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error().Err(err).Msg("bad json")
		return
	}

	if env.AckID != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.AckID]
		delete(c.pending, env.AckID)
		c.mu.Unlock()
		if !ok {
			// The request that asked for this was already abandoned.
			c.logger.Debug().Str("ack_id", env.AckID).Msg("discarding stale acknowledgement")
			return
		}
		ch <- env.Data
		return
	}

	c.mu.RLock()
	h, ok := c.handlers[env.Event]
	c.mu.RUnlock()
	if !ok {
		c.logger.Warn().Str("event", env.Event).Msg("unknown event")
		return
	}
	h(env.Data)
}
