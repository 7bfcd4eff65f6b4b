package voice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Mafia/internal/app/game"
	"github.com/dkeye/Mafia/internal/core"
	"github.com/dkeye/Mafia/internal/domain"
)

type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionStarting
	SessionActive
	SessionStopping
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStarting:
		return "starting"
	case SessionActive:
		return "active"
	case SessionStopping:
		return "stopping"
	}
	return "unknown"
}

// CaptureFactory acquires the local audio capture source. Failures that
// mean the user refused device access unwrap to core.ErrPermissionDenied.
type CaptureFactory func(ctx context.Context) (core.CaptureSource, error)

// Controller is the single authority for starting and stopping the voice
// session. At most one session is active per game at a time; start is
// idempotent and stop always runs to completion.
type Controller struct {
	push       core.PushChannel
	game       *game.StateMachine
	device     *Device
	transports *TransportManager
	registry   *Registry
	capture    CaptureFactory
	gameID     domain.GameID
	local      string
	logger     zerolog.Logger

	mu    sync.Mutex // serializes the start and stop sequences
	state atomic.Int32
	// epoch identifies the session that issued any in-flight request;
	// completions for an older epoch are discarded.
	epoch      atomic.Uint64
	sessCtx    atomic.Value // context.Context
	sessCancel atomic.Value // context.CancelFunc
	source     core.CaptureSource
	condition  atomic.Value // Condition

	// enabled mirrors the authority's audioStarted/audioStopped override.
	enabled atomic.Bool
	kick    chan struct{}
}

func NewController(
	push core.PushChannel,
	sm *game.StateMachine,
	device *Device,
	transports *TransportManager,
	registry *Registry,
	capture CaptureFactory,
	gameID domain.GameID,
	logger zerolog.Logger,
) *Controller {
	c := &Controller{
		push:       push,
		game:       sm,
		device:     device,
		transports: transports,
		registry:   registry,
		capture:    capture,
		gameID:     gameID,
		local:      sm.LocalName(),
		logger:     logger.With().Str("module", "voice.controller").Logger(),
		kick:       make(chan struct{}, 1),
	}
	c.condition.Store(ConditionNone)
	c.enabled.Store(true)
	return c
}

func (c *Controller) State() SessionState { return SessionState(c.state.Load()) }
func (c *Controller) Active() bool        { return c.State() == SessionActive }

func (c *Controller) Condition() Condition { return c.condition.Load().(Condition) }

// Run is the controller's worker loop. All start/stop sequences execute
// here, one at a time, reconciling actual state with the eligibility
// predicate after every nudge. Blocks until ctx ends, then tears down.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.stop()
			return
		case <-c.kick:
			c.reconcile(ctx)
		}
	}
}

func (c *Controller) reconcile(ctx context.Context) {
	desired := c.game.Eligible() && c.enabled.Load()
	switch {
	case desired && c.State() == SessionIdle:
		if err := c.start(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("voice session start failed")
		}
	case !desired && (c.State() == SessionActive || c.State() == SessionStarting):
		c.stop()
	}
}

// Evaluate nudges the worker after a phase transition or override event.
// If the session should not run, any in-flight start is cancelled first
// so its suspended round-trips abort instead of completing late.
func (c *Controller) Evaluate() {
	if !(c.game.Eligible() && c.enabled.Load()) {
		c.cancelSession()
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Retry clears a reported condition and re-evaluates; used by the retry
// affordance after a permission denial.
func (c *Controller) Retry() {
	c.condition.Store(ConditionNone)
	c.Evaluate()
}

func (c *Controller) cancelSession() {
	if f, ok := c.sessCancel.Load().(context.CancelFunc); ok && f != nil {
		f()
	}
}

func (c *Controller) sessionContext() context.Context {
	if v, ok := c.sessCtx.Load().(context.Context); ok && v != nil {
		return v
	}
	return context.Background()
}

// start runs the session bring-up sequence. Any step failure reports a
// condition and releases whatever earlier steps acquired; the registry
// and transports are left exactly as before the attempt.
func (c *Controller) start(parent context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != SessionIdle {
		return nil
	}
	c.state.Store(int32(SessionStarting))
	epoch := c.epoch.Add(1)
	ctx, cancel := context.WithCancel(parent)
	c.sessCtx.Store(ctx)
	c.sessCancel.Store(cancel)
	c.logger.Info().Uint64("epoch", epoch).Msg("starting voice session")

	// 1. Local capture, muted until the user consciously opts in.
	src, err := c.capture(ctx)
	if err != nil {
		if errors.Is(err, core.ErrPermissionDenied) {
			c.condition.Store(ConditionPermissionDenied)
		} else {
			c.condition.Store(ConditionAudioUnavailable)
		}
		c.state.Store(int32(SessionIdle))
		cancel()
		return err
	}
	src.SetEnabled(false)
	c.source = src

	// 2. Capability exchange, unless a handle already exists.
	if !c.device.Loaded() {
		if err := c.push.Emit(cmdJoinAudio, joinAudioRequest{GameID: c.gameID}); err != nil {
			return c.abortLocked(cancel, err)
		}
		if err := c.device.WaitLoaded(ctx); err != nil {
			return c.abortLocked(cancel, err)
		}
	}

	// 3. Send transport.
	sendT, err := c.transports.Create(ctx, DirectionSend)
	if err != nil {
		return c.abortLocked(cancel, err)
	}

	// 4. Produce the capture source. A produce failure loses only the
	// outbound stream, not the session.
	if p, ok := c.game.LocalPlayer(); ok && p.IsAlive {
		if producerID, err := c.transports.Produce(ctx, sendT, src.Track(), c.local); err != nil {
			c.logger.Warn().Err(err).Msg("produce failed, continuing listen-only")
		} else {
			c.registry.AddProducer(producerID, src)
		}
	}

	// 5. Recv transport; remote tracks route to their consumer sinks as
	// long as this session is still the one that asked for them.
	recvT, err := c.transports.Create(ctx, DirectionRecv)
	if err != nil {
		return c.abortLocked(cancel, err)
	}
	recvT.Conn().OnTrack(func(tctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if c.epoch.Load() != epoch {
			return
		}
		c.registry.AttachTrack(tctx, track)
	})

	// 6. Consume everyone already producing.
	var existing getProducersReply
	if err := c.push.Request(ctx, cmdGetProducers, getProducersRequest{GameID: c.gameID}, &existing); err != nil {
		return c.abortLocked(cancel, err)
	}
	for _, rp := range existing.Producers {
		if err := c.registry.Consume(ctx, recvT.ID(), rp.ProducerID, rp.OwnerIdentity); err != nil {
			c.logger.Warn().Err(err).Str("producer_id", rp.ProducerID).Msg("consume failed")
		}
	}

	c.condition.Store(ConditionNone)
	c.state.Store(int32(SessionActive))
	c.logger.Info().Uint64("epoch", epoch).Msg("voice session active")
	return nil
}

// abortLocked is the resource-safe partial stop after a failed start
// step: everything acquired so far is released, the negotiation handle
// survives for the retry. Callers hold c.mu.
func (c *Controller) abortLocked(cancel context.CancelFunc, err error) error {
	c.condition.Store(ConditionAudioUnavailable)
	c.epoch.Add(1)
	cancel()
	c.registry.Clear()
	c.transports.CloseAll()
	if c.source != nil {
		c.source.Close()
		c.source = nil
	}
	c.state.Store(int32(SessionIdle))
	c.logger.Warn().Err(err).Msg("start aborted, partial stop complete")
	return err
}

// stop runs the teardown sequence to completion regardless of how far the
// session got: every producer and consumer entry, both transports, the
// capture device and the negotiation handle are released.
func (c *Controller) stop() {
	c.cancelSession()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == SessionIdle {
		return
	}
	c.state.Store(int32(SessionStopping))
	c.epoch.Add(1)
	c.registry.Clear()
	c.transports.CloseAll()
	if c.source != nil {
		c.source.Close()
		c.source = nil
	}
	c.device.Reset()
	c.state.Store(int32(SessionIdle))
	c.logger.Info().Msg("voice session stopped")
}

// OnCapabilities handles the rtpCapabilities push event, whichever path
// delivered it.
func (c *Controller) OnCapabilities(data json.RawMessage) {
	var payload struct {
		Capabilities json.RawMessage `json:"capabilities"`
	}
	caps := data
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.Capabilities) > 0 {
		caps = payload.Capabilities
	}
	if err := c.device.Load(caps); err != nil {
		c.logger.Warn().Err(err).Msg("capability load failed")
	}
}

// OnNewProducer handles a remote participant starting to produce while
// the session is active.
func (c *Controller) OnNewProducer(ev RemoteProducer) {
	if c.State() != SessionActive {
		return
	}
	epoch := c.epoch.Load()
	ctx := c.sessionContext()
	go func() {
		if c.epoch.Load() != epoch {
			return
		}
		recvT := c.transports.Recv()
		if recvT == nil {
			return
		}
		if err := c.registry.Consume(ctx, recvT.ID(), ev.ProducerID, ev.OwnerIdentity); err != nil {
			c.logger.Warn().Err(err).Str("producer_id", ev.ProducerID).Msg("consume failed")
		}
	}()
}

func (c *Controller) OnConsumerClosed(ev ConsumerClosed) {
	c.registry.RemoveConsumer(ev.ProducerID)
}

// OnAudioStarted / OnAudioStopped apply the authority's administrative
// override, independent of phase.
func (c *Controller) OnAudioStarted() {
	c.enabled.Store(true)
	c.Evaluate()
}

func (c *Controller) OnAudioStopped() {
	c.enabled.Store(false)
	c.Evaluate()
}

// SetMuted toggles the capture track's enabled flag. It never closes or
// recreates the producer, and dead players cannot unmute.
func (c *Controller) SetMuted(mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return errors.New("no active capture source")
	}
	if !mute {
		if p, ok := c.game.LocalPlayer(); !ok || !p.IsAlive {
			return errors.New("eliminated players stay muted")
		}
	}
	c.source.SetEnabled(!mute)
	return nil
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source == nil || !c.source.Enabled()
}

// Level reports the local capture RMS level, 0 when no session runs.
func (c *Controller) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return 0
	}
	return c.source.Level()
}

// Consumers exposes the registry for state reporting.
func (c *Controller) Consumers() (count int, owners []string) {
	return c.registry.ConsumerCount(), c.registry.ConsumerOwners()
}

func (c *Controller) Producers() int { return c.registry.ProducerCount() }
