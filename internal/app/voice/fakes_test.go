package voice_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Mafia/internal/core"
)

// fakePush scripts the authority side of the push channel. answer is
// consulted per request event; a nil entry yields an error ack. Payloads
// reach the answer func JSON-roundtripped into a generic map, the way
// the authority would see them.
type fakePush struct {
	mu       sync.Mutex
	emits    []string
	requests []string
	answers  map[string]func(payload any) (any, error)
	handlers map[string]core.EventHandler
	closed   bool

	// emitHook runs synchronously after each Emit, letting tests script
	// the authority's reaction to fire-and-forget commands.
	emitHook func(event string)
}

func newFakePush() *fakePush {
	return &fakePush{
		answers:  make(map[string]func(payload any) (any, error)),
		handlers: make(map[string]core.EventHandler),
	}
}

func (f *fakePush) answer(event string, fn func(payload any) (any, error)) {
	f.mu.Lock()
	f.answers[event] = fn
	f.mu.Unlock()
}

func (f *fakePush) Emit(event string, payload any) error {
	f.mu.Lock()
	f.emits = append(f.emits, event)
	hook := f.emitHook
	f.mu.Unlock()
	if hook != nil {
		hook(event)
	}
	return nil
}

func (f *fakePush) Request(ctx context.Context, event string, payload any, reply any) error {
	f.mu.Lock()
	f.requests = append(f.requests, event)
	fn := f.answers[event]
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return errors.New("unexpected request: " + event)
	}
	wire, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var decoded map[string]any
	if err := json.Unmarshal(wire, &decoded); err != nil {
		return err
	}
	resp, err := fn(decoded)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, reply)
}

func (f *fakePush) On(event string, h core.EventHandler) {
	f.mu.Lock()
	f.handlers[event] = h
	f.mu.Unlock()
}

func (f *fakePush) Off(event string) {
	f.mu.Lock()
	delete(f.handlers, event)
	f.mu.Unlock()
}

func (f *fakePush) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakePush) requested(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.requests {
		if e == event {
			n++
		}
	}
	return n
}

// fakeConn is an offline core.MediaConn.
type fakeConn struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	answered bool
	tracks   []webrtc.TrackLocal
	onTrack  func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)

	failOffer bool
}

func (c *fakeConn) Start(ctx context.Context) error {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	if c.failOffer {
		return nil, errors.New("offer failed")
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *fakeConn) ApplyAnswer(webrtc.SessionDescription) error {
	c.mu.Lock()
	c.answered = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	c.mu.Lock()
	c.tracks = append(c.tracks, track)
	c.mu.Unlock()
	return nil, nil
}

func (c *fakeConn) OnTrack(fn func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.onTrack = fn
}

func (c *fakeConn) OnClosed(func()) {}

// fakeSource is an offline core.CaptureSource.
type fakeSource struct {
	mu      sync.Mutex
	enabled bool
	closed  bool
	track   webrtc.TrackLocal
}

func newFakeSource() *fakeSource {
	track, _ := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "mic")
	return &fakeSource{enabled: true, track: track}
}

func (s *fakeSource) Track() webrtc.TrackLocal { return s.track }

func (s *fakeSource) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

func (s *fakeSource) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *fakeSource) Level() float64 { return 0.5 }

func (s *fakeSource) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeSink is an offline core.PlaybackSink.
type fakeSink struct {
	mu      sync.Mutex
	playing bool
	resumed int
	closed  bool
}

func (s *fakeSink) Play(ctx context.Context, track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	s.resumed++
	s.mu.Unlock()
}

func (s *fakeSink) Pause() {}

func (s *fakeSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
