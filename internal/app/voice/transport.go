package voice

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/core"
	"github.com/dkeye/Mafia/internal/domain"
)

type TransportState int32

const (
	TransportAbsent TransportState = iota
	TransportRequested
	TransportConnecting
	TransportConnected
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportAbsent:
		return "absent"
	case TransportRequested:
		return "requested"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// Transport is one directional media conduit. It moves forward through
// its states only; a fresh session always builds new handles.
type Transport struct {
	dir   Direction
	id    string
	state atomic.Int32
	conn  core.MediaConn
}

func (t *Transport) ID() string           { return t.id }
func (t *Transport) Direction() Direction { return t.dir }
func (t *Transport) Conn() core.MediaConn { return t.conn }

func (t *Transport) State() TransportState { return TransportState(t.state.Load()) }

func (t *Transport) setState(s TransportState) {
	t.state.Store(int32(s))
	log.Debug().Str("module", "voice.transport").Str("dir", string(t.dir)).Str("state", s.String()).Msg("transport state")
}

func (t *Transport) Close() {
	if t.state.Swap(int32(TransportClosed)) == int32(TransportClosed) {
		return
	}
	if t.conn != nil {
		t.conn.Close()
	}
	log.Info().Str("module", "voice.transport").Str("dir", string(t.dir)).Str("id", t.id).Msg("transport closed")
}

// MediaDialer builds the underlying peer connection for one direction.
type MediaDialer func(dir Direction) (core.MediaConn, error)

// TransportManager creates, connects and tears down exactly one send and
// one recv transport per session, re-used across streams.
type TransportManager struct {
	push   core.PushChannel
	gameID domain.GameID
	dial   MediaDialer

	mu   sync.Mutex
	send *Transport
	recv *Transport
}

func NewTransportManager(push core.PushChannel, gameID domain.GameID, dial MediaDialer) *TransportManager {
	return &TransportManager{push: push, gameID: gameID, dial: dial}
}

func (tm *TransportManager) Send() *Transport {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.send
}

func (tm *TransportManager) Recv() *Transport {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.recv
}

// Create requests transport parameters from the authority, dials the
// local peer connection and round-trips the connect handshake. Calling
// it again for a direction that is already open returns the open handle.
func (tm *TransportManager) Create(ctx context.Context, dir Direction) (*Transport, error) {
	tm.mu.Lock()
	if t := tm.byDirLocked(dir); t != nil && t.State() != TransportClosed {
		tm.mu.Unlock()
		return t, nil
	}
	t := &Transport{dir: dir}
	tm.setByDirLocked(dir, t)
	tm.mu.Unlock()

	if err := tm.connect(ctx, t); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (tm *TransportManager) connect(ctx context.Context, t *Transport) error {
	t.setState(TransportRequested)
	var created createTransportReply
	if err := tm.push.Request(ctx, cmdCreateTransport, createTransportRequest{GameID: tm.gameID, Direction: t.dir}, &created); err != nil {
		return &TransportError{Op: "create", Err: err}
	}
	if created.Error != "" || created.TransportParams == nil {
		return remoteError("create", created.Error)
	}
	t.id = created.TransportParams.ID

	conn, err := tm.dial(t.dir)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	t.conn = conn
	if err := conn.Start(ctx); err != nil {
		return &TransportError{Op: "start", Err: err}
	}
	t.setState(TransportConnecting)

	offer, err := conn.CreateAndSetOffer()
	if err != nil {
		return &TransportError{Op: "offer", Err: err}
	}
	var connected connectTransportReply
	req := connectTransportRequest{
		GameID:          tm.gameID,
		TransportID:     t.id,
		HandshakeParams: HandshakeParams{Type: offer.Type.String(), SDP: offer.SDP},
	}
	if err := tm.push.Request(ctx, cmdConnectTransport, req, &connected); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	if connected.Error != "" || connected.HandshakeParams == nil {
		return remoteError("connect", connected.Error)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: connected.HandshakeParams.SDP}
	if err := conn.ApplyAnswer(answer); err != nil {
		return &TransportError{Op: "answer", Err: err}
	}
	t.setState(TransportConnected)
	log.Info().Str("module", "voice.transport").Str("dir", string(t.dir)).Str("id", t.id).Msg("transport connected")
	return nil
}

// Produce attaches the local track to the send transport and relays the
// produce request. An error acknowledgement aborts only this produce.
func (tm *TransportManager) Produce(ctx context.Context, t *Transport, track webrtc.TrackLocal, owner string) (string, error) {
	if t == nil || t.State() != TransportConnected {
		return "", remoteError("produce", "send transport not connected")
	}
	if _, err := t.conn.AddLocalTrack(track); err != nil {
		return "", &TransportError{Op: "produce", Err: err}
	}
	req := produceRequest{
		GameID:        tm.gameID,
		TransportID:   t.id,
		Kind:          "audio",
		MediaParams:   mediaParams{TrackID: track.ID(), StreamID: track.StreamID()},
		OwnerIdentity: owner,
	}
	var reply produceReply
	if err := tm.push.Request(ctx, cmdProduce, req, &reply); err != nil {
		return "", &TransportError{Op: "produce", Err: err}
	}
	if reply.Error != "" || reply.ProducerID == "" {
		return "", remoteError("produce", reply.Error)
	}
	return reply.ProducerID, nil
}

// CloseAll destroys both handles. Safe to call on a partially built pair.
func (tm *TransportManager) CloseAll() {
	tm.mu.Lock()
	send, recv := tm.send, tm.recv
	tm.send, tm.recv = nil, nil
	tm.mu.Unlock()
	if send != nil {
		send.Close()
	}
	if recv != nil {
		recv.Close()
	}
}

func (tm *TransportManager) byDirLocked(dir Direction) *Transport {
	if dir == DirectionSend {
		return tm.send
	}
	return tm.recv
}

func (tm *TransportManager) setByDirLocked(dir Direction, t *Transport) {
	if dir == DirectionSend {
		tm.send = t
	} else {
		tm.recv = t
	}
}
