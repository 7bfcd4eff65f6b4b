package core

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrPermissionDenied is returned by capture factories when the audio
// device cannot be opened. User-recoverable; callers offer a retry.
var ErrPermissionDenied = errors.New("capture permission denied")

type MediaConn interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// CreateAndSetOffer produces the local handshake half after gathering completes.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer applies the remote handshake half acknowledged by the authority.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// OnClosed sets a callback for cleanup of the media session.
	OnClosed(func())
}

// CaptureSource is a controllable local audio source. Mute toggles the
// enabled flag only; it never closes or recreates the source.
type CaptureSource interface {
	Track() webrtc.TrackLocal
	SetEnabled(bool)
	Enabled() bool
	// Level is the most recent RMS level of the captured signal, 0..1.
	Level() float64
	Close()
}

// PlaybackSink receives a consumed remote stream. Sinks start paused;
// Resume must be called before any frame flows.
type PlaybackSink interface {
	Play(ctx context.Context, track *webrtc.TrackRemote)
	Resume()
	Pause()
	Close()
}
