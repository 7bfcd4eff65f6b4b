package media

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	sinkPaused int32 = iota
	sinkPlaying
	sinkClosed
)

// RTPSink drains one remote audio track into an output writer. Sinks
// start paused; packets read while paused are dropped so jitter does
// not accumulate before the consumer is resumed.
type RTPSink struct {
	out    io.Writer
	owner  string
	state  atomic.Int32
	cancel context.CancelFunc
	pkts   atomic.Uint64
	logger zerolog.Logger
}

// NewRTPSink builds a paused sink writing marshalled RTP to out. A nil
// out discards packets, which is enough for level metering and tests.
func NewRTPSink(out io.Writer, owner string) *RTPSink {
	if out == nil {
		out = io.Discard
	}
	return &RTPSink{
		out:    out,
		owner:  owner,
		logger: log.With().Str("module", "media.sink").Str("owner", owner).Logger(),
	}
}

// Play reads RTP from the track until the track errors or ctx is done.
// It returns immediately; the drain loop runs in its own goroutine.
func (s *RTPSink) Play(ctx context.Context, track *webrtc.TrackRemote) {
	if s.state.Load() == sinkClosed {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(ctx, track)
}

func (s *RTPSink) loop(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sink ctx done, stopping")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				s.logger.Error().Err(err).Msg("sink read RTP error, stopping")
			}
			return
		}
		if s.state.Load() != sinkPlaying {
			continue
		}
		if !s.write(pkt, buf) {
			return
		}
	}
}

func (s *RTPSink) write(pkt *rtp.Packet, buf []byte) bool {
	n, err := pkt.MarshalTo(buf)
	if err != nil {
		s.logger.Error().Err(err).Msg("sink marshal error")
		return true
	}
	if _, err := s.out.Write(buf[:n]); err != nil {
		s.logger.Error().Err(err).Msg("sink write error, stopping")
		return false
	}
	s.pkts.Add(1)
	return true
}

func (s *RTPSink) Resume() {
	s.state.CompareAndSwap(sinkPaused, sinkPlaying)
}

func (s *RTPSink) Pause() {
	s.state.CompareAndSwap(sinkPlaying, sinkPaused)
}

func (s *RTPSink) Close() {
	if s.state.Swap(sinkClosed) == sinkClosed {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// Packets reports how many RTP packets have been written out.
func (s *RTPSink) Packets() uint64 { return s.pkts.Load() }
