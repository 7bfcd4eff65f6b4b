package media

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/core"
)

// Capture is a microphone source backed by pion/mediadevices. Muting
// zeroes outgoing samples in an audio transform; the encoder and track
// keep running so unmute is instant and never renegotiates.
type Capture struct {
	track   mediadevices.Track
	enabled atomic.Bool
	level   atomic.Uint64 // math.Float64bits of the last RMS value
	closed  atomic.Bool
}

// NewCodecSelector builds an Opus-only selector for voice capture.
func NewCodecSelector() (*mediadevices.CodecSelector, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	return mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

// OpenMicrophone opens the default microphone. Failures to reach the
// device surface as core.ErrPermissionDenied so callers can offer a retry.
func OpenMicrophone() (core.CaptureSource, error) {
	selector, err := NewCodecSelector()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: selector,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("GetUserMedia failed")
		return nil, fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no audio track", core.ErrPermissionDenied)
	}
	track := tracks[0]

	c := &Capture{track: track}
	c.enabled.Store(true)

	if at, ok := track.(*mediadevices.AudioTrack); ok {
		at.Transform(c.gate())
	}

	track.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "media").Msg("capture track ended")
		}
	})

	log.Info().Str("module", "media").Str("track_id", track.ID()).Msg("microphone captured")
	return c, nil
}

// gate is the audio transform that measures the RMS level of every chunk
// and silences it when the source is disabled.
func (c *Capture) gate() audio.TransformFunc {
	return func(r audio.Reader) audio.Reader {
		return audio.ReaderFunc(func() (wave.Audio, func(), error) {
			chunk, release, err := r.Read()
			if err != nil {
				return nil, nil, err
			}
			c.level.Store(math.Float64bits(rms(chunk)))
			if !c.enabled.Load() {
				silence(chunk)
			}
			return chunk, release, nil
		})
	}
}

func rms(chunk wave.Audio) float64 {
	info := chunk.ChunkInfo()
	n := info.Len * info.Channels
	if n == 0 {
		return 0
	}
	var sum float64
	switch a := chunk.(type) {
	case *wave.Int16Interleaved:
		for _, s := range a.Data {
			v := float64(s) / math.MaxInt16
			sum += v * v
		}
	case *wave.Int16NonInterleaved:
		for _, ch := range a.Data {
			for _, s := range ch {
				v := float64(s) / math.MaxInt16
				sum += v * v
			}
		}
	case *wave.Float32Interleaved:
		for _, s := range a.Data {
			v := float64(s)
			sum += v * v
		}
	case *wave.Float32NonInterleaved:
		for _, ch := range a.Data {
			for _, s := range ch {
				v := float64(s)
				sum += v * v
			}
		}
	default:
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func silence(chunk wave.Audio) {
	switch a := chunk.(type) {
	case *wave.Int16Interleaved:
		for i := range a.Data {
			a.Data[i] = 0
		}
	case *wave.Int16NonInterleaved:
		for _, ch := range a.Data {
			for i := range ch {
				ch[i] = 0
			}
		}
	case *wave.Float32Interleaved:
		for i := range a.Data {
			a.Data[i] = 0
		}
	case *wave.Float32NonInterleaved:
		for _, ch := range a.Data {
			for i := range ch {
				ch[i] = 0
			}
		}
	}
}

func (c *Capture) Track() webrtc.TrackLocal { return c.track }

func (c *Capture) SetEnabled(on bool) { c.enabled.Store(on) }

func (c *Capture) Enabled() bool { return c.enabled.Load() }

func (c *Capture) Level() float64 {
	return math.Float64frombits(c.level.Load())
}

func (c *Capture) Close() {
	if c.closed.Swap(true) {
		return
	}
	if err := c.track.Close(); err != nil {
		log.Error().Err(err).Str("module", "media").Msg("capture close error")
	}
}
