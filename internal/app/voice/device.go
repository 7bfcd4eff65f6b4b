package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Device holds the negotiated media capabilities for one session. The
// authority may push capabilities both proactively and in response to the
// join announcement; both paths converge on one immutable handle.
type Device struct {
	mu     sync.Mutex
	caps   json.RawMessage
	loaded chan struct{}
}

func NewDevice() *Device {
	return &Device{loaded: make(chan struct{})}
}

// Load stores the remote capabilities. Repeated invocation with an
// already-loaded handle is a no-op.
func (d *Device) Load(caps json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.loaded:
		log.Debug().Str("module", "voice.device").Msg("capabilities already loaded, keeping cached handle")
		return nil
	default:
	}
	if len(caps) == 0 || !json.Valid(caps) {
		return fmt.Errorf("%w: invalid capabilities payload", ErrNegotiation)
	}
	d.caps = append(json.RawMessage(nil), caps...)
	close(d.loaded)
	log.Info().Str("module", "voice.device").Int("bytes", len(caps)).Msg("capabilities loaded")
	return nil
}

func (d *Device) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.loaded:
		return true
	default:
		return false
	}
}

// WaitLoaded blocks until capabilities arrive or ctx ends.
func (d *Device) WaitLoaded(ctx context.Context) error {
	d.mu.Lock()
	ch := d.loaded
	d.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNegotiation, ctx.Err())
	}
}

func (d *Device) Capabilities() json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

// Reset discards the handle. A session built after a reset requires a
// brand-new negotiation.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = nil
	d.loaded = make(chan struct{})
}
