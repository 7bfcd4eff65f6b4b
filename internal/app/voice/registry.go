package voice

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mafia/internal/core"
	"github.com/dkeye/Mafia/internal/domain"
)

// ProducerEntry is a locally produced stream. The capture source stays
// owned by the session controller; the entry only references it.
type ProducerEntry struct {
	ID     string
	Source core.CaptureSource
}

// ConsumerEntry is a locally subscribed remote stream.
type ConsumerEntry struct {
	ProducerID string
	ConsumerID string
	Owner      string
	Sink       core.PlaybackSink
}

// SinkFactory builds the playback sink for one consumer.
type SinkFactory func() core.PlaybackSink

// Registry tracks produced and consumed streams for one session. At most
// one consumer entry exists per remote producer id.
type Registry struct {
	push    core.PushChannel
	gameID  domain.GameID
	local   string
	device  *Device
	newSink SinkFactory

	mu        sync.Mutex
	producers map[string]*ProducerEntry
	consumers map[string]*ConsumerEntry
	pending   map[string]struct{}
	// gen changes on Clear; a consume round-trip that started under an
	// older generation must not apply its result.
	gen uint64
}

func NewRegistry(push core.PushChannel, gameID domain.GameID, local string, device *Device, newSink SinkFactory) *Registry {
	return &Registry{
		push:      push,
		gameID:    gameID,
		local:     local,
		device:    device,
		newSink:   newSink,
		producers: make(map[string]*ProducerEntry),
		consumers: make(map[string]*ConsumerEntry),
		pending:   make(map[string]struct{}),
	}
}

func (r *Registry) AddProducer(id string, src core.CaptureSource) {
	r.mu.Lock()
	r.producers[id] = &ProducerEntry{ID: id, Source: src}
	r.mu.Unlock()
	log.Info().Str("module", "voice.registry").Str("producer_id", id).Msg("producer registered")
}

func (r *Registry) ProducerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.producers)
}

func (r *Registry) ConsumerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}

// ConsumerOwners lists the remote identities currently consumed.
func (r *Registry) ConsumerOwners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.consumers))
	for _, e := range r.consumers {
		out = append(out, e.Owner)
	}
	return out
}

// Consume subscribes to one announced remote producer. It is a no-op for
// an id that already has (or is building) an entry, and never consumes
// the local identity's own production.
func (r *Registry) Consume(ctx context.Context, transportID, producerID, owner string) error {
	if owner == r.local {
		log.Debug().Str("module", "voice.registry").Str("producer_id", producerID).Msg("skipping own production")
		return nil
	}
	r.mu.Lock()
	if _, ok := r.consumers[producerID]; ok {
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.pending[producerID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.pending[producerID] = struct{}{}
	gen := r.gen
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, producerID)
		r.mu.Unlock()
	}()

	req := consumeRequest{
		GameID:       r.gameID,
		TransportID:  transportID,
		ProducerID:   producerID,
		Capabilities: r.device.Capabilities(),
	}
	var reply consumeReply
	if err := r.push.Request(ctx, cmdConsume, req, &reply); err != nil {
		return &TransportError{Op: "consume", Err: err}
	}
	if reply.Error != "" || reply.ConsumerParams == nil {
		return remoteError("consume", reply.Error)
	}

	entry := &ConsumerEntry{
		ProducerID: producerID,
		ConsumerID: reply.ConsumerParams.ConsumerID,
		Owner:      owner,
		Sink:       r.newSink(),
	}
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		entry.Sink.Close()
		log.Debug().Str("module", "voice.registry").Str("producer_id", producerID).Msg("discarding consume result from a cleared session")
		return nil
	}
	if _, ok := r.consumers[producerID]; ok {
		r.mu.Unlock()
		entry.Sink.Close()
		return nil
	}
	r.consumers[producerID] = entry
	r.mu.Unlock()

	// Sinks are built paused; nothing flows until resumed.
	entry.Sink.Resume()
	log.Info().Str("module", "voice.registry").Str("producer_id", producerID).Str("owner", owner).Msg("consuming remote producer")
	return nil
}

// AttachTrack routes an arriving remote track to its consumer's sink.
func (r *Registry) AttachTrack(ctx context.Context, track *webrtc.TrackRemote) {
	r.mu.Lock()
	entry, ok := r.consumers[track.StreamID()]
	if !ok {
		entry, ok = r.consumers[track.ID()]
	}
	r.mu.Unlock()
	if !ok {
		log.Warn().Str("module", "voice.registry").Str("stream_id", track.StreamID()).Msg("track without consumer entry")
		return
	}
	entry.Sink.Play(ctx, track)
}

// RemoveConsumer tears down exactly one entry, leaving siblings intact.
func (r *Registry) RemoveConsumer(producerID string) {
	r.mu.Lock()
	entry, ok := r.consumers[producerID]
	delete(r.consumers, producerID)
	r.mu.Unlock()
	if !ok {
		return
	}
	entry.Sink.Close()
	log.Info().Str("module", "voice.registry").Str("producer_id", producerID).Msg("consumer removed")
}

// Clear drops every entry and releases every playback sink. Capture
// sources are not closed here; the controller owns them.
func (r *Registry) Clear() {
	r.mu.Lock()
	consumers := r.consumers
	r.producers = make(map[string]*ProducerEntry)
	r.consumers = make(map[string]*ConsumerEntry)
	r.pending = make(map[string]struct{})
	r.gen++
	r.mu.Unlock()
	for _, e := range consumers {
		e.Sink.Close()
	}
	log.Info().Str("module", "voice.registry").Int("consumers_closed", len(consumers)).Msg("registry cleared")
}
