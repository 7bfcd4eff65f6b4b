package voice

import (
	"encoding/json"

	"github.com/dkeye/Mafia/internal/domain"
)

// Command and event names on the push channel.
const (
	cmdJoinAudio        = "joinAudio"
	cmdCreateTransport  = "createTransport"
	cmdConnectTransport = "connectTransport"
	cmdProduce          = "produce"
	cmdConsume          = "consume"
	cmdGetProducers     = "getProducers"

	EventRTPCapabilities = "rtpCapabilities"
	EventNewProducer     = "newProducer"
	EventConsumerClosed  = "consumerClosed"
	EventAudioStarted    = "audioStarted"
	EventAudioStopped    = "audioStopped"
)

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// HandshakeParams carries one half of the transport connect negotiation
// (DTLS-equivalent) through the push channel.
type HandshakeParams struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// TransportParams is the remote authority's description of a transport.
type TransportParams struct {
	ID string `json:"id"`
}

// RemoteProducer announces a remote participant's stream.
type RemoteProducer struct {
	ProducerID    string `json:"producerId"`
	OwnerIdentity string `json:"ownerIdentity"`
}

// ConsumerClosed scopes a close signal to a single consumer entry.
type ConsumerClosed struct {
	ProducerID string `json:"producerId"`
}

type joinAudioRequest struct {
	GameID domain.GameID `json:"gameId"`
}

type createTransportRequest struct {
	GameID    domain.GameID `json:"gameId"`
	Direction Direction     `json:"direction"`
}

type createTransportReply struct {
	TransportParams *TransportParams `json:"transportParams"`
	Error           string           `json:"error,omitempty"`
}

type connectTransportRequest struct {
	GameID          domain.GameID   `json:"gameId"`
	TransportID     string          `json:"transportId"`
	HandshakeParams HandshakeParams `json:"handshakeParams"`
}

type connectTransportReply struct {
	HandshakeParams *HandshakeParams `json:"handshakeParams"`
	Error           string           `json:"error,omitempty"`
}

type mediaParams struct {
	TrackID  string `json:"trackId"`
	StreamID string `json:"streamId,omitempty"`
}

type produceRequest struct {
	GameID        domain.GameID `json:"gameId"`
	TransportID   string        `json:"transportId"`
	Kind          string        `json:"kind"`
	MediaParams   mediaParams   `json:"mediaParams"`
	OwnerIdentity string        `json:"ownerIdentity"`
}

type produceReply struct {
	ProducerID string `json:"producerId"`
	Error      string `json:"error,omitempty"`
}

type consumeRequest struct {
	GameID       domain.GameID   `json:"gameId"`
	TransportID  string          `json:"transportId"`
	ProducerID   string          `json:"producerId"`
	Capabilities json.RawMessage `json:"capabilities"`
}

type consumerParams struct {
	ConsumerID string `json:"consumerId"`
	ProducerID string `json:"producerId"`
}

type consumeReply struct {
	ConsumerParams *consumerParams `json:"consumerParams"`
	Error          string          `json:"error,omitempty"`
}

type getProducersRequest struct {
	GameID domain.GameID `json:"gameId"`
}

type getProducersReply struct {
	Producers []RemoteProducer `json:"producers"`
}
