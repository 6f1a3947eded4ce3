// Package transport declares the interfaces the signaling core expects from
// the WebRTC transport binding. The pion-backed implementation lives in the
// pion subpackage; tests substitute fakes.
package transport

import (
	"context"
	"encoding/json"
)

// SubscribeOptions carries per-subscription preferences.
type SubscribeOptions struct {
	MaxSpatialLayer  int
	MaxTemporalLayer int
}

// DataConsumerOptions describes the data consumer the server asked us to add.
type DataConsumerOptions struct {
	ID                   string          `json:"id"`
	SCTPStreamParameters json.RawMessage `json:"sctpStreamParameters"`
	ParticipantSid       string          `json:"participantSid"`
	Label                string          `json:"label"`
	Ordered              bool            `json:"ordered"`
}

// DataConsumer is a transport-level inbound data channel. Callbacks must be
// bound before the first message can arrive, i.e. right after creation.
type DataConsumer interface {
	ID() string
	Label() string
	OnMessage(fn func(payload []byte))
	OnClose(fn func())
	OnError(fn func(err error))
	Close() error
}

// Controller is the transport collaborator the handlers drive. All blocking
// calls take a context; they await remote acknowledgement and may be
// cancelled.
type Controller interface {
	// EnsureWebRTCInitialized lazily brings up the peer connection. Safe to
	// call repeatedly.
	EnsureWebRTCInitialized(ctx context.Context) error
	// InitDataProvider prepares the outbound data channel.
	InitDataProvider(ctx context.Context) error
	SubscribeToTrack(ctx context.Context, trackSid string, opts *SubscribeOptions) error
	UnsubscribeFromTrack(ctx context.Context, trackSid string) error
	SubscribeToAllTracks(ctx context.Context) error
	AddDataConsumer(ctx context.Context, producerID string, opts DataConsumerOptions) (DataConsumer, error)
	// Close releases all transport resources.
	Close() error
}

// ConsumerLayers is implemented by consumers that support simulcast layer
// capping. The adaptive controller feature-detects it with a type assertion.
type ConsumerLayers interface {
	SetMaxSpatialLayer(layer int) error
	SetMaxTemporalLayer(layer int) error
}
