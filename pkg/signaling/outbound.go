package signaling

import (
	"github.com/bytepulseflow/pulsewave/pkg/room"
)

// Outbound message types (client to server).
const (
	TypeDataSend         = "data"
	TypeSubscribeTrack   = "subscribe_track"
	TypeUnsubscribeTrack = "unsubscribe_track"
	TypeCallRequest      = "call_request"
	TypeCallAccept       = "call_accept"
	TypeCallReject       = "call_reject"
	TypeMediaControl     = "media_control"
	TypeSetLayers        = "set_preferred_layers"
	TypeLeave            = "leave"
)

// DataSend publishes an application payload to the room.
type DataSend struct {
	Type  string        `json:"type"`
	Kind  room.DataKind `json:"kind"`
	Value any           `json:"value"`
}

func NewDataSend(kind room.DataKind, value any) DataSend {
	return DataSend{Type: TypeDataSend, Kind: kind, Value: value}
}

// SubscribeTrack asks the server to start forwarding a track.
type SubscribeTrack struct {
	Type     string `json:"type"`
	TrackSid string `json:"trackSid"`
	// Optional initial layer caps.
	MaxSpatialLayer  int `json:"maxSpatialLayer,omitempty"`
	MaxTemporalLayer int `json:"maxTemporalLayer,omitempty"`
}

func NewSubscribeTrack(trackSid string) SubscribeTrack {
	return SubscribeTrack{Type: TypeSubscribeTrack, TrackSid: trackSid}
}

// UnsubscribeTrack asks the server to stop forwarding a track.
type UnsubscribeTrack struct {
	Type     string `json:"type"`
	TrackSid string `json:"trackSid"`
}

func NewUnsubscribeTrack(trackSid string) UnsubscribeTrack {
	return UnsubscribeTrack{Type: TypeUnsubscribeTrack, TrackSid: trackSid}
}

// CallRequest initiates a 1-to-1 call with another participant.
type CallRequest struct {
	Type      string         `json:"type"`
	CallID    string         `json:"callId"`
	TargetSid string         `json:"targetSid"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CallAnswer accepts or rejects an incoming call.
type CallAnswer struct {
	Type   string `json:"type"`
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// MediaControl enables or disables a local capture device server-side.
type MediaControl struct {
	Type    string         `json:"type"`
	Kind    room.TrackKind `json:"kind"`
	Enabled bool           `json:"enabled"`
}

func NewMediaControl(kind room.TrackKind, enabled bool) MediaControl {
	return MediaControl{Type: TypeMediaControl, Kind: kind, Enabled: enabled}
}

// SetLayers asks the server to cap the simulcast layers it forwards for a
// subscribed track.
type SetLayers struct {
	Type          string `json:"type"`
	TrackSid      string `json:"trackSid"`
	SpatialLayer  int    `json:"spatialLayer"`
	TemporalLayer int    `json:"temporalLayer"`
}

// Leave announces an orderly departure from the room.
type Leave struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}
