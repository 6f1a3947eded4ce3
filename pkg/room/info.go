package room

import (
	"time"
)

// TrackKind tells what kind of media a track carries.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
	TrackKindData  TrackKind = "data"
)

// ParticipantState is the lifecycle state of a participant within a room.
type ParticipantState string

const (
	ParticipantJoining      ParticipantState = "joining"
	ParticipantConnected    ParticipantState = "connected"
	ParticipantDisconnected ParticipantState = "disconnected"
	ParticipantReconnecting ParticipantState = "reconnecting"
)

// DataKind is the delivery class of a data packet.
type DataKind string

const (
	DataReliable DataKind = "reliable"
	DataLossy    DataKind = "lossy"
)

// RoomInfo describes the room this connection is attached to.
type RoomInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// TrackInfo is the wire descriptor of a published track.
type TrackInfo struct {
	Sid    string    `json:"sid"`
	Name   string    `json:"name,omitempty"`
	Kind   TrackKind `json:"kind"`
	Muted  bool      `json:"muted"`
	Source string    `json:"source,omitempty"`
}

// ParticipantInfo is the wire descriptor of a participant, as the server
// sends it in `joined`, `participant_joined` and `participant_updated`.
type ParticipantInfo struct {
	Sid      string           `json:"sid"`
	Identity string           `json:"identity"`
	Name     string           `json:"name,omitempty"`
	State    ParticipantState `json:"state,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Tracks   []TrackInfo      `json:"tracks,omitempty"`
}

// DataPacket is a single application payload received over a data consumer.
type DataPacket struct {
	Kind           DataKind  `json:"kind"`
	Value          any       `json:"value"`
	ParticipantSid string    `json:"participantSid"`
	Timestamp      time.Time `json:"timestamp"`
}
