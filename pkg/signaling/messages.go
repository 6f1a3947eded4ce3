package signaling

import (
	"encoding/json"

	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/tidwall/gjson"
)

// Inbound message types (server to client). Every frame carries a string
// `type` field; frames with an unknown type are dropped with a warning so
// that newer servers do not crash older clients.
const (
	TypeJoined              = "joined"
	TypeParticipantJoined   = "participant_joined"
	TypeParticipantUpdated  = "participant_updated"
	TypeParticipantLeft     = "participant_left"
	TypeTrackPublished      = "track_published"
	TypeTrackUnpublished    = "track_unpublished"
	TypeTrackSubscribed     = "track_subscribed"
	TypeTrackUnsubscribed   = "track_unsubscribed"
	TypeTrackMuted          = "track_muted"
	TypeTrackUnmuted        = "track_unmuted"
	TypeTransportCreated    = "transport_created"
	TypeTransportConnected  = "transport_connected"
	TypeData                = "data"
	TypeDataConsumerCreated = "data_consumer_created"
	TypeDataConsumerClosed  = "data_consumer_closed"
	TypeDataProducerCreated = "data_producer_created"
	TypeCallReceived        = "call_received"
	TypeCallAccepted        = "call_accepted"
	TypeCallRejected        = "call_rejected"
	TypeError               = "error"
)

// MessageType extracts the `type` tag from a raw frame. The second return
// value is false when the field is absent or not a string.
func MessageType(raw []byte) (string, bool) {
	tag := gjson.GetBytes(raw, "type")
	if tag.Type != gjson.String {
		return "", false
	}
	return tag.String(), true
}

type JoinedMessage struct {
	Room              room.RoomInfo          `json:"room"`
	RTPCapabilities   json.RawMessage        `json:"rtpCapabilities"`
	Participant       room.ParticipantInfo   `json:"participant"`
	OtherParticipants []room.ParticipantInfo `json:"otherParticipants"`
}

type ParticipantJoinedMessage struct {
	Participant room.ParticipantInfo `json:"participant"`
}

type ParticipantUpdatedMessage struct {
	Participant room.ParticipantInfo `json:"participant"`
}

type ParticipantLeftMessage struct {
	ParticipantSid string `json:"participantSid"`
}

type TrackPublishedMessage struct {
	ParticipantSid string         `json:"participantSid"`
	Track          room.TrackInfo `json:"track"`
}

type TrackUnpublishedMessage struct {
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type TrackSubscriptionMessage struct {
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type TrackMuteMessage struct {
	ParticipantSid string `json:"participantSid"`
	TrackSid       string `json:"trackSid"`
}

type DataMessage struct {
	ParticipantSid string        `json:"participantSid"`
	Kind           room.DataKind `json:"kind"`
	Payload        any           `json:"payload"`
}

type DataConsumerCreatedMessage struct {
	DataProducerID       string          `json:"dataProducerId"`
	ID                   string          `json:"id"`
	SCTPStreamParameters json.RawMessage `json:"sctpStreamParameters"`
	ParticipantSid       string          `json:"participantSid"`
	Label                string          `json:"label"`
	Ordered              bool            `json:"ordered"`
}

type DataConsumerClosedMessage struct {
	ID string `json:"id"`
}

type DataProducerCreatedMessage struct {
	ID string `json:"id"`
}

type CallMessage struct {
	CallID    string                `json:"callId"`
	CallerSid string                `json:"callerSid"`
	TargetSid string                `json:"targetSid"`
	Caller    *room.ParticipantInfo `json:"caller,omitempty"`
	Target    *room.ParticipantInfo `json:"target,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Metadata  map[string]any        `json:"metadata,omitempty"`
}

type ErrorMessage struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// participantInfoFrom decodes a participant descriptor from a frame that may
// either nest it under the given key or inline the fields at the top level.
// Servers of both generations are in the wild, so the handlers tolerate both.
func participantInfoFrom(raw json.RawMessage, key string) (room.ParticipantInfo, bool) {
	var info room.ParticipantInfo

	if nested := gjson.GetBytes(raw, key); nested.IsObject() {
		if err := json.Unmarshal([]byte(nested.Raw), &info); err == nil && info.Sid != "" {
			return info, true
		}
	}

	if err := json.Unmarshal(raw, &info); err == nil && info.Sid != "" {
		return info, true
	}

	return room.ParticipantInfo{}, false
}

// sidFrom extracts an identifier that may live under either of the two keys.
func sidFrom(raw json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if v := gjson.GetBytes(raw, key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
