package room

// Event names observable on the top-level emitter and on per-participant
// emitters. The names are part of the public API.
const (
	EventLocalParticipantJoined = "local-participant-joined"
	EventParticipantJoined      = "participant-joined"
	EventParticipantLeft        = "participant-left"
	EventTrackPublished         = "track-published"
	EventTrackUnpublished       = "track-unpublished"
	EventTrackMuted             = "track-muted"
	EventTrackUnmuted           = "track-unmuted"
	EventTrackUnsubscribed      = "track-unsubscribed"
	EventDataReceived           = "data-received"
	EventCallReceived           = "call-received"
	EventCallAccepted           = "call-accepted"
	EventCallRejected           = "call-rejected"
	EventError                  = "error"
)

// TrackEvent is the payload of track-* events.
type TrackEvent struct {
	Participant *Participant
	Publication *TrackPublication
	// Track is set when the publication had a transport handle attached at
	// the time of the event.
	Track RemoteTrack
}

// ParticipantEvent is the payload of participant-* events.
type ParticipantEvent struct {
	Participant *Participant
}

// DataEvent is the payload of data-received.
type DataEvent struct {
	Packet      DataPacket
	Participant *Participant
}

// CallEvent is the payload of call-* events.
type CallEvent struct {
	Call CallInfo
}
