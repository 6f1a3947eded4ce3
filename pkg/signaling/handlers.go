package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/tidwall/gjson"
)

// DefaultHandlers returns one handler per inbound message type. Handlers are
// free functions: everything they touch comes in through the Context.
func DefaultHandlers() []Handler {
	return []Handler{
		{TypeJoined, handleJoined},
		{TypeParticipantJoined, handleParticipantJoined},
		{TypeParticipantUpdated, handleParticipantUpdated},
		{TypeParticipantLeft, handleParticipantLeft},
		{TypeTrackPublished, handleTrackPublished},
		{TypeTrackUnpublished, handleTrackUnpublished},
		{TypeTrackSubscribed, handleTrackSubscribed},
		{TypeTrackUnsubscribed, handleTrackUnsubscribed},
		{TypeTrackMuted, muteHandler(true)},
		{TypeTrackUnmuted, muteHandler(false)},
		{TypeTransportCreated, logOnly("transport created")},
		{TypeTransportConnected, logOnly("transport connected")},
		{TypeData, handleData},
		{TypeDataConsumerCreated, handleDataConsumerCreated},
		{TypeDataConsumerClosed, logOnly("data consumer closed")},
		{TypeDataProducerCreated, logOnly("data producer created")},
		{TypeCallReceived, handleCallReceived},
		{TypeCallAccepted, handleCallAccepted},
		{TypeCallRejected, handleCallRejected},
		{TypeError, handleError},
	}
}

// RegisterDefaults installs all default handlers into the registry.
func RegisterDefaults(registry *Registry) {
	for _, handler := range DefaultHandlers() {
		registry.Register(handler)
	}
}

func handleJoined(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg JoinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	hctx.Store.SetRoom(msg.Room)
	hctx.Store.SetRTPCapabilities(msg.RTPCapabilities)

	local := room.NewLocalParticipant(msg.Participant, hctx.Capabilities, hctx.Logger)
	local.SetState(room.ParticipantConnected)
	hctx.Store.SetLocal(local)
	hctx.Events.Emit(room.EventLocalParticipantJoined, room.ParticipantEvent{Participant: local})

	for _, info := range msg.OtherParticipants {
		upsertRemote(hctx, info)
	}

	if hctx.Options.AutoSubscribe {
		hctx.Defer(func(ctx context.Context) {
			if err := hctx.Transport.EnsureWebRTCInitialized(ctx); err != nil {
				hctx.Logger.WithError(err).Warn("auto-subscribe: WebRTC initialization failed")
				return
			}
			if err := hctx.Transport.InitDataProvider(ctx); err != nil {
				hctx.Logger.WithError(err).Warn("auto-subscribe: data provider initialization failed")
			}
			if err := hctx.Transport.SubscribeToAllTracks(ctx); err != nil {
				hctx.Logger.WithError(err).Warn("auto-subscribe: subscribing to tracks failed")
			}
		})
	}

	hctx.Logger.WithField("room", msg.Room.ID).Info("joined the room")
	return nil
}

func handleParticipantJoined(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	info, ok := participantInfoFrom(raw, "participant")
	if !ok {
		return errors.New("participant_joined without a participant descriptor")
	}

	upsertRemote(hctx, info)
	return nil
}

func handleParticipantUpdated(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	info, ok := participantInfoFrom(raw, "participant")
	if !ok {
		return errors.New("participant_updated without a participant descriptor")
	}

	if participant := hctx.Store.Remote(info.Sid); participant != nil {
		participant.UpdateInfo(info)
	}
	return nil
}

func handleParticipantLeft(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	sid := sidFrom(raw, "participantSid", "sid")
	if sid == "" {
		return nil
	}

	// Teardown drops the participant's listeners and publications; later
	// track events for this sid become silent no-ops.
	participant := hctx.Store.RemoveRemote(sid)
	if participant == nil {
		return nil
	}

	hctx.Events.Emit(room.EventParticipantLeft, room.ParticipantEvent{Participant: participant})
	return nil
}

func handleTrackPublished(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg TrackPublishedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	if msg.ParticipantSid == "" {
		msg.ParticipantSid = sidFrom(raw, "sid")
	}

	participant := hctx.Store.Remote(msg.ParticipantSid)
	if participant == nil {
		// State catches up on the next participant update.
		return nil
	}

	publication, _ := participant.AddTrack(msg.Track)
	hctx.Events.Emit(room.EventTrackPublished, room.TrackEvent{
		Participant: participant,
		Publication: publication,
	})

	if hctx.Options.AutoSubscribe {
		trackSid := msg.Track.Sid
		hctx.Defer(func(ctx context.Context) {
			if err := hctx.Transport.EnsureWebRTCInitialized(ctx); err != nil {
				hctx.Logger.WithError(err).Warn("auto-subscribe: WebRTC initialization failed")
				return
			}
			if err := hctx.Transport.SubscribeToTrack(ctx, trackSid, nil); err != nil {
				hctx.Logger.WithError(err).WithField("track", trackSid).Warn("auto-subscribe failed")
			}
		})
	}

	return nil
}

func handleTrackUnpublished(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg TrackUnpublishedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	participant := hctx.Store.Remote(msg.ParticipantSid)
	if participant == nil {
		return nil
	}

	publication := participant.GetTrack(msg.TrackSid)
	if publication == nil {
		return nil
	}

	// The publication record stays in the map so that a re-publish of the
	// same sid transparently reuses it.
	publication.ClearTrack()
	hctx.Events.Emit(room.EventTrackUnpublished, room.TrackEvent{
		Participant: participant,
		Publication: publication,
	})
	return nil
}

// track_subscribed is a synchronization marker: the transport layer owns the
// handle attachment.
func handleTrackSubscribed(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg TrackSubscriptionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	hctx.Logger.WithField("track", msg.TrackSid).Debug("track subscribed")
	return nil
}

func handleTrackUnsubscribed(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg TrackSubscriptionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	participant := hctx.Store.Remote(msg.ParticipantSid)
	if participant == nil {
		return nil
	}

	publication := participant.GetTrack(msg.TrackSid)
	if publication == nil {
		return nil
	}

	track := publication.ClearTrack()
	if track == nil {
		return nil
	}

	track.Unsubscribed()
	hctx.Events.Emit(room.EventTrackUnsubscribed, room.TrackEvent{
		Participant: participant,
		Publication: publication,
		Track:       track,
	})
	return nil
}

func muteHandler(muted bool) HandlerFunc {
	return func(ctx context.Context, hctx *Context, raw json.RawMessage) error {
		var msg TrackMuteMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}

		participant := hctx.Store.Find(msg.ParticipantSid)
		if participant == nil {
			return nil
		}

		publication := participant.GetTrack(msg.TrackSid)
		if publication == nil {
			return nil
		}

		publication.SetMuted(muted)

		// The mute event only makes sense to observers with an attached
		// handle; a bare publication has nothing to pause.
		track := publication.Track()
		if track == nil {
			return nil
		}

		eventName := room.EventTrackMuted
		if !muted {
			eventName = room.EventTrackUnmuted
		}
		hctx.Events.Emit(eventName, room.TrackEvent{
			Participant: participant,
			Publication: publication,
			Track:       track,
		})
		return nil
	}
}

func logOnly(message string) HandlerFunc {
	return func(ctx context.Context, hctx *Context, raw json.RawMessage) error {
		hctx.Logger.Debug(message)
		return nil
	}
}

func handleData(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg DataMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	if msg.Kind == "" {
		msg.Kind = room.DataReliable
	}

	participant := hctx.Store.Find(msg.ParticipantSid)
	if participant == nil {
		// State catches up on the next participant update.
		return nil
	}

	hctx.Events.Emit(room.EventDataReceived, room.DataEvent{
		Packet: room.DataPacket{
			Kind:           msg.Kind,
			Value:          msg.Payload,
			ParticipantSid: msg.ParticipantSid,
			Timestamp:      hctx.now(),
		},
		Participant: participant,
	})
	return nil
}

func handleDataConsumerCreated(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg DataConsumerCreatedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	consumer, err := hctx.Transport.AddDataConsumer(ctx, msg.DataProducerID, transport.DataConsumerOptions{
		ID:                   msg.ID,
		SCTPStreamParameters: msg.SCTPStreamParameters,
		ParticipantSid:       msg.ParticipantSid,
		Label:                msg.Label,
		Ordered:              msg.Ordered,
	})
	if err != nil {
		return err
	}

	kind := room.DataReliable
	if strings.Contains(strings.ToLower(msg.Label), "lossy") {
		kind = room.DataLossy
	}

	participantSid := msg.ParticipantSid
	consumer.OnMessage(func(payload []byte) {
		// String payloads are usually JSON; fall back to the raw text when
		// they are not.
		var value any
		if err := json.Unmarshal(payload, &value); err != nil {
			value = string(payload)
		}

		hctx.Events.Emit(room.EventDataReceived, room.DataEvent{
			Packet: room.DataPacket{
				Kind:           kind,
				Value:          value,
				ParticipantSid: participantSid,
				Timestamp:      hctx.now(),
			},
			Participant: hctx.Store.Find(participantSid),
		})
	})
	consumer.OnClose(func() {
		hctx.Logger.WithField("consumer", consumer.ID()).Debug("data consumer closed")
	})
	consumer.OnError(func(err error) {
		hctx.Logger.WithField("consumer", consumer.ID()).WithError(err).Warn("data consumer error")
	})

	return nil
}

func handleCallReceived(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg CallMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	caller := upsertCallParty(hctx, msg.CallerSid, msg.Caller)

	call := room.CallInfo{
		CallID:    msg.CallID,
		CallerSid: msg.CallerSid,
		TargetSid: msg.TargetSid,
		Caller:    caller,
		Metadata:  msg.Metadata,
		State:     room.CallPending,
		StartTime: hctx.now(),
	}
	hctx.Calls[msg.CallID] = call

	hctx.Events.Emit(room.EventCallReceived, room.CallEvent{Call: call})
	return nil
}

func handleCallAccepted(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg CallMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	target := upsertCallParty(hctx, msg.TargetSid, msg.Target)

	call, ok := hctx.Calls[msg.CallID]
	if !ok {
		call = room.CallInfo{
			CallID:    msg.CallID,
			CallerSid: msg.CallerSid,
			TargetSid: msg.TargetSid,
			StartTime: hctx.now(),
		}
	}
	call.Participant = target
	call.Metadata = mergeMetadata(call.Metadata, msg.Metadata)
	call = call.WithState(room.CallAccepted, hctx.now())
	hctx.Calls[msg.CallID] = call

	hctx.Events.Emit(room.EventCallAccepted, room.CallEvent{Call: call})
	return nil
}

func handleCallRejected(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	var msg CallMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	target := upsertCallParty(hctx, msg.TargetSid, msg.Target)

	call, ok := hctx.Calls[msg.CallID]
	if !ok {
		call = room.CallInfo{
			CallID:    msg.CallID,
			CallerSid: msg.CallerSid,
			TargetSid: msg.TargetSid,
			StartTime: hctx.now(),
		}
	}
	call.Participant = target
	call.Metadata = mergeMetadata(call.Metadata, msg.Metadata)
	if msg.Reason != "" {
		call.Metadata = mergeMetadata(call.Metadata, map[string]any{"reason": msg.Reason})
	}
	call = call.WithState(room.CallRejected, hctx.now())
	hctx.Calls[msg.CallID] = call

	hctx.Events.Emit(room.EventCallRejected, room.CallEvent{Call: call})
	return nil
}

func handleError(ctx context.Context, hctx *Context, raw json.RawMessage) error {
	message := "Unknown error"
	if v := gjson.GetBytes(raw, "error.message"); v.Type == gjson.String && v.String() != "" {
		message = v.String()
	} else if v := gjson.GetBytes(raw, "message"); v.Type == gjson.String && v.String() != "" {
		message = v.String()
	}

	hctx.Events.Emit(room.EventError, errors.New(message))
	return nil
}

// upsertRemote inserts a remote participant built from the descriptor, or
// reconciles the existing one when the sid is already known (a duplicate
// participant_joined is an update). New participants get their subscribe
// callback wired and their track events bridged to the top-level emitter.
func upsertRemote(hctx *Context, info room.ParticipantInfo) *room.Participant {
	if existing := hctx.Store.Remote(info.Sid); existing != nil {
		existing.UpdateInfo(info)
		return existing
	}

	subscribe := func(ctx context.Context, trackSid string, subscribe bool) error {
		if subscribe {
			return hctx.Transport.SubscribeToTrack(ctx, trackSid, nil)
		}
		return hctx.Transport.UnsubscribeFromTrack(ctx, trackSid)
	}

	participant := room.NewRemoteParticipant(info, subscribe, hctx.Logger)

	// Reconciliation via UpdateInfo emits on the participant emitter; the
	// bridge re-emits on the top-level one. Teardown removes the bridge
	// with the rest of the participant's listeners.
	participant.Events().On(room.EventTrackPublished, func(payload any) {
		hctx.Events.Emit(room.EventTrackPublished, payload)
	})
	participant.Events().On(room.EventTrackUnpublished, func(payload any) {
		hctx.Events.Emit(room.EventTrackUnpublished, payload)
	})

	if err := hctx.Store.AddRemote(participant); err != nil {
		hctx.Logger.WithError(err).Warn("could not add remote participant")
		return participant
	}

	hctx.Events.Emit(room.EventParticipantJoined, room.ParticipantEvent{Participant: participant})
	return participant
}

// upsertCallParty resolves the call party's participant, creating a
// placeholder when the sid is unknown to the store. The placeholder is
// reconciled by the next participant update.
func upsertCallParty(hctx *Context, sid string, info *room.ParticipantInfo) *room.Participant {
	if sid == "" {
		return nil
	}

	if participant := hctx.Store.Find(sid); participant != nil {
		if info != nil {
			participant.UpdateInfo(*info)
		}
		return participant
	}

	placeholder := room.ParticipantInfo{Sid: sid, Identity: sid}
	if info != nil {
		placeholder = *info
	}
	return upsertRemote(hctx, placeholder)
}

func mergeMetadata(dst, src map[string]any) map[string]any {
	if src == nil {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
