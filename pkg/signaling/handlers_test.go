package signaling_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/bytepulseflow/pulsewave/pkg/signaling"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records the calls the handlers make.
type fakeTransport struct {
	mu             sync.Mutex
	initialized    int
	dataProvider   int
	subscribed     []string
	unsubscribed   []string
	subscribedAll  int
	consumers      []*fakeConsumer
	subscribeError error
}

func (f *fakeTransport) EnsureWebRTCInitialized(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized++
	return nil
}

func (f *fakeTransport) InitDataProvider(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dataProvider++
	return nil
}

func (f *fakeTransport) SubscribeToTrack(ctx context.Context, trackSid string, opts *transport.SubscribeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeError != nil {
		return f.subscribeError
	}
	f.subscribed = append(f.subscribed, trackSid)
	return nil
}

func (f *fakeTransport) UnsubscribeFromTrack(ctx context.Context, trackSid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, trackSid)
	return nil
}

func (f *fakeTransport) SubscribeToAllTracks(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribedAll++
	return nil
}

func (f *fakeTransport) AddDataConsumer(ctx context.Context, producerID string, opts transport.DataConsumerOptions) (transport.DataConsumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	consumer := &fakeConsumer{id: opts.ID, label: opts.Label}
	f.consumers = append(f.consumers, consumer)
	return consumer, nil
}

func (f *fakeTransport) Close() error { return nil }

type fakeConsumer struct {
	id        string
	label     string
	onMessage func([]byte)
	onClose   func()
	onError   func(error)
}

func (f *fakeConsumer) ID() string                 { return f.id }
func (f *fakeConsumer) Label() string              { return f.label }
func (f *fakeConsumer) OnMessage(fn func([]byte))  { f.onMessage = fn }
func (f *fakeConsumer) OnClose(fn func())          { f.onClose = fn }
func (f *fakeConsumer) OnError(fn func(err error)) { f.onError = fn }
func (f *fakeConsumer) Close() error               { return nil }

type fakeHandle struct {
	id           string
	unsubscribed bool
}

func (f *fakeHandle) ID() string    { return f.id }
func (f *fakeHandle) Kind() string  { return "video" }
func (f *fakeHandle) Unsubscribed() { f.unsubscribed = true }

var _ room.RemoteTrack = (*fakeHandle)(nil)

// eventLog records every top-level event in emission order.
type eventLog struct {
	names    []string
	payloads []any
}

func (l *eventLog) record(emitter *event.Emitter[string], names ...string) {
	for _, name := range names {
		eventName := name
		emitter.On(eventName, func(payload any) {
			l.names = append(l.names, eventName)
			l.payloads = append(l.payloads, payload)
		})
	}
}

func (l *eventLog) count(name string) int {
	count := 0
	for _, n := range l.names {
		if n == name {
			count++
		}
	}
	return count
}

func testContext(t *testing.T) *signaling.Context {
	t.Helper()

	events := event.NewEmitter[string](nil)
	hctx := signaling.NewContext(room.NewState(nil), &fakeTransport{}, nil, events, nil)
	hctx.Send = func(ctx context.Context, frame any) error { return nil }
	hctx.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return hctx
}

func testSetup(t *testing.T) (*signaling.Registry, *signaling.Context, *fakeTransport, *eventLog) {
	t.Helper()

	registry := signaling.NewRegistry(nil)
	signaling.RegisterDefaults(registry)

	hctx := testContext(t)
	controller := hctx.Transport.(*fakeTransport)

	log := &eventLog{}
	log.record(hctx.Events,
		room.EventLocalParticipantJoined,
		room.EventParticipantJoined,
		room.EventParticipantLeft,
		room.EventTrackPublished,
		room.EventTrackUnpublished,
		room.EventTrackMuted,
		room.EventTrackUnmuted,
		room.EventTrackUnsubscribed,
		room.EventDataReceived,
		room.EventCallReceived,
		room.EventCallAccepted,
		room.EventCallRejected,
		room.EventError,
	)

	return registry, hctx, controller, log
}

func dispatch(registry *signaling.Registry, hctx *signaling.Context, frame string) {
	registry.Dispatch(context.Background(), hctx, []byte(frame))
}

func TestJoinedWithPreExistingParticipants(t *testing.T) {
	registry, hctx, controller, log := testSetup(t)

	dispatch(registry, hctx, `{
		"type": "joined",
		"room": {"id": "r1"},
		"participant": {"sid": "L", "identity": "alice"},
		"otherParticipants": [
			{"sid": "B", "identity": "bob", "tracks": [{"sid": "t1", "kind": "audio", "muted": false}]}
		]
	}`)

	assert.Equal(t, "r1", hctx.Store.Room().ID)

	local := hctx.Store.Local()
	require.NotNil(t, local)
	assert.Equal(t, "alice", local.Identity())
	assert.True(t, local.IsLocal())

	bob := hctx.Store.Remote("B")
	require.NotNil(t, bob)
	require.NotNil(t, bob.GetTrack("t1"))

	assert.Equal(t, []string{"local-participant-joined", "participant-joined"}, log.names)

	// autoSubscribe defaults to true: WebRTC is brought up, the data
	// provider initialized and all tracks subscribed.
	assert.Equal(t, 1, controller.initialized)
	assert.Equal(t, 1, controller.dataProvider)
	assert.Equal(t, 1, controller.subscribedAll)
}

func TestJoinedWithoutAutoSubscribe(t *testing.T) {
	registry, hctx, controller, _ := testSetup(t)
	hctx.Options.AutoSubscribe = false

	dispatch(registry, hctx, `{"type":"joined","room":{"id":"r1"},"participant":{"sid":"L","identity":"alice"}}`)

	assert.Zero(t, controller.initialized)
	assert.Zero(t, controller.subscribedAll)
}

func TestParticipantJoinedAndDuplicateIsUpdate(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob"}}`)
	require.NotNil(t, hctx.Store.Remote("B"))
	assert.Equal(t, 1, log.count(room.EventParticipantJoined))

	// A duplicate sid is an update, not a second join.
	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob","name":"Bobby"}}`)
	assert.Equal(t, 1, log.count(room.EventParticipantJoined))
	assert.Equal(t, "Bobby", hctx.Store.Remote("B").Name())
	assert.Len(t, hctx.Store.Participants(), 1)
}

func TestParticipantJoinedToleratesInlineShape(t *testing.T) {
	registry, hctx, _, _ := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","sid":"B","identity":"bob"}`)

	require.NotNil(t, hctx.Store.Remote("B"))
	assert.Equal(t, "bob", hctx.Store.Remote("B").Identity())
}

func TestTrackPublishedSubscribesAndDeduplicates(t *testing.T) {
	registry, hctx, controller, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob"}}`)
	dispatch(registry, hctx, `{"type":"track_published","participantSid":"B","track":{"sid":"t1","kind":"video"}}`)

	bob := hctx.Store.Remote("B")
	require.NotNil(t, bob.GetTrack("t1"))
	assert.Equal(t, 1, log.count(room.EventTrackPublished))
	assert.Equal(t, []string{"t1"}, controller.subscribed)

	// Re-publishing the same sid must not duplicate the descriptor.
	dispatch(registry, hctx, `{"type":"track_published","participantSid":"B","track":{"sid":"t1","kind":"video"}}`)
	assert.Len(t, bob.Tracks(), 1)
}

func TestTrackPublishedForUnknownParticipantIsIgnored(t *testing.T) {
	registry, hctx, controller, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"track_published","participantSid":"ghost","track":{"sid":"t1","kind":"video"}}`)

	assert.Zero(t, log.count(room.EventTrackPublished))
	assert.Empty(t, controller.subscribed)
}

func TestTrackUnpublishedPreservesPublicationRecord(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob"}}`)
	dispatch(registry, hctx, `{"type":"track_published","participantSid":"B","track":{"sid":"t1","kind":"video"}}`)

	bob := hctx.Store.Remote("B")
	publication := bob.GetTrack("t1")
	require.NotNil(t, publication)
	publication.AttachTrack(&fakeHandle{id: "t1"})

	dispatch(registry, hctx, `{"type":"track_unpublished","participantSid":"B","trackSid":"t1"}`)

	// The record stays, its handle is cleared.
	assert.Same(t, publication, bob.GetTrack("t1"))
	assert.False(t, publication.IsSubscribed())
	assert.Equal(t, 1, log.count(room.EventTrackUnpublished))

	// A re-publish reuses the preserved record.
	dispatch(registry, hctx, `{"type":"track_published","participantSid":"B","track":{"sid":"t1","kind":"video"}}`)
	assert.Len(t, bob.Tracks(), 1)
	assert.Same(t, publication, bob.GetTrack("t1"))
}

func TestTrackUnsubscribedNotifiesHandle(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob","tracks":[{"sid":"t1","kind":"video"}]}}`)

	handle := &fakeHandle{id: "t1"}
	hctx.Store.Remote("B").GetTrack("t1").AttachTrack(handle)

	dispatch(registry, hctx, `{"type":"track_unsubscribed","participantSid":"B","trackSid":"t1"}`)

	assert.True(t, handle.unsubscribed)
	assert.Equal(t, 1, log.count(room.EventTrackUnsubscribed))

	// Without an attached handle nothing is emitted.
	dispatch(registry, hctx, `{"type":"track_unsubscribed","participantSid":"B","trackSid":"t1"}`)
	assert.Equal(t, 1, log.count(room.EventTrackUnsubscribed))
}

func TestTrackMuteUpdatesFlagAndEmitsOnlyWithHandle(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob","tracks":[{"sid":"t1","kind":"audio"}]}}`)

	publication := hctx.Store.Remote("B").GetTrack("t1")

	// No handle attached: flag changes, no event.
	dispatch(registry, hctx, `{"type":"track_muted","participantSid":"B","trackSid":"t1"}`)
	assert.True(t, publication.IsMuted())
	assert.Zero(t, log.count(room.EventTrackMuted))

	publication.AttachTrack(&fakeHandle{id: "t1"})

	dispatch(registry, hctx, `{"type":"track_unmuted","participantSid":"B","trackSid":"t1"}`)
	assert.False(t, publication.IsMuted())
	assert.Equal(t, 1, log.count(room.EventTrackUnmuted))
}

func TestParticipantLeftCleansUp(t *testing.T) {
	registry, hctx, controller, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob","tracks":[{"sid":"t1","kind":"audio"}]}}`)
	bob := hctx.Store.Remote("B")
	bob.Events().On(room.EventTrackPublished, func(any) {})

	dispatch(registry, hctx, `{"type":"participant_left","participantSid":"B"}`)

	assert.Nil(t, hctx.Store.Remote("B"))
	assert.Equal(t, 1, log.count(room.EventParticipantLeft))
	assert.Equal(t, 0, bob.Events().ListenerCount(room.EventTrackPublished))

	// Subsequent track events for the departed sid are silent no-ops.
	dispatch(registry, hctx, `{"type":"track_published","participantSid":"B","track":{"sid":"t2","kind":"video"}}`)
	assert.Zero(t, log.count(room.EventTrackPublished))
	assert.Empty(t, controller.subscribed)

	// As is a repeated leave.
	dispatch(registry, hctx, `{"type":"participant_left","participantSid":"B"}`)
	assert.Equal(t, 1, log.count(room.EventParticipantLeft))
}

func TestDataEmitsPacketWithParticipant(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob"}}`)
	dispatch(registry, hctx, `{"type":"data","participantSid":"B","payload":{"hello":"world"}}`)

	require.Equal(t, 1, log.count(room.EventDataReceived))
	data := log.payloads[len(log.payloads)-1].(room.DataEvent)
	assert.Equal(t, room.DataReliable, data.Packet.Kind)
	assert.Equal(t, "B", data.Packet.ParticipantSid)
	assert.NotNil(t, data.Participant)
}

func TestDataFromUnknownParticipantIsIgnored(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"data","participantSid":"ghost","payload":1}`)

	assert.Zero(t, log.count(room.EventDataReceived))
}

func TestDataConsumerCreatedBindsCallbacks(t *testing.T) {
	registry, hctx, controller, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob"}}`)
	dispatch(registry, hctx, `{
		"type": "data_consumer_created",
		"dataProducerId": "p1",
		"id": "dc1",
		"participantSid": "B",
		"label": "lossy-data",
		"ordered": false
	}`)

	require.Len(t, controller.consumers, 1)
	consumer := controller.consumers[0]
	require.NotNil(t, consumer.onMessage)
	require.NotNil(t, consumer.onClose)
	require.NotNil(t, consumer.onError)

	// JSON payloads are decoded.
	consumer.onMessage([]byte(`{"n":1}`))
	require.Equal(t, 1, log.count(room.EventDataReceived))
	data := log.payloads[len(log.payloads)-1].(room.DataEvent)
	assert.Equal(t, room.DataLossy, data.Packet.Kind, "kind follows the label")
	assert.Equal(t, map[string]any{"n": float64(1)}, data.Packet.Value)

	// Non-JSON payloads fall back to the raw text.
	consumer.onMessage([]byte(`plain text`))
	data = log.payloads[len(log.payloads)-1].(room.DataEvent)
	assert.Equal(t, "plain text", data.Packet.Value)
}

func TestCallFlow(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	// An unknown caller gets a placeholder participant.
	dispatch(registry, hctx, `{"type":"call_received","callId":"c1","callerSid":"A","targetSid":"L"}`)

	require.Equal(t, 1, log.count(room.EventCallReceived))
	call := log.payloads[len(log.payloads)-1].(room.CallEvent).Call
	assert.Equal(t, room.CallPending, call.State)
	assert.NotNil(t, call.Caller)
	assert.NotNil(t, hctx.Store.Remote("A"))

	dispatch(registry, hctx, `{"type":"call_accepted","callId":"c1","callerSid":"A","targetSid":"L"}`)
	require.Equal(t, 1, log.count(room.EventCallAccepted))
	call = log.payloads[len(log.payloads)-1].(room.CallEvent).Call
	assert.Equal(t, room.CallAccepted, call.State)
}

func TestCallRejectedCarriesReason(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"call_received","callId":"c1","callerSid":"A","targetSid":"L"}`)
	dispatch(registry, hctx, `{"type":"call_rejected","callId":"c1","targetSid":"L","reason":"busy"}`)

	require.Equal(t, 1, log.count(room.EventCallRejected))
	call := log.payloads[len(log.payloads)-1].(room.CallEvent).Call
	assert.Equal(t, room.CallRejected, call.State)
	assert.Equal(t, "busy", call.Metadata["reason"])
	assert.NotNil(t, call.EndTime)
}

func TestErrorMessageFallsBackToUnknown(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"error","error":{"message":"room is full"}}`)
	require.Equal(t, 1, log.count(room.EventError))
	assert.EqualError(t, log.payloads[len(log.payloads)-1].(error), "room is full")

	dispatch(registry, hctx, `{"type":"error"}`)
	require.Equal(t, 2, log.count(room.EventError))
	assert.EqualError(t, log.payloads[len(log.payloads)-1].(error), "Unknown error")
}

func TestUpdateInfoEventsBridgeToTopLevelEmitter(t *testing.T) {
	registry, hctx, _, log := testSetup(t)

	dispatch(registry, hctx, `{"type":"participant_joined","participant":{"sid":"B","identity":"bob"}}`)
	dispatch(registry, hctx, `{"type":"participant_updated","participant":{"sid":"B","identity":"bob","tracks":[{"sid":"t1","kind":"audio"}]}}`)

	assert.Equal(t, 1, log.count(room.EventTrackPublished))

	dispatch(registry, hctx, `{"type":"participant_updated","participant":{"sid":"B","identity":"bob"}}`)
	assert.Equal(t, 1, log.count(room.EventTrackUnpublished))
}
