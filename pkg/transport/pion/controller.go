// Package pion is the pion/webrtc binding of the transport controller.
package pion

import (
	"context"
	"sync"

	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/bytepulseflow/pulsewave/pkg/signaling"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/bytepulseflow/pulsewave/pkg/webrtcext"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	_ transport.Controller = (*Controller)(nil)
	_ room.RemoteTrack     = (*RemoteTrack)(nil)
)

// Controller drives a pion peer connection on behalf of the signaling core.
// Subscription requests go out as signaling frames; the SFU answers by
// renegotiating media onto the connection.
type Controller struct {
	mu sync.Mutex

	factory *webrtcext.PeerConnectionFactory
	send    signaling.SendFunc
	logger  *logrus.Entry

	pc           *webrtc.PeerConnection
	dataProducer *webrtc.DataChannel
	consumers    map[string]*DataConsumer

	// Sids we currently hold a subscription for.
	subscribed map[string]bool

	// Supplies the sids of all known published tracks (backed by the room
	// store). Needed for SubscribeToAllTracks.
	listTracks func() []string

	// Invoked on the signaling goroutine-independent pion callback when a
	// remote track arrives.
	onTrack func(track room.RemoteTrack)
}

func NewController(
	factory *webrtcext.PeerConnectionFactory,
	send signaling.SendFunc,
	listTracks func() []string,
	logger *logrus.Entry,
) *Controller {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Controller{
		factory:    factory,
		send:       send,
		logger:     logger.WithField("component", "transport"),
		consumers:  make(map[string]*DataConsumer),
		subscribed: make(map[string]bool),
		listTracks: listTracks,
	}
}

// OnTrack registers the hook that attaches arriving remote tracks to their
// publications. Must be set before the first subscription.
func (c *Controller) OnTrack(fn func(track room.RemoteTrack)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

// EnsureWebRTCInitialized lazily brings up the peer connection.
func (c *Controller) EnsureWebRTCInitialized(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc != nil {
		return nil
	}

	pc, err := c.factory.CreatePeerConnection()
	if err != nil {
		return domainerror.Media("failed to create peer connection").
			WithContext("cause", err.Error())
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.WithField("state", state.String()).Debug("peer connection state changed")
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.mu.Lock()
		hook := c.onTrack
		c.mu.Unlock()

		if hook != nil {
			hook(newRemoteTrack(remote))
		}
	})

	c.pc = pc
	return nil
}

// InitDataProvider opens the outbound data channel used to publish data.
func (c *Controller) InitDataProvider(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc == nil {
		return domainerror.InvalidState("WebRTC is not initialized")
	}
	if c.dataProducer != nil {
		return nil
	}

	ordered := true
	channel, err := c.pc.CreateDataChannel("pulsewave-data", &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return domainerror.Media("failed to create data producer").
			WithContext("cause", err.Error())
	}

	c.dataProducer = channel
	return nil
}

// PublishData sends an application payload over the data producer.
func (c *Controller) PublishData(ctx context.Context, kind room.DataKind, payload []byte) error {
	c.mu.Lock()
	producer := c.dataProducer
	c.mu.Unlock()

	if producer == nil {
		return domainerror.InvalidState("data provider is not initialized")
	}

	return producer.Send(payload)
}

func (c *Controller) SubscribeToTrack(ctx context.Context, trackSid string, opts *transport.SubscribeOptions) error {
	frame := signaling.NewSubscribeTrack(trackSid)
	if opts != nil {
		frame.MaxSpatialLayer = opts.MaxSpatialLayer
		frame.MaxTemporalLayer = opts.MaxTemporalLayer
	}

	if err := c.send(ctx, frame); err != nil {
		return domainerror.Network("failed to send subscribe request").
			WithContext("track", trackSid)
	}

	c.mu.Lock()
	c.subscribed[trackSid] = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) UnsubscribeFromTrack(ctx context.Context, trackSid string) error {
	if err := c.send(ctx, signaling.NewUnsubscribeTrack(trackSid)); err != nil {
		return domainerror.Network("failed to send unsubscribe request").
			WithContext("track", trackSid)
	}

	c.mu.Lock()
	delete(c.subscribed, trackSid)
	c.mu.Unlock()
	return nil
}

func (c *Controller) SubscribeToAllTracks(ctx context.Context) error {
	if c.listTracks == nil {
		return nil
	}

	for _, sid := range c.listTracks() {
		c.mu.Lock()
		already := c.subscribed[sid]
		c.mu.Unlock()
		if already {
			continue
		}

		if err := c.SubscribeToTrack(ctx, sid, nil); err != nil {
			return err
		}
	}

	return nil
}

// AddDataConsumer opens the negotiated data channel the server created for
// us and returns its handle.
func (c *Controller) AddDataConsumer(ctx context.Context, producerID string, opts transport.DataConsumerOptions) (transport.DataConsumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc == nil {
		return nil, domainerror.InvalidState("WebRTC is not initialized")
	}

	if existing, ok := c.consumers[opts.ID]; ok {
		return existing, nil
	}

	init := &webrtc.DataChannelInit{Ordered: &opts.Ordered}

	// The SCTP stream id comes pre-negotiated from the server.
	if streamID := gjson.GetBytes(opts.SCTPStreamParameters, "streamId"); streamID.Exists() {
		negotiated := true
		id := uint16(streamID.Uint())
		init.Negotiated = &negotiated
		init.ID = &id
	}

	channel, err := c.pc.CreateDataChannel(opts.Label, init)
	if err != nil {
		return nil, domainerror.Media("failed to create data consumer").
			WithContext("producerId", producerID).
			WithContext("cause", err.Error())
	}

	consumer := newDataConsumer(opts.ID, channel)
	c.consumers[opts.ID] = consumer
	return consumer, nil
}

// LayerSetter returns the layer-capping handle for a subscribed track. Caps
// travel as signaling frames; the SFU adjusts what it forwards.
func (c *Controller) LayerSetter(trackSid string) transport.ConsumerLayers {
	return &layerSetter{controller: c, trackSid: trackSid}
}

// PeerConnection exposes the underlying connection for the stats provider.
// Nil before EnsureWebRTCInitialized.
func (c *Controller) PeerConnection() *webrtc.PeerConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc
}

// Close releases the peer connection and all data channels.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, consumer := range c.consumers {
		if err := consumer.Close(); err != nil {
			c.logger.WithField("consumer", id).WithError(err).Debug("data consumer close failed")
		}
		delete(c.consumers, id)
	}
	c.dataProducer = nil
	c.subscribed = make(map[string]bool)

	if c.pc == nil {
		return nil
	}

	pc := c.pc
	c.pc = nil
	return pc.Close()
}

var _ transport.ConsumerLayers = (*layerSetter)(nil)

type layerSetter struct {
	mu         sync.Mutex
	controller *Controller
	trackSid   string
	spatial    int
	temporal   int
}

func (l *layerSetter) SetMaxSpatialLayer(layer int) error {
	l.mu.Lock()
	l.spatial = layer
	frame := l.frame()
	l.mu.Unlock()
	return l.controller.send(context.Background(), frame)
}

func (l *layerSetter) SetMaxTemporalLayer(layer int) error {
	l.mu.Lock()
	l.temporal = layer
	frame := l.frame()
	l.mu.Unlock()
	return l.controller.send(context.Background(), frame)
}

func (l *layerSetter) frame() signaling.SetLayers {
	return signaling.SetLayers{
		Type:          signaling.TypeSetLayers,
		TrackSid:      l.trackSid,
		SpatialLayer:  l.spatial,
		TemporalLayer: l.temporal,
	}
}
