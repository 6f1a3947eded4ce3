// Package client ties the signaling core together for one connection: the
// room store, the handler registry, the observable events, the deferred
// transport worker and the adaptive bitrate loop.
package client

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/adaptive"
	"github.com/bytepulseflow/pulsewave/pkg/common"
	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/bytepulseflow/pulsewave/pkg/signaling"
	"github.com/bytepulseflow/pulsewave/pkg/telemetry"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Config is the per-connection configuration.
type Config struct {
	// Auto-subscribe to existing and newly published tracks.
	AutoSubscribe bool
	// Adaptive bitrate sampling configuration.
	Adaptive adaptive.MonitorConfig
}

func DefaultConfig() Config {
	return Config{
		AutoSubscribe: true,
		Adaptive: adaptive.MonitorConfig{
			Interval:   adaptive.DefaultSampleInterval,
			Thresholds: adaptive.DefaultThresholds(),
		},
	}
}

// Client is the per-connection orchestrator. All room state mutations happen
// on the single goroutine running Run, serialized with inbound reads.
type Client struct {
	id     string
	logger *logrus.Entry
	config Config

	store    *room.State
	events   *event.Emitter[string]
	registry *signaling.Registry
	hctx     *signaling.Context

	controller transport.Controller
	send       signaling.SendFunc

	messages chan common.Message[string, json.RawMessage]
	inbound  *common.MessageSink[string, json.RawMessage]

	worker     *common.Worker[func(ctx context.Context)]
	workCtx    context.Context
	workCancel context.CancelFunc

	monitor   *adaptive.Monitor
	adaptCtrl *adaptive.Controller

	span   *telemetry.Span
	closed atomic.Bool
	done   chan struct{}
}

func NewClient(
	controller transport.Controller,
	send signaling.SendFunc,
	config Config,
	logger *logrus.Entry,
) *Client {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	id := uuid.NewString()
	logger = logger.WithField("conn_id", id)

	events := event.NewEmitter[string](logger)
	store := room.NewState(logger)
	registry := signaling.NewRegistry(logger)
	signaling.RegisterDefaults(registry)

	workCtx, workCancel := context.WithCancel(context.Background())

	c := &Client{
		id:         id,
		logger:     logger,
		config:     config,
		store:      store,
		events:     events,
		registry:   registry,
		controller: controller,
		send:       send,
		messages:   make(chan common.Message[string, json.RawMessage], common.UnboundedChannelSize),
		workCtx:    workCtx,
		workCancel: workCancel,
		done:       make(chan struct{}),
	}
	c.inbound = common.NewMessageSink(id, c.messages)

	c.worker = common.StartWorker(common.WorkerConfig[func(ctx context.Context)]{
		ChannelSize: common.UnboundedChannelSize,
		Timeout:     time.Minute,
		OnTask:      func(task func(ctx context.Context)) { task(c.workCtx) },
	})

	hctx := signaling.NewContext(store, controller, send, events, logger)
	hctx.Options = signaling.Options{AutoSubscribe: config.AutoSubscribe}
	hctx.Capabilities = c.capabilities()
	hctx.Defer = func(task func(ctx context.Context)) {
		if err := c.worker.Send(task); err != nil {
			c.logger.WithError(err).Warn("dropping deferred transport task")
		}
	}
	c.hctx = hctx

	return c
}

// capabilities are handed to the local participant at construction time, so
// events can never observe a participant with unwired callbacks.
func (c *Client) capabilities() room.Capabilities {
	return room.Capabilities{
		EnableCamera: func(ctx context.Context, enabled bool) error {
			return c.send(ctx, signaling.NewMediaControl(room.TrackKindVideo, enabled))
		},
		EnableMicrophone: func(ctx context.Context, enabled bool) error {
			return c.send(ctx, signaling.NewMediaControl(room.TrackKindAudio, enabled))
		},
		PublishData: func(ctx context.Context, kind room.DataKind, payload []byte) error {
			return c.send(ctx, signaling.NewDataSend(kind, json.RawMessage(payload)))
		},
	}
}

// SetTelemetry attaches the connection span; each dispatched message
// becomes a child span tagged with its type.
func (c *Client) SetTelemetry(span *telemetry.Span) { c.span = span }

// Inbound is the sink the carrier pumps raw frames into.
func (c *Client) Inbound() *common.MessageSink[string, json.RawMessage] { return c.inbound }

// Registry exposes the handler registry, e.g. to install protocol
// extensions before Run.
func (c *Client) Registry() *signaling.Registry { return c.registry }

// Events is the top-level observable event emitter.
func (c *Client) Events() *event.Emitter[string] { return c.events }

// On registers a listener on the top-level emitter.
func (c *Client) On(eventName string, listener event.Listener) event.UnregisterFunc {
	return c.events.On(eventName, listener)
}

func (c *Client) Room() room.RoomInfo { return c.store.Room() }

func (c *Client) LocalParticipant() *room.Participant { return c.store.Local() }

func (c *Client) RemoteParticipants() []*room.Participant { return c.store.Participants() }

// Store exposes the room state store.
func (c *Client) Store() *room.State { return c.store }

// Run is the connection's message loop: frames are dispatched in arrival
// order, and the events one handler emits are fully delivered before the
// next frame is looked at. Returns when the context is cancelled or Close
// is called.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case message, ok := <-c.messages:
			if !ok {
				return
			}
			c.dispatch(ctx, message.Content)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, raw json.RawMessage) {
	if c.span != nil {
		messageType, _ := signaling.MessageType(raw)
		child := c.span.Child("dispatch", attribute.String("type", messageType))
		defer child.End(nil)
	}

	c.registry.Dispatch(ctx, c.hctx, raw)
}

// SendData publishes an application payload to the room over the carrier.
func (c *Client) SendData(ctx context.Context, kind room.DataKind, value any) error {
	return c.send(ctx, signaling.NewDataSend(kind, value))
}

// RequestCall initiates a 1-to-1 call with the target participant.
func (c *Client) RequestCall(ctx context.Context, targetSid string, metadata map[string]any) (string, error) {
	callID := uuid.NewString()
	err := c.send(ctx, signaling.CallRequest{
		Type:      signaling.TypeCallRequest,
		CallID:    callID,
		TargetSid: targetSid,
		Metadata:  metadata,
	})
	return callID, err
}

// AcceptCall answers an incoming call.
func (c *Client) AcceptCall(ctx context.Context, callID string) error {
	return c.send(ctx, signaling.CallAnswer{Type: signaling.TypeCallAccept, CallID: callID})
}

// RejectCall declines an incoming call.
func (c *Client) RejectCall(ctx context.Context, callID string, reason string) error {
	return c.send(ctx, signaling.CallAnswer{Type: signaling.TypeCallReject, CallID: callID, Reason: reason})
}

// Leave announces an orderly departure.
func (c *Client) Leave(ctx context.Context, reason string) error {
	return c.send(ctx, signaling.Leave{Type: signaling.TypeLeave, Reason: reason})
}

// EnableAdaptiveBitrate starts the closed control loop for one consumer:
// the monitor polls the stats provider and the controller applies the
// recommended simulcast layer to the consumer.
func (c *Client) EnableAdaptiveBitrate(consumerID string, provider transport.StatsProvider, consumer any) {
	if c.monitor != nil {
		return
	}

	c.adaptCtrl = adaptive.NewController(consumer, c.events, c.logger)
	c.adaptCtrl.Start()
	c.monitor = adaptive.NewMonitor(consumerID, provider, c.events, c.config.Adaptive, c.logger)
	c.monitor.Start()
}

// AdaptiveController returns the layer controller, or nil when adaptive
// bitrate is not enabled.
func (c *Client) AdaptiveController() *adaptive.Controller { return c.adaptCtrl }

// Close tears the connection down in order: stop accepting new frames,
// cancel pending deferred work, stop the monitor, drop all listeners,
// release the transport.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.inbound.Seal()
	close(c.done)

	c.workCancel()
	c.worker.Stop()

	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.adaptCtrl != nil {
		c.adaptCtrl.Stop()
	}

	c.events.RemoveAll()

	if err := c.controller.Close(); err != nil {
		c.logger.WithError(err).Debug("transport close failed")
	}

	c.store.Clear()
	c.logger.Info("connection closed")
}
