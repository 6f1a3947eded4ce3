package pion

import (
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/pion/webrtc/v3"
)

var _ transport.DataConsumer = (*DataConsumer)(nil)

// DataConsumer wraps an inbound pion data channel.
type DataConsumer struct {
	id      string
	channel *webrtc.DataChannel
}

func newDataConsumer(id string, channel *webrtc.DataChannel) *DataConsumer {
	return &DataConsumer{id: id, channel: channel}
}

func (c *DataConsumer) ID() string { return c.id }

func (c *DataConsumer) Label() string { return c.channel.Label() }

func (c *DataConsumer) OnMessage(fn func(payload []byte)) {
	c.channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *DataConsumer) OnClose(fn func()) {
	c.channel.OnClose(fn)
}

func (c *DataConsumer) OnError(fn func(err error)) {
	c.channel.OnError(fn)
}

func (c *DataConsumer) Close() error {
	return c.channel.Close()
}
