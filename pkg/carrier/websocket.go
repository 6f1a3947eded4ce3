// Package carrier delivers ordered, reliable, framed signaling messages in
// both directions over a WebSocket connection.
package carrier

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/common"
	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 20 * time.Second
	pongTimeout  = 10 * time.Second
)

// Carrier is a WebSocket client carrying JSON frames. Inbound frames are
// pushed to a message sink; outbound frames go through Send, which is safe
// for concurrent use.
type Carrier struct {
	conn   *websocket.Conn
	logger *logrus.Entry

	writeMu sync.Mutex
	closed  sync.Once

	// OnStalled is called when the peer stops answering pings. Optional.
	OnStalled func()
}

// Dial connects to the signaling endpoint.
func Dial(ctx context.Context, url string, header http.Header, logger *logrus.Entry) (*Carrier, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, domainerror.Network("failed to dial signaling endpoint").
			WithContext("url", url).
			WithContext("cause", err.Error())
	}

	return &Carrier{
		conn:   conn,
		logger: logger.WithField("component", "carrier"),
	}, nil
}

// Send marshals the frame and writes it to the socket.
func (c *Carrier) Send(ctx context.Context, frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return domainerror.Validation("frame", "frame is not serializable").
			WithContext("cause", err.Error())
	}

	deadline := time.Now().Add(writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return domainerror.Network("failed to set write deadline")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return domainerror.Network("failed to write frame").
			WithContext("cause", err.Error())
	}

	return nil
}

// Run pumps inbound frames into the sink until the connection dies. It also
// runs the ping/pong heartbeat; when pongs stop, OnStalled fires and the
// connection is closed. Run blocks and always returns a non-nil error
// describing why the pump stopped.
func (c *Carrier) Run(sink *common.MessageSink[string, json.RawMessage]) error {
	heartbeat := common.Heartbeat{
		Interval: pingInterval,
		Timeout:  pongTimeout,
		SendPing: func() bool {
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			deadline := time.Now().Add(writeTimeout)
			return c.conn.WriteControl(websocket.PingMessage, nil, deadline) == nil
		},
		OnTimeout: func() {
			c.logger.Warn("peer stopped answering pings")
			if c.OnStalled != nil {
				c.OnStalled()
			}
			c.Close()
		},
	}

	// The heartbeat goroutine winds down on its own once the connection is
	// closed: the next ping fails and the send retries give up.
	pong := heartbeat.Start()
	c.conn.SetPongHandler(func(string) error {
		select {
		case pong <- common.Pong{}:
		default:
		}
		return nil
	})

	defer sink.Seal()

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return domainerror.Network("signaling connection lost").
				WithContext("cause", err.Error())
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame")
			continue
		}

		if err := sink.Send(json.RawMessage(payload)); err != nil {
			// The consumer sealed the sink: orderly shutdown.
			return domainerror.InvalidState("message sink is sealed")
		}
	}
}

// Close shuts the connection down. Safe to call multiple times.
func (c *Carrier) Close() {
	c.closed.Do(func() {
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)
		c.writeMu.Unlock()

		if err := c.conn.Close(); err != nil {
			c.logger.WithError(err).Debug("connection close failed")
		}
	})
}
