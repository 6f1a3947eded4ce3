package common

import "sync/atomic"

// Size of the buffered channels that back inbound message queues. Large
// enough that a bursty server does not block the carrier's read pump.
const UnboundedChannelSize = 128

// NewChannel returns the two counterparts of a buffered channel where the
// receiver can mark the channel as closed. Once closed, Send hands the
// message back to the caller instead of pushing it into the void.
func NewChannel[M any]() (Sender[M], Receiver[M]) {
	channel := make(chan M, UnboundedChannelSize)
	closed := &atomic.Bool{}
	return Sender[M]{channel, closed}, Receiver[M]{channel, closed}
}

type Sender[M any] struct {
	channel        chan<- M
	receiverClosed *atomic.Bool
}

// Send pushes the message unless the receiver closed the channel, in which
// case the unprocessed message is returned to the caller.
func (s *Sender[M]) Send(message M) *M {
	if s.receiverClosed.Load() {
		return &message
	}
	s.channel <- message
	return nil
}

type Receiver[M any] struct {
	Channel        <-chan M
	receiverClosed *atomic.Bool
}

// Close marks the channel as closed for senders. Messages already buffered
// can still be drained from Channel.
func (r *Receiver[M]) Close() {
	r.receiverClosed.Store(true)
}
