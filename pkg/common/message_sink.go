package common

import (
	"errors"
	"sync/atomic"
)

var ErrSinkSealed = errors.New("the sink is sealed, no messages can be sent over it")

// MessageSink binds a fixed sender to a shared message channel, so that a
// producer can only ever speak for itself. Multiple producers share the
// underlying channel; a single consumer reads Message values from it.
type MessageSink[SenderType comparable, MessageType any] struct {
	sender      SenderType
	messageSink chan<- Message[SenderType, MessageType]
	// Sealing disallows further sends without closing the shared channel
	// (other producers may still be using it).
	sealed atomic.Bool
}

func NewMessageSink[S comparable, M any](sender S, messageSink chan<- Message[S, M]) *MessageSink[S, M] {
	return &MessageSink[S, M]{
		sender:      sender,
		messageSink: messageSink,
	}
}

// Send pushes a message to the sink. Blocks if the sink is full.
func (s *MessageSink[S, M]) Send(message M) error {
	if s.sealed.Load() {
		return ErrSinkSealed
	}

	s.messageSink <- Message[S, M]{Sender: s.sender, Content: message}
	return nil
}

// Seal disallows further sends over this sink without closing the shared
// channel.
func (s *MessageSink[S, M]) Seal() {
	s.sealed.Store(true)
}

// Message pairs a payload with the identity of the producer that sent it.
type Message[SenderType comparable, MessageType any] struct {
	Sender  SenderType
	Content MessageType
}
