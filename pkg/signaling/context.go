package signaling

import (
	"context"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/bytepulseflow/pulsewave/pkg/room"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Options are the connection options the handlers consult.
type Options struct {
	// AutoSubscribe makes the client subscribe to existing and newly
	// published tracks on its own.
	AutoSubscribe bool
}

// SendFunc delivers an outbound frame over the carrier.
type SendFunc func(ctx context.Context, frame any) error

// DeferFunc schedules transport work off the message loop. Failures of
// deferred work are logged by the runner, never surfaced to the loop.
type DeferFunc func(task func(ctx context.Context))

// Context is everything a handler may touch. Handlers are free functions;
// all state they mutate is reachable from here.
type Context struct {
	Store     *room.State
	Transport transport.Controller
	Send      SendFunc
	Events    *event.Emitter[string]
	Options   Options

	// Capabilities handed to the local participant at construction, so
	// that no event can fire before the callbacks are wired.
	Capabilities room.Capabilities

	// Active 1-to-1 calls by call id. Only the connection's message loop
	// writes here.
	Calls map[string]room.CallInfo

	// Defer runs transport work (subscriptions and the like) without
	// blocking message ingestion.
	Defer DeferFunc

	Logger *logrus.Entry

	// Injected clock for tests; defaults to time.Now.
	Now func() time.Time
}

// NewContext fills in the defaults that make a Context usable. The default
// Defer runs each task inline on the calling goroutine; callers that need
// ingestion to continue while transport work completes replace it.
func NewContext(store *room.State, controller transport.Controller, send SendFunc, events *event.Emitter[string], logger *logrus.Entry) *Context {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Context{
		Store:     store,
		Transport: controller,
		Send:      send,
		Events:    events,
		Options:   Options{AutoSubscribe: true},
		Calls:     make(map[string]room.CallInfo),
		Defer: func(task func(ctx context.Context)) {
			task(context.Background())
		},
		Logger: logger,
		Now:    time.Now,
	}
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
