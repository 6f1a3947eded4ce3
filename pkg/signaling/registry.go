package signaling

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// HandlerFunc processes one inbound frame. Errors are contained at the
// dispatch boundary; a handler can never take the connection down.
type HandlerFunc func(ctx context.Context, hctx *Context, raw json.RawMessage) error

// Handler binds a message type tag to its handler function.
type Handler struct {
	Type   string
	Handle HandlerFunc
}

// Registry maps message-type tags to handlers. It is read-mostly: mutation
// after construction is allowed but takes a brief exclusive window.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *logrus.Entry
}

func NewRegistry(logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.WithField("component", "signaling"),
	}
}

// Register inserts the handler keyed by its type. Re-registration overwrites
// the previous handler, which lets tests inject doubles.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Type] = handler
}

func (r *Registry) Unregister(messageType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, messageType)
}

func (r *Registry) Get(messageType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[messageType]
	return handler, ok
}

func (r *Registry) Has(messageType string) bool {
	_, ok := r.Get(messageType)
	return ok
}

// Types returns the registered message types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := maps.Keys(r.handlers)
	slices.Sort(types)
	return types
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]Handler)
}

// Dispatch routes one raw frame to its handler. It never panics and never
// returns an error: frames without a valid type tag and frames with no
// registered handler are dropped with a warning, and handler failures are
// logged with the message type attached. Signaling must stay lossy for
// unknown frames so protocol additions do not crash older clients.
func (r *Registry) Dispatch(ctx context.Context, hctx *Context, raw []byte) {
	messageType, ok := MessageType(raw)
	if !ok {
		r.logger.Warn("dropping frame without a string `type` field")
		return
	}

	handler, ok := r.Get(messageType)
	if !ok {
		r.logger.WithField("type", messageType).Warn("dropping frame of unknown type")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("type", messageType).Errorf("handler panicked: %v", rec)
		}
	}()

	if err := handler.Handle(ctx, hctx, raw); err != nil {
		// Normalizing through the domain taxonomy keeps the log fields
		// uniform regardless of where the error came from.
		r.logger.WithField("type", messageType).
			WithError(domainerror.ToDomainError(err)).
			Error("handler failed")
	}
}
