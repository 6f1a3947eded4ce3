package adaptive

import (
	"sync"

	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/sirupsen/logrus"
)

// LayerChange is the payload of the layer-changed event.
type LayerChange struct {
	Layer  SimulcastLayer
	Manual bool
}

// Controller closes the adaptive bitrate loop: it consumes quality-update
// samples, recommends a simulcast layer and applies it to the consumer.
//
// Spatial hysteresis keeps the selection from flapping on temporal-layer
// boundaries: a new recommendation is only applied when it moves at least a
// full spatial layer away from the current one.
type Controller struct {
	mu sync.Mutex

	// The consumer the layer caps are applied to. Layer capping is optional
	// on consumers; the controller feature-detects transport.ConsumerLayers.
	consumer any
	events   *event.Emitter[string]
	ladder   []SimulcastLayer
	logger   *logrus.Entry

	current *SimulcastLayer
	manual  bool

	unsubscribe event.UnregisterFunc
}

func NewController(consumer any, events *event.Emitter[string], logger *logrus.Entry) *Controller {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Controller{
		consumer: consumer,
		events:   events,
		ladder:   DefaultLadder(),
		logger:   logger.WithField("component", "adaptive"),
	}
}

// Start attaches the controller to the quality-update stream.
func (c *Controller) Start() {
	c.unsubscribe = c.events.On(EventQualityUpdate, func(payload any) {
		metrics, ok := payload.(Metrics)
		if !ok {
			return
		}
		c.onSample(metrics)
	})
}

// Stop detaches the controller from the quality-update stream.
func (c *Controller) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Controller) onSample(metrics Metrics) {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	recommended := c.RecommendLayer(metrics)
	c.events.Emit(EventQualityAdjusted, metrics)

	if !c.ShouldChangeLayer(recommended) {
		return
	}

	if err := c.ApplyLayer(recommended); err != nil {
		c.logger.WithError(err).Warn("could not apply recommended layer")
	}
}

// RecommendLayer picks the layer for the given metrics: the grade caps the
// spatial layer, and among the layers within the cap the highest one whose
// target bitrate fits the estimated bandwidth wins. When nothing fits, the
// lowest layer within the cap is returned so the consumer degrades instead
// of stalling.
func (c *Controller) RecommendLayer(metrics Metrics) SimulcastLayer {
	cap := maxSpatialFor(metrics.Quality)

	available := []SimulcastLayer{}
	for _, layer := range c.ladder {
		if layer.SpatialLayer <= cap {
			available = append(available, layer)
		}
	}
	if len(available) == 0 {
		return c.ladder[0]
	}

	for i := len(available) - 1; i >= 0; i-- {
		if float64(available[i].TargetBitrateKbps) <= metrics.BandwidthKbps {
			return available[i]
		}
	}

	return available[0]
}

// ShouldChangeLayer applies the spatial hysteresis: change when there is no
// current layer or the spatial layer moves by at least one step.
func (c *Controller) ShouldChangeLayer(next SimulcastLayer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return true
	}

	delta := next.SpatialLayer - c.current.SpatialLayer
	if delta < 0 {
		delta = -delta
	}
	return delta >= 1
}

// ApplyLayer pushes the layer caps to the consumer (when it supports them),
// records the layer as current and emits layer-changed.
func (c *Controller) ApplyLayer(layer SimulcastLayer) error {
	if capped, ok := c.consumer.(transport.ConsumerLayers); ok {
		if err := capped.SetMaxSpatialLayer(layer.SpatialLayer); err != nil {
			return err
		}
		if err := capped.SetMaxTemporalLayer(layer.TemporalLayer); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.current = &layer
	manual := c.manual
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"spatial":  layer.SpatialLayer,
		"temporal": layer.TemporalLayer,
		"kbps":     layer.TargetBitrateKbps,
	}).Debug("applied simulcast layer")

	c.events.Emit(EventLayerChanged, LayerChange{Layer: layer, Manual: manual})
	return nil
}

// CurrentLayer returns the applied layer, or nil before the first apply.
func (c *Controller) CurrentLayer() *SimulcastLayer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil
	}
	layer := *c.current
	return &layer
}

// SetManualLayer pins the layer, bypassing recommendations until
// ResetToAutomatic.
func (c *Controller) SetManualLayer(layer SimulcastLayer) error {
	c.mu.Lock()
	c.manual = true
	c.mu.Unlock()

	return c.ApplyLayer(layer)
}

// ResetToAutomatic clears the manual pin and the current layer, so the next
// sample reapplies whatever is recommended.
func (c *Controller) ResetToAutomatic() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = false
	c.current = nil
}
