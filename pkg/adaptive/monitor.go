package adaptive

import (
	"context"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Event names emitted by the monitor and the controller.
const (
	EventQualityUpdate   = "quality-update"
	EventQualityChange   = "quality-change"
	EventLayerChanged    = "layer-changed"
	EventQualityAdjusted = "quality-adjusted"
)

// DefaultSampleInterval is how often the monitor polls the stats provider.
const DefaultSampleInterval = 2 * time.Second

// MonitorConfig configures one consumer's quality monitor.
type MonitorConfig struct {
	// How often to sample. Defaults to DefaultSampleInterval.
	Interval time.Duration
	// Grading bands. Defaults to DefaultThresholds.
	Thresholds Thresholds
}

// Monitor periodically polls the transport for one consumer's raw stats,
// grades them, and emits quality-update on every sample plus quality-change
// on grade transitions. One timer goroutine per consumer, cancellable.
type Monitor struct {
	consumerID string
	provider   transport.StatsProvider
	events     *event.Emitter[string]
	config     MonitorConfig
	logger     *logrus.Entry

	stop chan struct{}
	done chan struct{}

	// Grade of the previous sample; graded is false until the first one.
	last   Quality
	graded bool
}

func NewMonitor(
	consumerID string,
	provider transport.StatsProvider,
	events *event.Emitter[string],
	config MonitorConfig,
	logger *logrus.Entry,
) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultSampleInterval
	}
	if config.Thresholds == (Thresholds{}) {
		config.Thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Monitor{
		consumerID: consumerID,
		provider:   provider,
		events:     events,
		config:     config,
		logger:     logger.WithField("consumer", consumerID),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start spawns the sampling goroutine.
func (m *Monitor) Start() {
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop cancels the sampling goroutine and waits for it to finish.
func (m *Monitor) Stop() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}

func (m *Monitor) sample() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Interval)
	defer cancel()

	stats, err := m.provider.ConsumerStats(ctx, m.consumerID)
	if err != nil {
		m.logger.WithError(err).Debug("stats poll failed")
		return
	}

	metrics := m.gradeSample(stats)

	m.events.Emit(EventQualityUpdate, metrics)

	if !m.graded || metrics.Quality != m.last {
		if m.graded {
			m.events.Emit(EventQualityChange, QualityChange{From: m.last, To: metrics.Quality})
		}
		m.last = metrics.Quality
		m.graded = true
	}
}

func (m *Monitor) gradeSample(stats transport.ConsumerStats) Metrics {
	timestamp := stats.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	// The observed incoming bitrate is the best downlink estimate we have
	// without a congestion controller.
	return Metrics{
		Quality:       m.config.Thresholds.Grade(stats.RTT, stats.PacketLoss),
		BandwidthKbps: stats.BitrateKbps,
		RTT:           stats.RTT,
		Jitter:        stats.Jitter,
		PacketLoss:    stats.PacketLoss,
		Timestamp:     timestamp,
	}
}
