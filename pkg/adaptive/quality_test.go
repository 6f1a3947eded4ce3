package adaptive_test

import (
	"context"
	"testing"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/adaptive"
	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/stretchr/testify/assert"
)

func TestThresholdGrading(t *testing.T) {
	thresholds := adaptive.DefaultThresholds()

	cases := []struct {
		rtt      time.Duration
		loss     float64
		expected adaptive.Quality
	}{
		{50 * time.Millisecond, 0.001, adaptive.QualityExcellent},
		{150 * time.Millisecond, 0.01, adaptive.QualityExcellent},
		{200 * time.Millisecond, 0.01, adaptive.QualityGood},
		{100 * time.Millisecond, 0.02, adaptive.QualityGood},
		{400 * time.Millisecond, 0.05, adaptive.QualityPoor},
		{600 * time.Millisecond, 0.01, adaptive.QualityVeryPoor},
		{100 * time.Millisecond, 0.5, adaptive.QualityVeryPoor},
	}

	for _, c := range cases {
		if got := thresholds.Grade(c.rtt, c.loss); got != c.expected {
			t.Errorf("rtt=%s loss=%.3f: expected %s, got %s", c.rtt, c.loss, c.expected, got)
		}
	}
}

type scriptedStats struct {
	samples []transport.ConsumerStats
	index   int
}

func (s *scriptedStats) ConsumerStats(ctx context.Context, consumerID string) (transport.ConsumerStats, error) {
	sample := s.samples[s.index]
	if s.index < len(s.samples)-1 {
		s.index++
	}
	return sample, nil
}

func TestMonitorEmitsUpdatesAndChanges(t *testing.T) {
	events := event.NewEmitter[string](nil)

	provider := &scriptedStats{samples: []transport.ConsumerStats{
		{RTT: 50 * time.Millisecond, PacketLoss: 0, BitrateKbps: 2000},
		{RTT: 50 * time.Millisecond, PacketLoss: 0, BitrateKbps: 2000},
		{RTT: 600 * time.Millisecond, PacketLoss: 0.2, BitrateKbps: 100},
	}}

	updates := make(chan adaptive.Metrics, 16)
	changes := make(chan adaptive.QualityChange, 16)
	events.On(adaptive.EventQualityUpdate, func(payload any) {
		updates <- payload.(adaptive.Metrics)
	})
	events.On(adaptive.EventQualityChange, func(payload any) {
		changes <- payload.(adaptive.QualityChange)
	})

	monitor := adaptive.NewMonitor("consumer-1", provider, events, adaptive.MonitorConfig{
		Interval: 5 * time.Millisecond,
	}, nil)
	monitor.Start()
	defer monitor.Stop()

	// quality-update fires on every sample.
	first := <-updates
	assert.Equal(t, adaptive.QualityExcellent, first.Quality)
	assert.Equal(t, 2000.0, first.BandwidthKbps)

	// quality-change only fires on the grade transition.
	change := <-changes
	assert.Equal(t, adaptive.QualityExcellent, change.From)
	assert.Equal(t, adaptive.QualityVeryPoor, change.To)
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	events := event.NewEmitter[string](nil)
	provider := &scriptedStats{samples: []transport.ConsumerStats{{}}}

	monitor := adaptive.NewMonitor("consumer-1", provider, events, adaptive.MonitorConfig{
		Interval: time.Millisecond,
	}, nil)
	monitor.Start()

	monitor.Stop()
	monitor.Stop()
}
