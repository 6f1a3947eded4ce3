package pion

import (
	"context"
	"sync"
	"time"

	"github.com/bytepulseflow/pulsewave/pkg/domainerror"
	"github.com/bytepulseflow/pulsewave/pkg/transport"
	"github.com/pion/webrtc/v3"
)

// StatsProvider derives consumer stats from the peer connection's stats
// report. Bitrate needs two samples, so the first poll reports zero.
type StatsProvider struct {
	mu         sync.Mutex
	controller *Controller

	lastBytes uint64
	lastPoll  time.Time
}

func NewStatsProvider(controller *Controller) *StatsProvider {
	return &StatsProvider{controller: controller}
}

func (p *StatsProvider) ConsumerStats(ctx context.Context, consumerID string) (transport.ConsumerStats, error) {
	pc := p.controller.PeerConnection()
	if pc == nil {
		return transport.ConsumerStats{}, domainerror.InvalidState("WebRTC is not initialized")
	}

	report := pc.GetStats()
	now := time.Now()

	var (
		rtt            time.Duration
		jitter         time.Duration
		bytesReceived  uint64
		packetsLost    int64
		packetsArrived int64
	)

	for _, s := range report {
		switch stats := s.(type) {
		case webrtc.ICECandidatePairStats:
			if stats.State == webrtc.StatsICECandidatePairStateSucceeded {
				rtt = time.Duration(stats.CurrentRoundTripTime * float64(time.Second))
			}
		case webrtc.InboundRTPStreamStats:
			jitter = time.Duration(stats.Jitter * float64(time.Second))
			bytesReceived += uint64(stats.BytesReceived)
			packetsLost += int64(stats.PacketsLost)
			packetsArrived += int64(stats.PacketsReceived)
		}
	}

	p.mu.Lock()
	var bitrateKbps float64
	if !p.lastPoll.IsZero() && bytesReceived >= p.lastBytes {
		elapsed := now.Sub(p.lastPoll).Seconds()
		if elapsed > 0 {
			bitrateKbps = float64(bytesReceived-p.lastBytes) * 8 / 1000 / elapsed
		}
	}
	p.lastBytes = bytesReceived
	p.lastPoll = now
	p.mu.Unlock()

	var loss float64
	if total := packetsLost + packetsArrived; total > 0 {
		loss = float64(packetsLost) / float64(total)
	}

	return transport.ConsumerStats{
		RTT:         rtt,
		Jitter:      jitter,
		PacketLoss:  loss,
		BitrateKbps: bitrateKbps,
		Timestamp:   now,
	}, nil
}
