package transport

import (
	"context"
	"time"
)

// ConsumerStats is one sample of the raw network statistics for a consumer.
type ConsumerStats struct {
	RTT        time.Duration
	Jitter     time.Duration
	PacketLoss float64
	// Observed incoming bitrate in kbit/s.
	BitrateKbps float64
	Timestamp   time.Time
}

// StatsProvider supplies raw stats samples for a given consumer. The network
// quality monitor polls it periodically.
type StatsProvider interface {
	ConsumerStats(ctx context.Context, consumerID string) (ConsumerStats, error)
}
