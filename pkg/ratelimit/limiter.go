package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config for the sliding-window limiter.
type Config struct {
	// Maximum allowed requests per window.
	Limit int
	// Size of the sliding window.
	Window time.Duration
	// Extra requests beyond Limit within one window that trigger a ban.
	BanThreshold int
	// How long a triggered ban lasts.
	BanDuration time.Duration
}

// DefaultConfig is tuned for signaling connections: short bursts are fine,
// sustained floods get banned.
func DefaultConfig() Config {
	return Config{
		Limit:        100,
		Window:       time.Minute,
		BanThreshold: 50,
		BanDuration:  5 * time.Minute,
	}
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed bool
	// How long the caller should wait before retrying. Zero when allowed.
	RetryAfter time.Duration
	// Requests left in the current window. Only meaningful when allowed.
	Remaining int
}

type entry struct {
	timestamps  []time.Time
	bannedUntil time.Time
}

// Limiter is a sliding-window admission limiter with escalating bans.
// An identifier that keeps hammering past the limit within one window is
// banned outright, which absorbs retry storms without per-request work.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*entry
	logger  *logrus.Entry

	stop chan struct{}
	done chan struct{}

	// Injected for tests; defaults to time.Now.
	now func() time.Time
}

func NewLimiter(config Config, logger *logrus.Entry) *Limiter {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	l := &Limiter{
		config:  config,
		entries: make(map[string]*entry),
		logger:  logger.WithField("component", "ratelimit"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go l.sweep()

	return l
}

// Check decides whether a request from the identifier is admitted right now.
func (l *Limiter) Check(identifier string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e := l.entries[identifier]
	if e == nil {
		e = &entry{}
		l.entries[identifier] = e
	}

	if now.Before(e.bannedUntil) {
		return Decision{Allowed: false, RetryAfter: e.bannedUntil.Sub(now)}
	}

	// Drop timestamps that slid out of the window.
	windowStart := now.Add(-l.config.Window)
	retained := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(windowStart) {
			retained = append(retained, ts)
		}
	}
	e.timestamps = retained

	if len(e.timestamps) >= l.config.Limit+l.config.BanThreshold {
		e.bannedUntil = now.Add(l.config.BanDuration)
		l.logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"duration":   l.config.BanDuration,
		}).Warn("banning identifier after repeated over-limit requests")
		return Decision{Allowed: false, RetryAfter: l.config.BanDuration}
	}

	if len(e.timestamps) >= l.config.Limit {
		// Denied attempts past the limit still count toward the ban
		// threshold, otherwise a flood would never escalate.
		e.timestamps = append(e.timestamps, now)
		oldest := e.timestamps[0]
		return Decision{Allowed: false, RetryAfter: l.config.Window - now.Sub(oldest)}
	}

	e.timestamps = append(e.timestamps, now)
	return Decision{Allowed: true, Remaining: l.config.Limit - len(e.timestamps)}
}

// Reset clears both the request history and any ban for the identifier.
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, identifier)
}

// Stats describes the limiter's current occupancy.
type Stats struct {
	TrackedIdentifiers int
	BannedIdentifiers  int
}

func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	banned := 0
	for _, e := range l.entries {
		if now.Before(e.bannedUntil) {
			banned++
		}
	}

	return Stats{TrackedIdentifiers: len(l.entries), BannedIdentifiers: banned}
}

// GetBanned returns the identifiers with a live ban.
func (l *Limiter) GetBanned() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	banned := []string{}
	for id, e := range l.entries {
		if now.Before(e.bannedUntil) {
			banned = append(banned, id)
		}
	}

	return banned
}

// Size returns the number of tracked identifiers.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the background sweep. The limiter remains usable, it just no
// longer reclaims memory on its own.
func (l *Limiter) Close() {
	close(l.stop)
	<-l.done
}

// sweep periodically purges identifiers with neither recent requests nor a
// live ban, so one-off clients do not accumulate forever.
func (l *Limiter) sweep() {
	defer close(l.done)

	ticker := time.NewTicker(l.config.Window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

func (l *Limiter) purge() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.config.Window)

	for id, e := range l.entries {
		if now.Before(e.bannedUntil) {
			continue
		}

		live := false
		for _, ts := range e.timestamps {
			if ts.After(windowStart) {
				live = true
				break
			}
		}

		if !live {
			delete(l.entries, id)
		}
	}
}
