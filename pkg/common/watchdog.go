package common

import (
	"sync"
	"time"
)

// WatchdogConfig configures a liveness watchdog.
type WatchdogConfig struct {
	// Quiet period after which OnTimeout is called.
	Timeout time.Duration
	// Called once Timeout is reached without a Notify.
	OnTimeout func()
}

// WatchdogChannel is the feeding end of a watchdog. The channel is wrapped
// in a struct so that it can be closed from the outside exactly once.
type WatchdogChannel struct {
	channel chan<- struct{}
	mutex   sync.Mutex
	closed  bool
}

// Close stops the watchdog unless already stopped.
func (c *WatchdogChannel) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.closed {
		close(c.channel)
		c.closed = true
	}
}

// Notify feeds the watchdog. Returns false if the watchdog is stopped.
func (c *WatchdogChannel) Notify() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false
	}

	c.channel <- struct{}{}
	return true
}

// Start spawns a goroutine that calls OnTimeout whenever no notification has
// arrived for the configured Timeout. It stops when the channel is closed.
func (c *WatchdogConfig) Start() *WatchdogChannel {
	incoming := make(chan struct{}, UnboundedChannelSize)

	go func() {
		for {
			select {
			case _, ok := <-incoming:
				if !ok {
					return
				}
			case <-time.After(c.Timeout):
				c.OnTimeout()
			}
		}
	}()

	return &WatchdogChannel{channel: incoming}
}
