package common

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrWorkerClosed  = errors.New("worker is closed")
	ErrWorkerTooBusy = errors.New("worker is already overloaded")
)

// WorkerConfig configures a single-goroutine task worker.
type WorkerConfig[T any] struct {
	// The size of the bounded task channel.
	ChannelSize int
	// Idle period after which OnTimeout is called.
	Timeout time.Duration
	// Called when Timeout elapses with no tasks.
	OnTimeout func()
	// Executed for each received task.
	OnTask func(T)
}

// Worker executes tasks on its own goroutine so that the submitter is never
// blocked by the task's latency. Used for deferred transport work (e.g.
// subscriptions awaiting remote acknowledgement) that must not stall the
// message loop.
type Worker[T any] struct {
	channel chan<- T
	mutex   sync.Mutex
	closed  bool
}

// Stop closes the worker unless already closed. Buffered tasks still run.
func (w *Worker[T]) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.closed {
		close(w.channel)
		w.closed = true
	}
}

// Send queues a task without blocking. Returns ErrWorkerTooBusy when the
// queue is full and ErrWorkerClosed after Stop.
func (w *Worker[T]) Send(task T) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrWorkerClosed
	}

	select {
	case w.channel <- task:
		return nil
	default:
		return ErrWorkerTooBusy
	}
}

// StartWorker spawns the worker goroutine. It stops once Stop is called and
// the queue has drained.
func StartWorker[T any](c WorkerConfig[T]) *Worker[T] {
	incoming := make(chan T, c.ChannelSize)

	go func() {
		for {
			select {
			case task, ok := <-incoming:
				if !ok {
					return
				}
				c.OnTask(task)
			case <-time.After(c.Timeout):
				if c.OnTimeout != nil {
					c.OnTimeout()
				}
			}
		}
	}()

	return &Worker[T]{channel: incoming}
}
