package events

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

const publishTimeout = 5 * time.Second

// Dispatcher hands events to a pool of workers that forward them to the
// underlying publisher, so request paths never wait on the broker.
// Events are best effort: a full queue drops the event and logs it.
type Dispatcher struct {
	next  port.EventPublisher
	queue chan domain.Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(next port.EventPublisher, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{next: next, queue: make(chan domain.Event, queueSize)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.workerLoop()
		}()
	}
	return d
}

func (d *Dispatcher) Publish(_ context.Context, event domain.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil
	}

	select {
	case d.queue <- event:
	default:
		logging.Log(logging.Fields{Step: "event", Status: "dropped", Message: event.Type + " " + event.Key})
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop() {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.next.Publish(ctx, event); err != nil {
			logging.Log(logging.Fields{
				Step:    "event",
				Status:  "publish_failed",
				Message: event.Type + " " + event.Key,
				Error:   err.Error(),
			})
		}
		cancel()
	}
}
