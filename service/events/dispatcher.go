package events

import (
	"context"
	"sync"
	"time"

	"DMChat/logger"
	"DMChat/service/presence"
	"DMChat/tools/safe"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Dispatcher decouples request handling from the broker: Emit never blocks,
// a single worker publishes in order, overflow is dropped.
type Dispatcher struct {
	pub    Publisher
	queue  chan Event
	onDrop func(typ string)
	log    *zap.Logger
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(pub Publisher, size int, onDrop func(typ string)) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	if onDrop == nil {
		onDrop = func(string) {}
	}
	d := &Dispatcher{
		pub:    pub,
		queue:  make(chan Event, size),
		onDrop: onDrop,
		log:    logger.Named("events"),
		done:   make(chan struct{}),
	}
	safe.Go("events-dispatcher", d.run)
	return d
}

// Emit queues e and reports whether it was accepted.
func (d *Dispatcher) Emit(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.onDrop(e.Type)
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.onDrop(e.Type)
		d.log.Warn("event queue full, dropping", zap.String("type", e.Type))
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.pub.Publish(ctx, e); err != nil {
			d.log.Warn("publish event failed", zap.String("type", e.Type), zap.String("id", e.ID), zap.Error(err))
		}
		cancel()
	}
}

// Close flushes what is queued (bounded by ctx) and closes the publisher.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.log.Warn("event flush timed out", zap.Int("pending", len(d.queue)))
	}
	return d.pub.Close()
}

// PresenceListener forwards presence changes as domain events.
type PresenceListener struct{ D *Dispatcher }

var _ presence.Listener = PresenceListener{}

func (l PresenceListener) PresenceChanged(userID string, online bool, snap presence.Snapshot) {
	l.D.Emit(New(TypePresenceChanged, userID, PresenceChanged{
		UserID:  userID,
		Online:  online,
		Version: snap.Version,
		Total:   len(snap.Online),
	}))
}

func (PresenceListener) Pushed(string, error) {}
