// Package alertbus hand-rolls a broadcast fan-out: each subscriber gets
// its own buffered channel, and a lagging subscriber is dropped and
// closed rather than blocking the publisher. A fresh Subscribe() call
// after a drop carries no backlog ("resubscribe-from-now" semantics).
package alertbus

import (
	"sync"
	"time"

	"netids/internal/core/model"
	"netids/internal/stats"
)

const subscriberBuffer = 1000

// Bus fans alerts out to an arbitrary number of subscribers and keeps the
// bounded recent-alerts ring.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan model.ThreatAlert
	nextID      int

	ring *ring

	stats     *stats.Accumulator
	forwarder *Forwarder
}

// New builds a Bus backed by the given stats accumulator: every published
// alert increments threats_detected and its severity bucket before
// publication.
func New(acc *stats.Accumulator, forwarder *Forwarder) *Bus {
	return &Bus{
		subscribers: make(map[int]chan model.ThreatAlert),
		ring:        newRing(100),
		stats:       acc,
		forwarder:   forwarder,
	}
}

// Subscribe returns a private channel carrying every alert published
// after this call. Closed automatically if the subscriber ever lags.
func (b *Bus) Subscribe() <-chan model.ThreatAlert {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.ThreatAlert, subscriberBuffer)
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	return ch
}

// Publish increments Stats, pushes into the ring, fans out to every live
// subscriber (dropping and closing any that are full), and — if
// configured — forwards the alert to the external NATS subject.
func (b *Bus) Publish(alert model.ThreatAlert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	b.stats.IncrementThreatCount(alert.Severity)

	b.ring.push(alert)

	b.mu.Lock()
	for id, ch := range b.subscribers {
		select {
		case ch <- alert:
		default:
			close(ch)
			delete(b.subscribers, id)
		}
	}
	b.mu.Unlock()

	if b.forwarder != nil {
		b.forwarder.Forward(alert)
	}
}

// RecentAlerts returns up to limit alerts, newest first.
func (b *Bus) RecentAlerts(limit int) []model.ThreatAlert {
	return b.ring.recent(limit)
}
