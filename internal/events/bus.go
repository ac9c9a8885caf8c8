// Package events is the process-wide signal bus. Each subscriber has its own
// buffer. Events that do not fit are dropped, except evictions: a lost
// mutation must reach the user, so Publish waits up to DeliveryTimeout for
// room before giving up on one.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/mrlokans/caresync/internal/entities"
)

type Type string

const (
	ConnectivityChanged Type = "connectivity_changed"
	AuthExpired         Type = "auth_expired"
	SyncProgress        Type = "sync_progress"
	SyncCompleted       Type = "sync_completed"
	MutationEvicted     Type = "mutation_evicted"
)

// DefaultDeliveryTimeout bounds how long Publish waits on a full subscriber
// for an event that must not be dropped.
const DefaultDeliveryTimeout = 5 * time.Second

// mustDeliver reports whether events of type t wait for buffer room.
func mustDeliver(t Type) bool {
	return t == MutationEvicted
}

// Event is one signal. Only the fields relevant to its Type are set.
type Event struct {
	Type Type
	At   time.Time

	// ConnectivityChanged
	Online bool

	// SyncProgress
	Pending       int64
	LastSuccessAt *time.Time

	// SyncCompleted
	Synced  int
	Failed  int
	Evicted int

	// MutationEvicted
	Kind    entities.Kind
	LocalID string
	Action  entities.MutationAction
	Err     string
}

type subscriber struct {
	ch chan Event
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}

	// DeliveryTimeout bounds the wait for evictions on a full subscriber.
	DeliveryTimeout time.Duration
}

func NewBus() *Bus {
	return &Bus{
		subs:            make(map[*subscriber]struct{}),
		DeliveryTimeout: DefaultDeliveryTimeout,
	}
}

// Subscribe returns a channel receiving every event published from now on,
// and a function that unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers e to every subscriber with room in its buffer. Evictions
// wait for room instead, bounded by DeliveryTimeout per subscriber.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
			continue
		default:
		}

		if !mustDeliver(e.Type) {
			log.Printf("Events: subscriber buffer full, dropping %s event", e.Type)
			continue
		}
		b.deliver(sub, e)
	}
}

func (b *Bus) deliver(sub *subscriber, e Event) {
	timer := time.NewTimer(b.DeliveryTimeout)
	defer timer.Stop()

	select {
	case sub.ch <- e:
	case <-timer.C:
		log.Printf("Events: subscriber stalled for %v, dropping %s event for %s %s",
			b.DeliveryTimeout, e.Type, e.Kind, e.LocalID)
	}
}
