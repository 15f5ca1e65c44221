package store

import (
	"errors"
	"sync"
	"time"

	"github.com/dnldd/screener/shared"
	"go.uber.org/atomic"
)

// Subscriber is notified of every published snapshot. Subscribers are called
// synchronously by the publisher and must not block.
type Subscriber func(snap *shared.Snapshot)

// Store holds the published instrument snapshot. Readers never observe a partially
// updated snapshot, Publish swaps the whole snapshot in a single step.
type Store struct {
	current        atomic.Pointer[shared.Snapshot]
	publications   atomic.Uint64
	subscribers    map[string]Subscriber
	subscribersMtx sync.RWMutex
}

// New initializes a store serving the provided seed instruments until the first publish.
func New(seed []shared.Instrument) *Store {
	s := &Store{
		subscribers: make(map[string]Subscriber),
	}

	s.current.Store(shared.NewSeedSnapshot(seed))
	return s
}

// Snapshot returns the current published snapshot. The returned snapshot must be
// treated as read-only.
func (s *Store) Snapshot() *shared.Snapshot {
	return s.current.Load()
}

// Loading returns whether the store is still serving seed data awaiting its first pass.
func (s *Store) Loading() bool {
	return s.current.Load().Loading
}

// LastUpdated returns the last successful update time of the provided instrument.
func (s *Store) LastUpdated(id string) (time.Time, bool) {
	t, ok := s.current.Load().LastUpdated[id]
	return t, ok
}

// Publications returns the number of snapshots published.
func (s *Store) Publications() uint64 {
	return s.publications.Load()
}

// Publish swaps in the provided snapshot and notifies subscribers.
func (s *Store) Publish(snap *shared.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}

	s.current.Store(snap)
	s.publications.Inc()

	s.subscribersMtx.RLock()
	defer s.subscribersMtx.RUnlock()

	for _, sub := range s.subscribers {
		sub(snap)
	}

	return nil
}

// Subscribe registers the provided subscriber for published snapshots.
func (s *Store) Subscribe(name string, sub Subscriber) {
	s.subscribersMtx.Lock()
	s.subscribers[name] = sub
	s.subscribersMtx.Unlock()
}

// Unsubscribe removes the named subscriber.
func (s *Store) Unsubscribe(name string) {
	s.subscribersMtx.Lock()
	delete(s.subscribers, name)
	s.subscribersMtx.Unlock()
}
