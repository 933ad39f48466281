// Package memstore provides an in-process tabstore.Store. It backs tests and
// single-process callers; cross-process coordination needs a shared backend
// such as redisstore.
package memstore

import (
	"context"
	"sync"

	"github.com/sessionworks/cookiewatch/tabstore"
)

const eventBuffer = 16

var _ tabstore.Store = (*Store)(nil)

// Store is a map-backed bucket with change notification.
type Store struct {
	lock   sync.Mutex
	values map[string]string
	subs   map[string]map[int]*subscription
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
		subs:   make(map[string]map[int]*subscription),
	}
}

// Set writes value under key and notifies every subscriber of that key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	s.values[key] = value
	targets := make([]*subscription, 0, len(s.subs[key]))
	for _, sub := range s.subs[key] {
		targets = append(targets, sub)
	}
	s.lock.Unlock()

	ev := tabstore.Event{Key: key, Value: value}
	for _, sub := range targets {
		sub.deliver(ev)
	}
	return nil
}

// Get returns the current value under key.
func (s *Store) Get(key string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Subscribe registers for change events on key.
func (s *Store) Subscribe(_ context.Context, key string) (tabstore.Subscription, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.nextID
	s.nextID++
	sub := &subscription{
		store:  s,
		key:    key,
		id:     id,
		events: make(chan tabstore.Event, eventBuffer),
	}
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]*subscription)
	}
	s.subs[key][id] = sub
	return sub, nil
}

// SubscriberCount reports the number of live subscriptions on key.
func (s *Store) SubscriberCount(key string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.subs[key])
}

type subscription struct {
	store  *Store
	key    string
	id     int
	events chan tabstore.Event

	closeOnce sync.Once
	sendLock  sync.Mutex
	closed    bool
}

func (sub *subscription) deliver(ev tabstore.Event) {
	sub.sendLock.Lock()
	defer sub.sendLock.Unlock()
	if sub.closed {
		return
	}
	// A subscriber that stopped draining must not block writers. On a full
	// buffer the oldest event gives way; the feed is last-write-wins, so the
	// newest value is the one that matters.
	select {
	case sub.events <- ev:
	default:
		select {
		case <-sub.events:
		default:
		}
		select {
		case sub.events <- ev:
		default:
		}
	}
}

func (sub *subscription) Events() <-chan tabstore.Event {
	return sub.events
}

func (sub *subscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.store.lock.Lock()
		delete(sub.store.subs[sub.key], sub.id)
		sub.store.lock.Unlock()

		sub.sendLock.Lock()
		sub.closed = true
		close(sub.events)
		sub.sendLock.Unlock()
	})
	return nil
}
