// Package redisstore implements tabstore.Store on Redis. Values live under
// "{bucket}:{key}" and every write is published on a channel of the same
// name, so subscribers in other processes observe the change, as does the
// writer itself. Last write wins; the store never locks or reconciles.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sessionworks/cookiewatch/tabstore"
)

const eventBuffer = 16

var _ tabstore.Store = (*Store)(nil)

// Store is a Redis-backed shared bucket.
type Store struct {
	rdb    redis.UniversalClient
	bucket string
	origin string
	log    zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger routes diagnostics to log instead of discarding them.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithOrigin overrides the writer id carried in published change events.
func WithOrigin(origin string) Option {
	return func(s *Store) { s.origin = origin }
}

// New returns a store scoped to bucket, typically
// tabstore.BucketName(pluginID). Each store instance gets its own origin id
// so events can be traced back to the writing tab.
func New(rdb redis.UniversalClient, bucket string, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		bucket: bucket,
		origin: uuid.NewString(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// changeMessage is the wire form of a published change event.
type changeMessage struct {
	Value  string `json:"value"`
	Origin string `json:"origin"`
}

func (s *Store) channel(key string) string {
	return s.bucket + ":" + key
}

// Set persists value and publishes the change to every subscriber.
func (s *Store) Set(ctx context.Context, key, value string) error {
	name := s.channel(key)
	if err := s.rdb.Set(ctx, name, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", name, err)
	}

	msg, err := json.Marshal(changeMessage{Value: value, Origin: s.origin})
	if err != nil {
		return fmt.Errorf("encode change event for %q: %w", name, err)
	}
	if err := s.rdb.Publish(ctx, name, msg).Err(); err != nil {
		return fmt.Errorf("publish change event for %q: %w", name, err)
	}
	return nil
}

// Get returns the current value under key, or "" when unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.channel(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %q: %w", s.channel(key), err)
	}
	return v, nil
}

// Subscribe registers for change events on key via Redis pub/sub.
func (s *Store) Subscribe(ctx context.Context, key string) (tabstore.Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, s.channel(key))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %q: %w", s.channel(key), err)
	}

	sub := &subscription{
		pubsub: pubsub,
		events: make(chan tabstore.Event, eventBuffer),
	}
	go sub.pump(key, s.log)
	return sub, nil
}

type subscription struct {
	pubsub    *redis.PubSub
	events    chan tabstore.Event
	closeOnce sync.Once
	closeErr  error
}

// pump translates pub/sub messages into tabstore events until the
// subscription closes.
func (sub *subscription) pump(key string, log zerolog.Logger) {
	defer close(sub.events)
	for msg := range sub.pubsub.Channel() {
		var change changeMessage
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("ignoring malformed change event")
			continue
		}
		sub.events <- tabstore.Event{Key: key, Value: change.Value, Origin: change.Origin}
	}
}

func (sub *subscription) Events() <-chan tabstore.Event {
	return sub.events
}

func (sub *subscription) Close() error {
	sub.closeOnce.Do(func() {
		sub.closeErr = sub.pubsub.Close()
	})
	return sub.closeErr
}
