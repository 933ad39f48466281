// Package tabstore defines the shared key/value capability that keeps cookie
// expiry state synchronized across tabs, meaning any set of processes or
// windows sharing one storage area. Implementations must deliver change
// events for every write on a subscribed key, including writes made by the
// subscriber itself.
package tabstore

import "context"

// KeyExpiresAt is the fixed key under which the current cookie expiry is
// stored, as an RFC3339 timestamp string.
const KeyExpiresAt = "expiresAt"

const bucketSuffix = "-auth-cookie-storage"

// BucketName derives the per-plugin bucket that scopes shared expiry state.
func BucketName(pluginID string) string {
	return pluginID + bucketSuffix
}

// Event is one observed change to a watched key. Origin identifies the writer
// when the backend can tell writers apart; it may be empty.
type Event struct {
	Key    string
	Value  string
	Origin string
}

// Subscription is a live registration with a store's change feed.
type Subscription interface {
	// Events yields every change to the subscribed key. The channel is closed
	// when the subscription is closed.
	Events() <-chan Event

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// Store is a per-plugin-scoped key/value bucket shared across tabs.
type Store interface {
	// Set writes value under key and notifies every subscriber of that key,
	// the writer's own subscriptions included.
	Set(ctx context.Context, key, value string) error

	// Subscribe registers for change events on key.
	Subscribe(ctx context.Context, key string) (Subscription, error)
}
