// Package discovery resolves a logical plugin id to the origin that serves it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// ErrPluginNotFound is returned when no base URL is registered for a plugin.
var ErrPluginNotFound = errors.New("plugin not found")

// Resolver maps a plugin id to the base URL of the backend serving it.
type Resolver interface {
	BaseURL(ctx context.Context, pluginID string) (*url.URL, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, pluginID string) (*url.URL, error)

// BaseURL calls f.
func (f ResolverFunc) BaseURL(ctx context.Context, pluginID string) (*url.URL, error) {
	return f(ctx, pluginID)
}

var _ Resolver = (*Static)(nil)

// Static resolves plugin ids from a fixed registration table.
type Static struct {
	lock sync.RWMutex
	urls map[string]*url.URL
}

// NewStatic returns an empty static resolver.
func NewStatic() *Static {
	return &Static{urls: make(map[string]*url.URL)}
}

// Register maps pluginID to rawURL, replacing any previous registration.
func (s *Static) Register(pluginID, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse base url for plugin %q: %w", pluginID, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base url for plugin %q must be absolute, got %q", pluginID, rawURL)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.urls[pluginID] = u
	return nil
}

// BaseURL returns the registered base URL for pluginID.
func (s *Static) BaseURL(_ context.Context, pluginID string) (*url.URL, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	u, ok := s.urls[pluginID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, pluginID)
	}
	copied := *u
	return &copied, nil
}
