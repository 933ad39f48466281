// Package refresh performs the network round trip that renews a short-lived
// authentication cookie and reports the renewed cookie's expiry.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sessionworks/cookiewatch/discovery"
)

// DefaultPath is the refresh endpoint path used when none is configured.
const DefaultPath = "/cookie"

// Responses larger than this are truncated; the body only carries expiresAt.
const maxBodyBytes = 64 << 10

// Doer issues HTTP requests. Implementations must attach the caller's ambient
// session credentials, matching a browser fetch with credentials included. An
// http.Client with a cookie jar is the usual choice.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is one successful refresh: the renewed cookie's expiry instant.
type Result struct {
	ExpiresAt time.Time

	// RawExpiresAt is the expiry exactly as the endpoint sent it, for
	// persisting into the shared store without reformatting surprises.
	RawExpiresAt string
}

// Executor performs credentialed GETs against a plugin's refresh endpoint.
// Execute is safe to call concurrently; callers tracking outcomes apply the
// latest completion and never queue stale ones.
type Executor struct {
	resolver discovery.Resolver
	client   Doer
	pluginID string
	path     string
	log      zerolog.Logger
}

// NewExecutor builds an executor for pluginID. An empty path falls back to
// DefaultPath and a nil client to http.DefaultClient.
func NewExecutor(resolver discovery.Resolver, client Doer, pluginID, path string, log zerolog.Logger) *Executor {
	if path == "" {
		path = DefaultPath
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		resolver: resolver,
		client:   client,
		pluginID: pluginID,
		path:     path,
		log:      log,
	}
}

// Execute resolves the plugin's base URL, GETs the refresh endpoint and
// parses the renewed expiry from the JSON body. Non-2xx responses surface as
// *HTTPResponseError; a 2xx body without a valid RFC3339 expiresAt surfaces
// as ErrMalformedBody.
func (e *Executor) Execute(ctx context.Context) (*Result, error) {
	base, err := e.resolver.BaseURL(ctx, e.pluginID)
	if err != nil {
		return nil, fmt.Errorf("resolve base url for plugin %q: %w", e.pluginID, err)
	}
	endpoint := base.JoinPath(e.path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &HTTPResponseError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	var payload struct {
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if payload.ExpiresAt == "" {
		return nil, ErrMalformedBody
	}
	expiresAt, err := time.Parse(time.RFC3339, payload.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	e.log.Debug().
		Str("plugin_id", e.pluginID).
		Time("expires_at", expiresAt).
		Msg("cookie refreshed")

	return &Result{ExpiresAt: expiresAt, RawExpiresAt: payload.ExpiresAt}, nil
}
