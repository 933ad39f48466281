// Package coordinator wires the refresh executor, the scheduler and the
// shared store into one per-tab coordination session.
//
// A session refreshes once when it starts. Every success is written to the
// shared store, and every expiry observed on the store, whether from the
// session's own write or from another tab, cancels the current timer and arms
// a new one a randomized margin before the expiry. The store is last-write-wins: two tabs
// refreshing inside the same narrow window are not reconciled, which assumes
// the server treats concurrent cookie refreshes as idempotent.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sessionworks/cookiewatch/discovery"
	"github.com/sessionworks/cookiewatch/metrics"
	"github.com/sessionworks/cookiewatch/refresh"
	"github.com/sessionworks/cookiewatch/schedule"
	"github.com/sessionworks/cookiewatch/tabstore"
)

var (
	ErrMissingPluginID = errors.New("plugin id is required")
	ErrMissingResolver = errors.New("discovery resolver is required")
	ErrMissingStore    = errors.New("shared store is required")
	ErrAlreadyStarted  = errors.New("session already started")
)

// Snapshot is the caller-visible view of a session. Result keeps the last
// known good refresh even while Status is StatusError.
type Snapshot struct {
	Status refresh.Status
	Err    error
	Result *refresh.Result
}

// Config assembles a session's capabilities. PluginID, Resolver and Store are
// required; everything else has a default.
type Config struct {
	PluginID string
	Path     string // refresh endpoint path, default refresh.DefaultPath

	Resolver discovery.Resolver
	Client   refresh.Doer   // must carry ambient credentials; default http.DefaultClient
	Store    tabstore.Store // shared expiry bucket, scope it with tabstore.BucketName

	Clock  schedule.Clock
	Rand   schedule.Rand
	Logger zerolog.Logger

	// OnUpdate, when set, is called after every status transition with the
	// new snapshot. Calls are serialized.
	OnUpdate func(Snapshot)

	Metrics *metrics.Recorder // optional
}

// Session coordinates cookie refreshes for one tab. Create it with New, then
// Start it; Stop releases the timer and the store subscription.
type Session struct {
	cfg   Config
	exec  *refresh.Executor
	sched *schedule.Scheduler
	log   zerolog.Logger

	lock     sync.Mutex
	outcome  refresh.Outcome
	timer    *schedule.Timer
	sub      tabstore.Subscription
	runCtx   context.Context
	pumpDone chan struct{}
	started  bool
	stopped  bool

	updateLock sync.Mutex
}

// New validates cfg and builds an idle session. No I/O happens until Start.
func New(cfg Config) (*Session, error) {
	if cfg.PluginID == "" {
		return nil, ErrMissingPluginID
	}
	if cfg.Resolver == nil {
		return nil, ErrMissingResolver
	}
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.Path == "" {
		cfg.Path = refresh.DefaultPath
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}

	log := cfg.Logger.With().Str("plugin_id", cfg.PluginID).Logger()
	return &Session{
		cfg:   cfg,
		exec:  refresh.NewExecutor(cfg.Resolver, cfg.Client, cfg.PluginID, cfg.Path, log),
		sched: schedule.NewScheduler(cfg.Clock, cfg.Rand, log),
		log:   log,
	}, nil
}

// Start acquires the session's resources: the store subscription first, then
// the initial refresh, which runs in the background so Start does not block
// on the network. ctx bounds every request the session makes.
func (s *Session) Start(ctx context.Context) error {
	s.lock.Lock()
	if s.started {
		s.lock.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.lock.Unlock()

	sub, err := s.cfg.Store.Subscribe(ctx, tabstore.KeyExpiresAt)
	if err != nil {
		s.lock.Lock()
		s.started = false
		s.lock.Unlock()
		return fmt.Errorf("subscribe to expiry changes: %w", err)
	}

	s.lock.Lock()
	s.sub = sub
	s.runCtx = ctx
	s.pumpDone = make(chan struct{})
	s.lock.Unlock()

	go s.pump(sub)
	go s.execute(ctx)
	return nil
}

// Stop releases the timer and the subscription, on every exit path. It is
// idempotent and safe to call even if Start was never called or failed.
func (s *Session) Stop() error {
	s.lock.Lock()
	if s.stopped {
		s.lock.Unlock()
		return nil
	}
	s.stopped = true
	timer := s.timer
	sub := s.sub
	done := s.pumpDone
	s.timer = nil
	s.sub = nil
	s.lock.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	if done != nil {
		<-done
	}
	s.log.Debug().Msg("coordination session stopped")
	return err
}

// Snapshot returns the current projection of the session's outcome.
func (s *Session) Snapshot() Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return snapshotOf(s.outcome)
}

// Retry unconditionally triggers another refresh, whatever the current
// status. Each call runs exactly one execution; overlapping calls are safe
// and the latest completion wins.
func (s *Session) Retry() {
	s.lock.Lock()
	ctx := s.runCtx
	s.lock.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go s.execute(ctx)
}

// execute performs one refresh round trip and applies its completion.
func (s *Session) execute(ctx context.Context) {
	s.transition(func(o refresh.Outcome) refresh.Outcome { return o.Begin() })

	result, err := s.exec.Execute(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("cookie refresh failed")
		s.cfg.Metrics.RefreshFailed()
		s.transition(func(o refresh.Outcome) refresh.Outcome { return o.Fail(err) })
		return
	}

	s.cfg.Metrics.RefreshSucceeded()
	s.transition(func(o refresh.Outcome) refresh.Outcome { return o.Succeed(result) })
	s.onExecuteSucceeded(ctx, result)
}

// onExecuteSucceeded publishes the renewed expiry to the shared store, which
// persists it and notifies every tab including this one. It also rearms
// locally so a store outage cannot leave the session without a timer.
func (s *Session) onExecuteSucceeded(ctx context.Context, result *refresh.Result) {
	s.lock.Lock()
	stopped := s.stopped
	s.lock.Unlock()
	if stopped {
		return
	}

	if err := s.cfg.Store.Set(ctx, tabstore.KeyExpiresAt, result.RawExpiresAt); err != nil {
		s.log.Warn().Err(err).Msg("could not persist expiry to shared store")
	}
	s.rearm(result.ExpiresAt)
}

// pump feeds observed expiry changes into the rearm cycle until the
// subscription closes.
func (s *Session) pump(sub tabstore.Subscription) {
	defer close(s.pumpDone)
	for ev := range sub.Events() {
		if ev.Value == "" {
			continue
		}
		s.onExpiryChanged(ev)
	}
}

// onExpiryChanged handles one store event: any tab's successful refresh,
// including this one's own write.
func (s *Session) onExpiryChanged(ev tabstore.Event) {
	expiresAt, err := time.Parse(time.RFC3339, ev.Value)
	if err != nil {
		s.log.Warn().Str("value", ev.Value).Msg("ignoring malformed expiry from shared store")
		return
	}
	s.cfg.Metrics.ExpiryUpdateObserved()
	s.rearm(expiresAt)
}

// rearm is the single path through which a newly known expiry becomes the
// next refresh: cancel the old timer, arm a new one. The replaced timer can
// never fire afterwards.
func (s *Session) rearm(expiresAt time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Cancel()
	}
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.timer = s.sched.Arm(expiresAt, func() { s.execute(ctx) })
	s.cfg.Metrics.TimerRearmed()
}

// transition applies one outcome change and notifies OnUpdate. Holding
// updateLock across both keeps callback order identical to application order,
// so a listener's last update always matches the final snapshot.
func (s *Session) transition(apply func(refresh.Outcome) refresh.Outcome) {
	s.updateLock.Lock()
	defer s.updateLock.Unlock()

	s.lock.Lock()
	s.outcome = apply(s.outcome)
	snap := snapshotOf(s.outcome)
	s.lock.Unlock()

	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(snap)
	}
}

func snapshotOf(o refresh.Outcome) Snapshot {
	return Snapshot{Status: o.Status(), Err: o.Err, Result: o.Result}
}
