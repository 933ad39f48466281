// Package schedule arms cancellable refresh timers a randomized margin before
// a cookie's expiry.
package schedule

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	marginBase   = time.Minute
	marginSpread = 3 * time.Minute
)

// Rand yields a uniform float64 in [0, 1). Injected so tests can pin margins;
// the randomness spreads load, it is not a security property.
type Rand func() float64

// Scheduler computes when the next refresh should run and arms a timer for
// it. Each Arm draws a fresh margin uniformly from [1min, 4min) so tabs and
// users sharing an expiry policy do not all refresh at the same instant.
type Scheduler struct {
	clock Clock
	rand  Rand
	log   zerolog.Logger
}

// NewScheduler builds a scheduler. Nil clock and rnd fall back to the system
// clock and math/rand.
func NewScheduler(clock Clock, rnd Rand, log zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Scheduler{clock: clock, rand: rnd, log: log}
}

func (s *Scheduler) margin() time.Duration {
	return marginBase + time.Duration(s.rand()*float64(marginSpread))
}

// Arm schedules fire to run margin-before expiresAt. An expiry already inside
// the margin, or in the past, fires straight away. The returned Timer is the
// only handle on the pending refresh; cancel it before replacing it.
func (s *Scheduler) Arm(expiresAt time.Time, fire func()) *Timer {
	delay := expiresAt.Sub(s.clock.Now()) - s.margin()
	if delay < 0 {
		delay = 0
	}

	t := &Timer{}
	t.inner = s.clock.AfterFunc(delay, func() {
		t.lock.Lock()
		if t.cancelled {
			t.lock.Unlock()
			return
		}
		t.fired = true
		t.lock.Unlock()
		fire()
	})

	s.log.Debug().
		Time("expires_at", expiresAt).
		Dur("delay", delay).
		Msg("refresh timer armed")
	return t
}

// Timer is the handle on one pending refresh. A coordination session holds at
// most one live Timer at a time.
type Timer struct {
	lock      sync.Mutex
	inner     ClockTimer
	cancelled bool
	fired     bool
}

// Cancel stops the timer. It is idempotent, a no-op once the timer has fired,
// and after it returns the timer's callback can no longer run.
func (t *Timer) Cancel() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.cancelled || t.fired {
		return
	}
	t.cancelled = true
	t.inner.Stop()
}

// Live reports whether the timer is still pending: not fired, not cancelled.
func (t *Timer) Live() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return !t.cancelled && !t.fired
}
