// Package metrics exposes Prometheus instrumentation for cookie refresh
// coordination. All Recorder methods are safe on a nil receiver, so
// instrumentation stays optional.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder counts refresh outcomes and timer activity for one plugin.
type Recorder struct {
	successes     prometheus.Counter
	failures      prometheus.Counter
	rearms        prometheus.Counter
	remoteUpdates prometheus.Counter
}

// NewRecorder registers the coordination counters on reg, labelled with the
// plugin id. A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer, pluginID string) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"plugin_id": pluginID}

	r := &Recorder{
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cookiewatch",
			Name:        "refresh_success_total",
			Help:        "Cookie refreshes that completed successfully.",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cookiewatch",
			Name:        "refresh_failure_total",
			Help:        "Cookie refreshes that failed.",
			ConstLabels: labels,
		}),
		rearms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cookiewatch",
			Name:        "timer_rearm_total",
			Help:        "Refresh timers armed, replacements included.",
			ConstLabels: labels,
		}),
		remoteUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cookiewatch",
			Name:        "expiry_update_total",
			Help:        "Expiry changes observed through the shared store.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(r.successes, r.failures, r.rearms, r.remoteUpdates)
	return r
}

// RefreshSucceeded counts one successful refresh.
func (r *Recorder) RefreshSucceeded() {
	if r == nil {
		return
	}
	r.successes.Inc()
}

// RefreshFailed counts one failed refresh.
func (r *Recorder) RefreshFailed() {
	if r == nil {
		return
	}
	r.failures.Inc()
}

// TimerRearmed counts one timer arm or replacement.
func (r *Recorder) TimerRearmed() {
	if r == nil {
		return
	}
	r.rearms.Inc()
}

// ExpiryUpdateObserved counts one change event from the shared store.
func (r *Recorder) ExpiryUpdateObserved() {
	if r == nil {
		return
	}
	r.remoteUpdates.Inc()
}
