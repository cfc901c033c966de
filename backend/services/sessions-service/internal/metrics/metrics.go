// Package metrics exposes Prometheus collectors for session transitions,
// fee accrual, violations, notifications and monitor sweeps.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the service collectors. A nil *Metrics is a valid no-op sink.
type Metrics struct {
	transitions   *prometheus.CounterVec
	fees          *prometheus.CounterVec
	feeAmount     *prometheus.CounterVec
	violations    prometheus.Counter
	bans          prometheus.Counter
	unlocks       prometheus.Counter
	notifications *prometheus.CounterVec
	sweeps        *prometheus.CounterVec
	sweepErrors   *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers collectors on reg (default registerer when nil). Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_status_transitions_total",
			Help: "Order and session status transitions",
		}, []string{"entity", "from", "to"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fees_created_total",
			Help: "Fees created by kind",
		}, []string{"kind"}),
		feeAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fees_amount_total",
			Help: "Sum of created fee amounts by kind",
		}, []string{"kind"}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "user_violations_total",
			Help: "Recorded user violations",
		}),
		bans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "user_bans_total",
			Help: "Users automatically banned",
		}),
		unlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "user_unlocks_total",
			Help: "Users unlocked after payment",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification events by category and outcome",
		}, []string{"category", "outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_sweeps_total",
			Help: "Completed monitor sweeps",
		}, []string{"monitor"}),
		sweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_record_errors_total",
			Help: "Records that failed inside a monitor sweep",
		}, []string{"monitor"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_sweep_duration_seconds",
			Help:    "Monitor sweep duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"monitor"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	var err error
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	if m.fees, err = register(reg, m.fees); err != nil {
		return nil, err
	}
	if m.feeAmount, err = register(reg, m.feeAmount); err != nil {
		return nil, err
	}
	if m.violations, err = register(reg, m.violations); err != nil {
		return nil, err
	}
	if m.bans, err = register(reg, m.bans); err != nil {
		return nil, err
	}
	if m.unlocks, err = register(reg, m.unlocks); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.sweeps, err = register(reg, m.sweeps); err != nil {
		return nil, err
	}
	if m.sweepErrors, err = register(reg, m.sweepErrors); err != nil {
		return nil, err
	}
	if m.sweepDuration, err = register(reg, m.sweepDuration); err != nil {
		return nil, err
	}
	if m.httpRequests, err = register(reg, m.httpRequests); err != nil {
		return nil, err
	}
	if m.httpDuration, err = register(reg, m.httpDuration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Transition records a status change of an order or session.
func (m *Metrics) Transition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

// FeeCreated records a new fee.
func (m *Metrics) FeeCreated(kind string, amount float64) {
	if m == nil {
		return
	}
	m.fees.WithLabelValues(kind).Inc()
	m.feeAmount.WithLabelValues(kind).Add(amount)
}

// Violation records a violation increment and whether it triggered a ban.
func (m *Metrics) Violation(banned bool) {
	if m == nil {
		return
	}
	m.violations.Inc()
	if banned {
		m.bans.Inc()
	}
}

// Unlocked records a successful unlock.
func (m *Metrics) Unlocked() {
	if m == nil {
		return
	}
	m.unlocks.Inc()
}

// Notification records a notification outcome: sent, suppressed or failed.
func (m *Metrics) Notification(category, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(category, outcome).Inc()
}

// Sweep records a finished sweep and its per-record failures.
func (m *Metrics) Sweep(monitor string, seconds float64, failures int) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(monitor).Inc()
	m.sweepDuration.WithLabelValues(monitor).Observe(seconds)
	if failures > 0 {
		m.sweepErrors.WithLabelValues(monitor).Add(float64(failures))
	}
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route, method string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(seconds)
}
