// Package metrics exposes governance counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

const namespace = "governance"

// Metrics records governance events as Prometheus counters.
type Metrics struct {
	registry *prometheus.Registry

	votes              *prometheus.CounterVec
	sessionsOpened     *prometheus.CounterVec
	sessionsClosed     *prometheus.CounterVec
	autoDecisions      *prometheus.CounterVec
	ruleConflicts      prometheus.Counter
	missingRates       *prometheus.CounterVec
	reviews            *prometheus.CounterVec
	notificationErrors *prometheus.CounterVec
}

// New registers every collector on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes recorded, by pathway and decision.",
		}, []string{"pathway", "decision"}),
		sessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Voting sessions opened, by pathway.",
		}, []string{"pathway"}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Voting sessions closed, by pathway and outcome.",
		}, []string{"pathway", "outcome"}),
		autoDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_decisions_total",
			Help:      "Proposals decided by auto-approval rules, by outcome.",
		}, []string{"outcome"}),
		ruleConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_conflicts_total",
			Help:      "Proposals where approving and rejecting rules both matched.",
		}),
		missingRates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_rates_total",
			Help:      "Valuations that hit a staff grade with no hourly rate.",
		}, []string{"grade"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Implementation reviews recorded, by accuracy.",
		}, []string{"accuracy"}),
		notificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications dropped after retries, by event type.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.votes,
		m.sessionsOpened,
		m.sessionsClosed,
		m.autoDecisions,
		m.ruleConflicts,
		m.missingRates,
		m.reviews,
		m.notificationErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) VoteCast(pathway governance.Pathway, decision governance.VoteDecision) {
	m.votes.WithLabelValues(string(pathway), string(decision)).Inc()
}

func (m *Metrics) SessionOpened(pathway governance.Pathway) {
	m.sessionsOpened.WithLabelValues(string(pathway)).Inc()
}

func (m *Metrics) SessionClosed(pathway governance.Pathway, outcome governance.Outcome) {
	m.sessionsClosed.WithLabelValues(string(pathway), string(outcome)).Inc()
}

func (m *Metrics) AutoDecided(outcome governance.OversightStatus) {
	m.autoDecisions.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) RuleConflict() {
	m.ruleConflicts.Inc()
}

func (m *Metrics) MissingRate(grade string) {
	m.missingRates.WithLabelValues(grade).Inc()
}

func (m *Metrics) ReviewRecorded(accuracy governance.Accuracy) {
	m.reviews.WithLabelValues(string(accuracy)).Inc()
}

// NotificationFailed counts a notification that exhausted its retries.
func (m *Metrics) NotificationFailed(eventType string) {
	m.notificationErrors.WithLabelValues(eventType).Inc()
}
