// Package metrics exposes the bot's operational counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters on a private registry so tests can
// create isolated instances.
type Metrics struct {
	registry  *prometheus.Registry
	responses *prometheus.CounterVec
}

// New creates a fresh metrics set.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	responses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crombird_responses_total",
		Help: "Replies created or edited, by item type and subreddit.",
	}, []string{
		"type",      // submission, comment or mention
		"subreddit", // low cardinality in practice, the bot only watches a fixed roster
	})
	registry.MustRegister(responses)

	return &Metrics{registry: registry, responses: responses}
}

// IncResponse counts one successful reply create or edit.
func (m *Metrics) IncResponse(itemType, subreddit string) {
	m.responses.WithLabelValues(itemType, subreddit).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
