package noteservice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starford/graphnotes/internal/models"
)

// Metrics holds the Prometheus collectors for the graph and vault.
type Metrics struct {
	nodes      prometheus.Gauge
	edges      prometheus.Gauge
	unresolved prometheus.Gauge
	rebuild    prometheus.Histogram
	changes    *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg yields collectors
// that are updated but never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphnotes_graph_nodes",
			Help: "Number of nodes in the knowledge graph",
		}),
		edges: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphnotes_graph_edges",
			Help: "Number of edges in the knowledge graph",
		}),
		unresolved: f.NewGauge(prometheus.GaugeOpts{
			Name: "graphnotes_graph_unresolved_links",
			Help: "References that matched no note at the last rebuild",
		}),
		rebuild: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphnotes_graph_rebuild_duration_seconds",
			Help:    "Duration of full graph rebuilds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		changes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "graphnotes_changes_total",
			Help: "Applied vault and graph changes by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeSize(nodes, edges int) {
	m.nodes.Set(float64(nodes))
	m.edges.Set(float64(edges))
}

func (m *Metrics) observeChange(k models.ChangeKind) {
	m.changes.WithLabelValues(string(k)).Inc()
}
