package masedb

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "masedb"

type metrics struct {
	transactions *prometheus.CounterVec
	opsSent      *prometheus.CounterVec
	commitTime   prometheus.Histogram
	open         prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "transactions_total",
			Help:      "Transactions that reached a terminal state, by state.",
		}, []string{"state"}),
		opsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "operations_sent_total",
			Help:      "Operations delivered to the sender, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		commitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "commit_duration_seconds",
			Help:      "Time spent flushing a transaction's op log.",
			Buckets:   prometheus.DefBuckets,
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "client",
			Name:      "transactions_open",
			Help:      "Transactions that have begun and not reached a terminal state.",
		}),
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.transactions, m.opsSent, m.commitTime, m.open} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) sent(kind OpKind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.opsSent.WithLabelValues(string(kind), outcome).Inc()
}

func (m *metrics) finished(state TxState) {
	m.transactions.WithLabelValues(string(state)).Inc()
	m.open.Dec()
}
