package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts ledger appends and integrity failures.
type LedgerMetrics struct {
	appends  *prometheus.CounterVec
	failures *prometheus.CounterVec
	records  prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	appends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_appends_total",
		Help: "Blocks appended to the inventory ledger.",
	}, []string{"status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_append_failures_total",
		Help: "Rejected or failed ledger operations.",
	}, []string{"reason"})
	records := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_records",
		Help: "Blocks currently held by the in-memory ledger.",
	})
	reg.MustRegister(appends, failures, records)
	return &LedgerMetrics{appends: appends, failures: failures, records: records}
}

// IncAppend counts a successful append with the new block's status.
func (m *LedgerMetrics) IncAppend(status string) {
	if m == nil || m.appends == nil {
		return
	}
	m.appends.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncFailure counts a failed operation by reason, e.g. "duplicate_uid".
func (m *LedgerMetrics) IncFailure(reason string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(reason)).Inc()
}

// SetRecords publishes the current block count.
func (m *LedgerMetrics) SetRecords(n int) {
	if m == nil || m.records == nil {
		return
	}
	m.records.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
