package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidqr_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aidqr_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	KeysIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidqr_keys_issued_total",
			Help: "Total number of redemption keys issued.",
		},
		[]string{"kind"},
	)

	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidqr_redemptions_total",
			Help: "Total number of redemption attempts by outcome.",
		},
		[]string{"kind", "result"},
	)

	QuotaResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aidqr_quota_resets_total",
			Help: "Total number of per-user daily usage resets.",
		},
	)

	PersistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aidqr_persistence_failures_total",
			Help: "Total number of failed ledger loads and saves.",
		},
		[]string{"op"},
	)

	LedgerRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aidqr_ledger_records",
			Help: "Number of user records held by the ledger.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		KeysIssuedTotal,
		RedemptionsTotal,
		QuotaResetsTotal,
		PersistenceFailuresTotal,
		LedgerRecords,
	)
}
