package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payment hub.
type Metrics struct {
	// Invoice lifecycle metrics
	InvoicesCreatedTotal prometheus.Counter
	InvoicesPaidTotal    *prometheus.CounterVec
	InvoicesFailedTotal  *prometheus.CounterVec
	InvoicesSweptTotal   prometheus.Counter
	InvoicesActive       prometheus.Gauge
	PaymentDuration      *prometheus.HistogramVec

	// Withdrawal metrics
	WithdrawalsTotal       *prometheus.CounterVec
	WithdrawalsFailedTotal *prometheus.CounterVec

	// External call metrics
	RPCCallsTotal  *prometheus.CounterVec
	RPCErrorsTotal *prometheus.CounterVec

	// Exchange rate metrics
	RateRefreshesTotal prometheus.Counter
	RateSnapshotsLive  prometheus.Gauge

	// Archival metrics
	ArchivalRunsTotal     prometheus.Counter
	ArchivedInvoicesTotal prometheus.Counter
	ArchivalFailuresTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		InvoicesCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesapay_invoices_created_total",
				Help: "Total number of invoices created",
			},
		),
		InvoicesPaidTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesapay_invoices_paid_total",
				Help: "Total number of invoices settled",
			},
			[]string{"token"},
		),
		InvoicesFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesapay_invoices_failed_total",
				Help: "Total number of failed payment verifications",
			},
			[]string{"reason"},
		),
		InvoicesSweptTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesapay_invoices_swept_total",
				Help: "Total number of expired invoices removed by the sweep",
			},
		),
		InvoicesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mesapay_invoices_active",
				Help: "Number of open invoices awaiting payment or verification",
			},
		),
		PaymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mesapay_payment_verification_duration_seconds",
				Help:    "Time taken to verify a payment end to end",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"token"},
		),

		WithdrawalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesapay_withdrawals_total",
				Help: "Total number of successful profit withdrawals",
			},
			[]string{"token"},
		),
		WithdrawalsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesapay_withdrawals_failed_total",
				Help: "Total number of failed profit withdrawals",
			},
			[]string{"token", "reason"},
		),

		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesapay_rpc_calls_total",
				Help: "Total number of calls to external ledger and oracle services",
			},
			[]string{"service"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mesapay_rpc_errors_total",
				Help: "Total number of failed external service calls",
			},
			[]string{"service"},
		),

		RateRefreshesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesapay_rate_refreshes_total",
				Help: "Total number of exchange rate refreshes",
			},
		),
		RateSnapshotsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mesapay_rate_snapshots_live",
				Help: "Number of exchange rate snapshots currently retained",
			},
		),

		ArchivalRunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesapay_archival_runs_total",
				Help: "Total number of invoice archival runs",
			},
		),
		ArchivedInvoicesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesapay_archived_invoices_total",
				Help: "Total number of invoices handed off to the archive",
			},
		),
		ArchivalFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mesapay_archival_failures_total",
				Help: "Total number of archival runs that had to be rolled back",
			},
		),
	}
}
