package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	BonusDistributions  *prometheus.CounterVec
	BonusDistributeTime *prometheus.HistogramVec
	BonusCredited       prometheus.Counter
	LedgerTransactions  *prometheus.CounterVec
	ActivationChecks    *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	Errors              *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			BonusDistributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bonus_distributions_total",
				Help:      "Total bonus distribution runs by outcome.",
			}, []string{"status"}),
			BonusDistributeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bonus_distribution_duration_seconds",
				Help:      "Latency distribution for bonus distribution runs.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			BonusCredited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bonus_credited_amount_total",
				Help:      "Total bonus amount credited to partner ledgers.",
			}),
			LedgerTransactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_transactions_total",
				Help:      "Total ledger transactions appended by type.",
			}, []string{"type"}),
			ActivationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activation_checks_total",
				Help:      "Total partner activation status checks by result.",
			}, []string{"result"}),
			Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Total partner notifications sent by outcome.",
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.BonusDistributions,
			metricsInstance.BonusDistributeTime,
			metricsInstance.BonusCredited,
			metricsInstance.LedgerTransactions,
			metricsInstance.ActivationChecks,
			metricsInstance.Notifications,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
