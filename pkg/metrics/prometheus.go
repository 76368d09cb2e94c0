/**
 * @description
 * Prometheus instrumentation for the ledger service. The collector owns its
 * own registry so tests can create isolated instances, and exposes a handler
 * plus an optional standalone metrics server.
 *
 * @dependencies
 * - github.com/prometheus/client_golang: Metrics primitives and HTTP exposition.
 */

package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the service's Prometheus metrics.
type Collector struct {
	registry              *prometheus.Registry
	transactionsCompleted *prometheus.CounterVec
	transactionsFailed    *prometheus.CounterVec
	operationDuration     prometheus.Histogram
	accountBalance        *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		transactionsCompleted: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_completed_total",
			Help: "Total number of completed ledger transactions",
		}, []string{"type"}),
		transactionsFailed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_failed_total",
			Help: "Total number of failed ledger transactions",
		}, []string{"type"}),
		operationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken to execute a ledger operation",
			Buckets: prometheus.DefBuckets,
		}),
		accountBalance: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_account_balance_minor_units",
			Help: "Current account balance in minor currency units",
		}, []string{"account_id", "currency"}),
	}
}

// RecordTransaction records the outcome and duration of one ledger operation.
func (c *Collector) RecordTransaction(txType string, duration time.Duration, success bool) {
	if success {
		c.transactionsCompleted.WithLabelValues(txType).Inc()
	} else {
		c.transactionsFailed.WithLabelValues(txType).Inc()
	}
	c.operationDuration.Observe(duration.Seconds())
}

// UpdateAccountBalance publishes the latest balance for an account.
func (c *Collector) UpdateAccountBalance(accountID int64, currency string, balance int64) {
	c.accountBalance.WithLabelValues(strconv.FormatInt(accountID, 10), currency).Set(float64(balance))
}

// Handler returns the exposition handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves /metrics on its own listener and returns the
// server so the caller can shut it down.
func (c *Collector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Printf("level=info component=metrics msg=\"metrics server starting\" addr=%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("level=error component=metrics msg=\"metrics server failed\" err=%v", err)
		}
	}()

	return server
}
