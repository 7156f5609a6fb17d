// Package metrics registers the node's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tolbook"

var (
	txExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vm",
		Name:      "tx_executed_total",
		Help:      "Count of executed transactions by type and outcome.",
	}, []string{"type", "status"})
	txDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "vm",
		Name:      "tx_duration_seconds",
		Help:      "Duration of transaction execution.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type", "status"})

	booksAllocatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sale",
		Name:      "books_allocated_total",
		Help:      "Books allocated to buyers, by round.",
	}, []string{"round"})
	booksOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sale",
		Name:      "books_opened_total",
		Help:      "Books redeemed into their bundles.",
	})

	blocksProducedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sequencer",
		Name:      "blocks_produced_total",
		Help:      "Blocks produced by the sequencer by outcome.",
	}, []string{"status"})
	blockTxs = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sequencer",
		Name:      "block_transactions",
		Help:      "Transactions included per produced block.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
	mempoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sequencer",
		Name:      "mempool_size",
		Help:      "Pending transactions in the mempool.",
	})

	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "JSON-RPC requests by method and outcome.",
	}, []string{"method", "status"})
	rpcRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "rate_limited_total",
		Help:      "HTTP requests rejected by the rate limiter.",
	})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveTx records one transaction execution.
func ObserveTx(txType string, err error, started time.Time) {
	s := status(err)
	txExecutedTotal.WithLabelValues(txType, s).Inc()
	txDuration.WithLabelValues(txType, s).Observe(time.Since(started).Seconds())
}

// BooksAllocated counts n books sold or granted in round.
func BooksAllocated(round string, n int) {
	booksAllocatedTotal.WithLabelValues(round).Add(float64(n))
}

// BookOpened counts one redemption.
func BookOpened() {
	booksOpenedTotal.Inc()
}

// ObserveBlock records a block production attempt.
func ObserveBlock(err error, txs int) {
	blocksProducedTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		blockTxs.Observe(float64(txs))
	}
}

// SetMempoolSize reports the current mempool depth.
func SetMempoolSize(n int) {
	mempoolSize.Set(float64(n))
}

// ObserveRPC records one JSON-RPC call.
func ObserveRPC(method string, err error) {
	if method == "" {
		method = "unknown"
	}
	rpcRequestsTotal.WithLabelValues(method, status(err)).Inc()
}

// RateLimited counts a request turned away by the limiter.
func RateLimited() {
	rpcRejectedTotal.Inc()
}
