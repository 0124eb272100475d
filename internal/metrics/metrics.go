// Package metrics defines the indexer's Prometheus collectors. The HTTP
// exporter endpoint itself is out of scope; callers register these with
// whatever registry their embedding process already exposes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// IndexedBlocks counts blocks successfully committed by the Projector.
	IndexedBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "indexed_blocks",
		Help: "Total number of blocks committed to the store.",
	})

	// ChainReorgEventsTotal counts reorgs detected by the ReorgDetector.
	ChainReorgEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_reorg_events_total",
		Help: "Total number of chain reorganizations detected.",
	})

	// SyncCurrentHeight tracks the last committed block height.
	SyncCurrentHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_current_height",
		Help: "Height of the most recently committed block.",
	})

	// WorkpoolBatchRetriesTotal counts batches the Controller retried with
	// a reduced concurrency after a WorkPool task error.
	WorkpoolBatchRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "workpool_batch_retries_total",
		Help: "Total number of WorkPool batches retried after a task error.",
	})
)

// Registry returns a registry with the indexer's collectors registered.
// Callers that already own a registry may instead call MustRegisterAll.
func Registry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	MustRegisterAll(r)
	return r
}

// MustRegisterAll registers every indexer collector against r.
func MustRegisterAll(r prometheus.Registerer) {
	r.MustRegister(IndexedBlocks, ChainReorgEventsTotal, SyncCurrentHeight, WorkpoolBatchRetriesTotal)
}
