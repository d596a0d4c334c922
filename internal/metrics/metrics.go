// Package metrics exposes node state as Prometheus collectors for the
// node_getMetrics RPC endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zion-chain/zion/internal/chain"
	"github.com/zion-chain/zion/internal/mempool"
	"github.com/zion-chain/zion/internal/p2p"
)

// Collector gathers a snapshot of node state into a dedicated Prometheus
// registry each time it is scraped. It never mutates node state.
type Collector struct {
	registry *prometheus.Registry
}

// New builds a Collector wired to the given chain, mempool and (optional)
// P2P node. p2pNode may be nil when running without networking.
func New(ch *chain.Chain, pool *mempool.Pool, p2pNode *p2p.Node) *Collector {
	reg := prometheus.NewRegistry()

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "zion",
		Subsystem: "chain",
		Name:      "height",
		Help:      "Current height of the active chain tip.",
	}, func() float64 { return float64(ch.Height()) })

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "zion",
		Subsystem: "chain",
		Name:      "supply_total",
		Help:      "Total issued supply (premine plus mined subsidy, burned coins included) at the current tip, in base units.",
	}, func() float64 { return float64(ch.Supply()) })

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "zion",
		Subsystem: "mempool",
		Name:      "transactions",
		Help:      "Number of transactions currently in the mempool.",
	}, func() float64 { return float64(pool.Count()) })

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "zion",
		Subsystem: "mempool",
		Name:      "min_fee_rate",
		Help:      "Minimum fee rate, in base units per byte, currently accepted by the mempool.",
	}, func() float64 { return float64(pool.MinFeeRate()) })

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "zion",
		Subsystem: "p2p",
		Name:      "peers",
		Help:      "Number of connected peers.",
	}, func() float64 {
		if p2pNode == nil {
			return 0
		}
		return float64(p2pNode.PeerCount())
	})

	return &Collector{registry: reg}
}

// Registry returns the underlying Prometheus registry so callers can gather
// and encode it (e.g. via expfmt) without this package depending on the
// exposition format.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
