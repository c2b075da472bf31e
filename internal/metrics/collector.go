package metrics

import (
	"context"
	"time"

	"github.com/tunnelmesh/metacoord/internal/metadata"
)

// TableStats is implemented by the metadata table.
type TableStats interface {
	Stats() metadata.Stats
}

// Collector periodically samples the metadata table into gauges.
type Collector struct {
	metrics *CoordMetrics
	table   TableStats

	// Nodes seen in the previous sample, so vanished series can be removed.
	lastNodes map[string]struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(m *CoordMetrics, table TableStats) *Collector {
	return &Collector{
		metrics:   m,
		table:     table,
		lastNodes: make(map[string]struct{}),
	}
}

// Collect updates all table gauges from the current state.
func (c *Collector) Collect() {
	if c.metrics == nil || c.table == nil {
		return
	}

	stats := c.table.Stats()
	c.metrics.FilesTracked.Set(float64(stats.Files))
	c.metrics.ChunksTracked.Set(float64(stats.Chunks))

	seen := make(map[string]struct{}, len(stats.ChunksPerNode))
	for node, count := range stats.ChunksPerNode {
		c.metrics.NodeChunks.WithLabelValues(node).Set(float64(count))
		seen[node] = struct{}{}
	}
	for node := range c.lastNodes {
		if _, ok := seen[node]; !ok {
			c.metrics.NodeChunks.DeleteLabelValues(node)
		}
	}
	c.lastNodes = seen
}

// Run starts periodic metric collection.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}
