// Package metrics provides Prometheus metrics for the metadata coordinator.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// Registry is the Prometheus registry for all metacoord metrics.
var Registry = prometheus.NewRegistry()

// Result label values for RequestsTotal.
const (
	ResultOK            = "ok"
	ResultNoNodes       = "no_nodes"
	ResultUnknown       = "unknown_command"
	ResultProtocolError = "protocol_error"
	ResultIOError       = "io_error"
	ResultInternalError = "internal_error"
)

// Command label values. Arbitrary client commands collapse into CommandOther.
const (
	CommandUpload   = "upload"
	CommandDownload = "download"
	CommandOther    = "other"
	CommandNone     = "none"
)

var (
	coordMetricsOnce     sync.Once
	coordMetricsInstance *CoordMetrics
)

// CoordMetrics holds all Prometheus metrics for the coordinator.
type CoordMetrics struct {
	// Request handling
	RequestsTotal   *prometheus.CounterVec   // metacoord_requests_total{command,result}
	RequestDuration *prometheus.HistogramVec // metacoord_request_duration_seconds{command}
	ActiveWorkers   prometheus.Gauge

	// Placement
	ChunksAssigned prometheus.Counter
	NoNodesTotal   prometheus.Counter

	// Table contents, sampled by Collector
	FilesTracked  prometheus.Gauge
	ChunksTracked prometheus.Gauge
	NodeChunks    *prometheus.GaugeVec // metacoord_node_chunks{node}
}

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// InitCoordMetrics initializes all coordinator metrics.
// Metrics are only registered once; subsequent calls return the same instance.
// If registry is nil, Registry is used.
func InitCoordMetrics(registry prometheus.Registerer) *CoordMetrics {
	coordMetricsOnce.Do(func() {
		if registry == nil {
			registry = Registry
		}
		coordMetricsInstance = NewCoordMetrics(registry)
	})
	return coordMetricsInstance
}

// NewCoordMetrics registers a fresh set of coordinator metrics with registry.
// Registering twice with the same registry panics; use InitCoordMetrics in binaries.
func NewCoordMetrics(registry prometheus.Registerer) *CoordMetrics {
	return &CoordMetrics{
		RequestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "metacoord_requests_total",
			Help: "Requests handled, by command and result",
		}, []string{"command", "result"}),

		RequestDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metacoord_request_duration_seconds",
			Help:    "Time spent dispatching a request",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"command"}),

		ActiveWorkers: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "metacoord_active_workers",
			Help: "Connections currently being served",
		}),

		ChunksAssigned: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "metacoord_chunks_assigned_total",
			Help: "Total chunk placements handed out for uploads",
		}),

		NoNodesTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "metacoord_no_nodes_total",
			Help: "Uploads answered empty because no storage nodes were configured",
		}),

		FilesTracked: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "metacoord_files_tracked",
			Help: "Number of filenames in the metadata table",
		}),

		ChunksTracked: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "metacoord_chunks_tracked",
			Help: "Number of chunk placements in the metadata table",
		}),

		NodeChunks: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "metacoord_node_chunks",
			Help: "Chunk placements recorded per storage node",
		}, []string{"node"}),
	}
}

// CommandLabel maps a wire command to a bounded label value.
func CommandLabel(command string) string {
	switch command {
	case proto.CmdUpload:
		return CommandUpload
	case proto.CmdDownload:
		return CommandDownload
	default:
		return CommandOther
	}
}
