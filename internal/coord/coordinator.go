// Package coord ties placement and the metadata table together and answers client requests.
package coord

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tunnelmesh/metacoord/internal/logging/audit"
	"github.com/tunnelmesh/metacoord/internal/metadata"
	"github.com/tunnelmesh/metacoord/internal/metrics"
	"github.com/tunnelmesh/metacoord/internal/placement"
	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// noNodesWarnInterval bounds how often the empty node set is reported at warn level.
const noNodesWarnInterval = 30 * time.Second

// Config holds the coordinator's collaborators. Nodes is required; Metrics and Audit are optional.
type Config struct {
	Nodes     placement.NodeSource
	Placement placement.PolicyConfig
	Metrics   *metrics.CoordMetrics
	Audit     *audit.Logger
}

// Coordinator owns the node set, the placement cursor and the metadata table.
// A single instance is shared by every connection.
type Coordinator struct {
	nodes   placement.NodeSource
	policy  *placement.Policy
	table   *metadata.Table
	locks   fileLocks
	metrics *metrics.CoordMetrics
	audit   *audit.Logger
	logger  zerolog.Logger

	noNodesWarn rate.Sometimes
}

// New creates a coordinator with an empty metadata table.
func New(cfg Config, logger zerolog.Logger) (*Coordinator, error) {
	if cfg.Nodes == nil {
		return nil, errors.New("node source is required")
	}

	logger = logger.With().Str("component", "coord").Logger()

	return &Coordinator{
		nodes:       cfg.Nodes,
		policy:      placement.NewPolicy(cfg.Nodes, cfg.Placement),
		table:       metadata.NewTable(logger),
		metrics:     cfg.Metrics,
		audit:       cfg.Audit,
		logger:      logger,
		noNodesWarn: rate.Sometimes{First: 1, Interval: noNodesWarnInterval},
	}, nil
}

// Table returns the metadata table.
func (c *Coordinator) Table() *metadata.Table {
	return c.table
}

// Nodes returns the current storage node set.
func (c *Coordinator) Nodes() []string {
	return c.nodes.Nodes()
}

// Cursor returns the current placement cursor.
func (c *Coordinator) Cursor() uint64 {
	return c.policy.Cursor()
}

// Assign picks a node for each of chunkCount chunks of filename, replaces the stored record with
// the result and returns it. With no storage nodes it returns placement.ErrNoNodes and leaves the
// table untouched.
func (c *Coordinator) Assign(filename string, chunkCount int) ([]proto.ChunkPlacement, error) {
	mu := c.locks.forName(filename)
	mu.Lock()
	defer mu.Unlock()

	placements, err := c.policy.Select(filename, chunkCount)
	if err != nil {
		return nil, err
	}
	c.table.Put(filename, placements)

	if c.metrics != nil {
		c.metrics.ChunksAssigned.Add(float64(len(placements)))
	}
	return placements, nil
}

// Lookup returns the placements recorded for filename, or an empty slice.
func (c *Coordinator) Lookup(filename string) []proto.ChunkPlacement {
	return c.table.Lookup(filename)
}

// Dispatch answers one decoded request. It always returns a list, possibly empty.
// The request-scoped logger is taken from ctx when present.
func (c *Coordinator) Dispatch(ctx context.Context, req *proto.Request) []proto.ChunkPlacement {
	start := time.Now()
	logger := c.requestLogger(ctx)
	requestID := requestIDFrom(ctx)
	command := metrics.CommandLabel(req.Command)

	var (
		resp   []proto.ChunkPlacement
		result = metrics.ResultOK
	)

	switch req.Command {
	case proto.CmdUpload:
		placements, err := c.Assign(req.Filename, req.NumberOfChunks)
		switch {
		case errors.Is(err, placement.ErrNoNodes):
			result = metrics.ResultNoNodes
			c.reportNoNodes(logger, req.Filename)
			c.audit.LogUpload(requestID, req.Filename, req.NumberOfChunks, nil, audit.ResultNoNodes)
		case err != nil:
			// Negative or over-limit count. The server's codec rejects both before dispatch.
			result = metrics.ResultProtocolError
			logger.Warn().Err(err).Str("filename", req.Filename).Msg("upload rejected")
		default:
			resp = placements
			c.audit.LogUpload(requestID, req.Filename, len(placements), nodeAddresses(placements), audit.ResultOK)
			logger.Debug().
				Str("filename", req.Filename).
				Int("chunks", len(placements)).
				Msg("assigned chunks")
		}

	case proto.CmdDownload:
		var found bool
		resp, found = c.table.Find(req.Filename)
		c.audit.LogDownload(requestID, req.Filename, len(resp), found)
		logger.Debug().
			Str("filename", req.Filename).
			Int("chunks", len(resp)).
			Msg("looked up chunks")

	default:
		result = metrics.ResultUnknown
		c.audit.LogUnknownCommand(requestID, req.Command, req.Filename)
		logger.Debug().Str("command", req.Command).Msg("unknown command, answering empty")
	}

	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(command, result).Inc()
		c.metrics.RequestDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}

	if resp == nil {
		resp = []proto.ChunkPlacement{}
	}
	return resp
}

func (c *Coordinator) reportNoNodes(logger zerolog.Logger, filename string) {
	if c.metrics != nil {
		c.metrics.NoNodesTotal.Inc()
	}
	warned := false
	c.noNodesWarn.Do(func() {
		warned = true
		logger.Warn().Str("filename", filename).Msg("no storage nodes configured, upload answered empty")
	})
	if !warned {
		logger.Debug().Str("filename", filename).Msg("no storage nodes configured")
	}
}

func (c *Coordinator) requestLogger(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return *l
		}
	}
	return c.logger
}

func nodeAddresses(placements []proto.ChunkPlacement) []string {
	out := make([]string, len(placements))
	for i, p := range placements {
		out[i] = p.NodeAddress
	}
	return out
}
