// Package placement decides which storage node receives each chunk of a file.
package placement

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// DefaultCursorStride is how many cursor positions each chunk consumes. Three positions are
// selected per chunk, one per intended replica; only the first is recorded as the chunk's node.
const DefaultCursorStride = 3

// PolicyConfig tunes the round-robin policy.
type PolicyConfig struct {
	// CursorStride is the number of cursor positions consumed per chunk. Values < 1 use
	// DefaultCursorStride.
	CursorStride int
	// RecordReplicas additionally returns every distinct node selected for a chunk in
	// ChunkPlacement.Replicas.
	RecordReplicas bool
	// MaxChunks caps the chunk count of one Select. Values < 1 use proto.DefaultMaxChunks.
	MaxChunks int
}

// Policy is a round-robin placement policy over a NodeSource with a single cursor shared by
// every assignment, so successive files continue the rotation instead of restarting it.
type Policy struct {
	nodes          NodeSource
	stride         uint64
	recordReplicas bool
	maxChunks      int

	mu     sync.Mutex
	cursor uint64 // wraps on overflow
}

// NewPolicy creates a round-robin policy starting at cursor 0.
func NewPolicy(nodes NodeSource, cfg PolicyConfig) *Policy {
	stride := cfg.CursorStride
	if stride < 1 {
		stride = DefaultCursorStride
	}
	maxChunks := cfg.MaxChunks
	if maxChunks < 1 {
		maxChunks = proto.DefaultMaxChunks
	}
	return &Policy{
		nodes:          nodes,
		stride:         uint64(stride),
		recordReplicas: cfg.RecordReplicas,
		maxChunks:      maxChunks,
	}
}

// ChunkID returns the identifier of chunk index of filename.
func ChunkID(filename string, index int) string {
	return filename + "_chunk_" + strconv.Itoa(index)
}

// Select picks a node for each of chunkCount chunks of filename. It does not store anything.
// The cursor range for the whole file is reserved in one step, so concurrent selections never
// interleave their positions.
func (p *Policy) Select(filename string, chunkCount int) ([]proto.ChunkPlacement, error) {
	if chunkCount < 0 {
		return nil, fmt.Errorf("%w: %d is negative", ErrInvalidChunkCount, chunkCount)
	}
	if chunkCount > p.maxChunks {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrInvalidChunkCount, chunkCount, p.maxChunks)
	}

	nodes := p.nodes.Nodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	start := p.reserve(uint64(chunkCount) * p.stride)
	n := uint64(len(nodes))

	placements := make([]proto.ChunkPlacement, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		base := start + uint64(i)*p.stride
		cp := proto.ChunkPlacement{
			ChunkID:     ChunkID(filename, i),
			NodeAddress: nodes[base%n],
		}
		if p.recordReplicas {
			cp.Replicas = p.replicaSet(nodes, base)
		}
		placements = append(placements, cp)
	}

	return placements, nil
}

// Cursor returns the next cursor position.
func (p *Policy) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// reserve advances the cursor by count positions and returns the first reserved position.
func (p *Policy) reserve(count uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.cursor
	p.cursor += count
	return start
}

// replicaSet returns the distinct nodes at positions base..base+stride-1, in selection order.
func (p *Policy) replicaSet(nodes []string, base uint64) []string {
	n := uint64(len(nodes))
	replicas := make([]string, 0, p.stride)
	for r := uint64(0); r < p.stride; r++ {
		addr := nodes[(base+r)%n]
		if !slices.Contains(replicas, addr) {
			replicas = append(replicas, addr)
		}
	}
	return replicas
}
