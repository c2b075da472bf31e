package placement

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunnelmesh/metacoord/pkg/proto"
)

func mustNodes(t *testing.T, addrs ...string) *StaticNodes {
	t.Helper()
	nodes, err := NewStaticNodes(addrs)
	require.NoError(t, err)
	return nodes
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "report.txt_chunk_0", ChunkID("report.txt", 0))
	assert.Equal(t, "report.txt_chunk_12", ChunkID("report.txt", 12))
	assert.Equal(t, "_chunk_3", ChunkID("", 3))
}

func TestPolicySelect_ReferenceStride(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1", "C:1"), PolicyConfig{})

	placements, err := policy.Select("report.txt", 2)
	require.NoError(t, err)
	require.Len(t, placements, 2)

	// Each chunk consumes three cursor positions: chunk 0 -> 0 mod 3, chunk 1 -> 3 mod 3.
	assert.Equal(t, "report.txt_chunk_0", placements[0].ChunkID)
	assert.Equal(t, "A:1", placements[0].NodeAddress)
	assert.Equal(t, "report.txt_chunk_1", placements[1].ChunkID)
	assert.Equal(t, "A:1", placements[1].NodeAddress)
	assert.Nil(t, placements[0].Replicas)
}

func TestPolicySelect_CursorSharedAcrossFiles(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1"), PolicyConfig{CursorStride: 1})

	first, err := policy.Select("a.txt", 3)
	require.NoError(t, err)
	second, err := policy.Select("b.txt", 2)
	require.NoError(t, err)

	got := make([]string, 0, 5)
	for _, p := range append(first, second...) {
		got = append(got, p.NodeAddress)
	}
	// The rotation continues from where a.txt left off rather than restarting.
	assert.Equal(t, []string{"A:1", "B:1", "A:1", "B:1", "A:1"}, got)
}

func TestPolicySelect_StrideAgainstFourNodes(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1", "C:1", "D:1"), PolicyConfig{})

	placements, err := policy.Select("f", 4)
	require.NoError(t, err)

	var got []string
	for _, p := range placements {
		got = append(got, p.NodeAddress)
	}
	// Positions 0, 3, 6, 9 modulo 4.
	assert.Equal(t, []string{"A:1", "D:1", "C:1", "B:1"}, got)
}

func TestPolicySelect_ZeroChunks(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1"), PolicyConfig{})

	placements, err := policy.Select("empty", 0)
	require.NoError(t, err)
	assert.NotNil(t, placements)
	assert.Empty(t, placements)
	assert.Equal(t, uint64(0), policy.cursor)
}

func TestPolicySelect_NoNodes(t *testing.T) {
	policy := NewPolicy(mustNodes(t), PolicyConfig{})

	placements, err := policy.Select("f", 3)
	assert.ErrorIs(t, err, ErrNoNodes)
	assert.Nil(t, placements)
	assert.Equal(t, uint64(0), policy.cursor, "cursor must not move when nothing is assigned")
}

func TestPolicySelect_NegativeCount(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1"), PolicyConfig{})

	_, err := policy.Select("f", -1)
	assert.ErrorIs(t, err, ErrInvalidChunkCount)
}

func TestPolicySelect_CountAboveLimit(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1"), PolicyConfig{MaxChunks: 4})

	placements, err := policy.Select("f", 4)
	require.NoError(t, err)
	assert.Len(t, placements, 4)
	cursor := policy.Cursor()

	for _, n := range []int{5, 1_000_000_000_000_000} {
		_, err := policy.Select("f", n)
		assert.ErrorIs(t, err, ErrInvalidChunkCount)
	}
	assert.Equal(t, cursor, policy.Cursor(), "rejected counts must not move the cursor")
}

func TestPolicySelect_DefaultLimit(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1"), PolicyConfig{})

	_, err := policy.Select("f", proto.DefaultMaxChunks+1)
	assert.ErrorIs(t, err, ErrInvalidChunkCount)
	assert.Equal(t, uint64(0), policy.Cursor())
}

func TestPolicySelect_CursorWraps(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1", "C:1"), PolicyConfig{CursorStride: 1})
	policy.cursor = math.MaxUint64 - 1

	placements, err := policy.Select("wrap", 4)
	require.NoError(t, err)
	require.Len(t, placements, 4)

	nodes := map[string]bool{"A:1": true, "B:1": true, "C:1": true}
	for _, p := range placements {
		assert.True(t, nodes[p.NodeAddress], "unexpected node %q", p.NodeAddress)
	}
	assert.Equal(t, uint64(2), policy.cursor)
}

func TestPolicySelect_RecordReplicas(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1", "C:1", "D:1"), PolicyConfig{RecordReplicas: true})

	placements, err := policy.Select("f", 2)
	require.NoError(t, err)
	require.Len(t, placements, 2)

	assert.Equal(t, "A:1", placements[0].NodeAddress)
	assert.Equal(t, []string{"A:1", "B:1", "C:1"}, placements[0].Replicas)
	assert.Equal(t, "D:1", placements[1].NodeAddress)
	assert.Equal(t, []string{"D:1", "A:1", "B:1"}, placements[1].Replicas)
}

func TestPolicySelect_RecordReplicasDeduplicates(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1"), PolicyConfig{RecordReplicas: true})

	placements, err := policy.Select("f", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A:1", "B:1"}, placements[0].Replicas)
}

func TestPolicySelect_ConcurrentReservationsDoNotOverlap(t *testing.T) {
	policy := NewPolicy(mustNodes(t, "A:1", "B:1", "C:1"), PolicyConfig{})

	const workers = 20
	const chunks = 5

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := policy.Select(fmt.Sprintf("file-%d", i), chunks)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*chunks*DefaultCursorStride), policy.cursor)
}

func TestNewStaticNodes(t *testing.T) {
	nodes, err := NewStaticNodes([]string{"localhost:9001", " localhost:9002 ", "localhost:9001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9001", "localhost:9002"}, nodes.Nodes())

	empty, err := NewStaticNodes(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Nodes())
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"localhost:9001", false},
		{"10.0.0.5:7000", false},
		{"[::1]:9001", false},
		{"", true},
		{"localhost", true},
		{":9001", true},
		{"localhost:notaport", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
