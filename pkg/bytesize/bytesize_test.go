package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"0", 0, false},
		{"10B", 10, false},
		{"1KB", KB, false},
		{"1k", KB, false},
		{"64MB", 64 * MB, false},
		{"64Mi", 64 * MB, false},
		{"1.5GB", GB + GB/2, false},
		{" 2 tb ", 2 * TB, false},
		{"", 0, true},
		{"MB", 0, true},
		{"-1MB", 0, true},
		{"10XB", 0, true},
		{"1e3", 0, true},
		{"99999999999TB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0 B", Format(0))
	assert.Equal(t, "512 B", Format(512))
	assert.Equal(t, "1.00 KB", Format(KB))
	assert.Equal(t, "64.00 MB", Format(64*MB))
	assert.Equal(t, "1.50 GB", Format(GB+GB/2))
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		name      string
		fileSize  int64
		chunkSize int64
		want      int
		wantErr   bool
	}{
		{"empty file", 0, 64 * MB, 0, false},
		{"exact multiple", 128 * MB, 64 * MB, 2, false},
		{"partial last chunk", 150 * MB, 64 * MB, 3, false},
		{"smaller than chunk", 1, 64 * MB, 1, false},
		{"zero chunk size", 10, 0, 0, true},
		{"negative file", -1, 10, 0, true},
		{"too many chunks", 1 << 40, 1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChunkCount(tt.fileSize, tt.chunkSize)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
