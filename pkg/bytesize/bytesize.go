// Package bytesize parses and formats byte sizes and splits sizes into chunks.
package bytesize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Common byte size units.
const (
	B  int64 = 1
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
)

// DefaultChunkSize is the chunk size used by the CLI when none is given.
const DefaultChunkSize = 64 * MB

// sizePattern matches size strings like "100MB", "1.5 GB", "1024"
var sizePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]*)\s*$`)

// Parse parses a byte size string like "100MB", "1.5GB", or "1024" into bytes.
// Supported units: B, KB, MB, GB, TB and the K/M/G/T and Ki/Mi/Gi/Ti forms (case-insensitive).
// If no unit is specified, bytes are assumed.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %q", matches[1])
	}

	var multiplier int64
	switch strings.ToUpper(matches[2]) {
	case "", "B":
		multiplier = B
	case "KB", "K", "KI":
		multiplier = KB
	case "MB", "M", "MI":
		multiplier = MB
	case "GB", "G", "GI":
		multiplier = GB
	case "TB", "T", "TI":
		multiplier = TB
	default:
		return 0, fmt.Errorf("unknown unit: %q", matches[2])
	}

	bytes := value * float64(multiplier)
	if bytes > math.MaxInt64 {
		return 0, fmt.Errorf("size too large: %q", s)
	}
	return int64(bytes), nil
}

// Format formats a byte count into a human-readable string.
func Format(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	units := []struct {
		threshold int64
		unit      string
	}{
		{TB, "TB"},
		{GB, "GB"},
		{MB, "MB"},
		{KB, "KB"},
	}

	for _, u := range units {
		if bytes >= u.threshold {
			return fmt.Sprintf("%.2f %s", float64(bytes)/float64(u.threshold), u.unit)
		}
	}

	return fmt.Sprintf("%d B", bytes)
}

// ChunkCount returns how many chunks of chunkSize bytes hold fileSize bytes.
// An empty file has zero chunks.
func ChunkCount(fileSize, chunkSize int64) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive")
	}
	if fileSize < 0 {
		return 0, fmt.Errorf("file size must not be negative")
	}

	n := fileSize / chunkSize
	if fileSize%chunkSize != 0 {
		n++
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("too many chunks: %d", n)
	}
	return int(n), nil
}
