package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeEvent(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewLogger(zerolog.New(&buf))

	if auditLogger == nil {
		t.Fatal("NewLogger returned nil")
	}
}

func TestLogUpload(t *testing.T) {
	tests := []struct {
		name      string
		nodes     []string
		chunks    int
		result    string
		wantLevel string
	}{
		{
			name:      "placed",
			nodes:     []string{"localhost:9001", "localhost:9001"},
			chunks:    2,
			result:    ResultOK,
			wantLevel: "info",
		},
		{
			name:      "no nodes",
			chunks:    4,
			result:    ResultNoNodes,
			wantLevel: "warn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			auditLogger := NewLogger(zerolog.New(&buf))

			auditLogger.LogUpload("req-1", "movie.mp4", tt.chunks, tt.nodes, tt.result)

			entry := decodeEvent(t, &buf)
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["event_type"] != "upload" {
				t.Errorf("event_type = %v, want upload", entry["event_type"])
			}
			if entry["component"] != "audit" {
				t.Errorf("component = %v, want audit", entry["component"])
			}
			if entry["filename"] != "movie.mp4" {
				t.Errorf("filename = %v", entry["filename"])
			}
			if entry["chunks"] != float64(tt.chunks) {
				t.Errorf("chunks = %v, want %d", entry["chunks"], tt.chunks)
			}
			if entry["request_id"] != "req-1" {
				t.Errorf("request_id = %v", entry["request_id"])
			}
			_, hasNodes := entry["nodes"]
			if hasNodes != (len(tt.nodes) > 0) {
				t.Errorf("nodes present = %v, want %v", hasNodes, len(tt.nodes) > 0)
			}
		})
	}
}

func TestLogDownload(t *testing.T) {
	tests := []struct {
		name       string
		chunks     int
		found      bool
		wantResult string
	}{
		{"hit", 3, true, ResultOK},
		{"empty record", 0, true, ResultOK},
		{"miss", 0, false, ResultMiss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			auditLogger := NewLogger(zerolog.New(&buf))

			auditLogger.LogDownload("", "a.txt", tt.chunks, tt.found)

			entry := decodeEvent(t, &buf)
			if entry["event_type"] != "download" {
				t.Errorf("event_type = %v, want download", entry["event_type"])
			}
			if entry["result"] != tt.wantResult {
				t.Errorf("result = %v, want %s", entry["result"], tt.wantResult)
			}
			if _, ok := entry["request_id"]; ok {
				t.Error("empty request_id should be omitted")
			}
		})
	}
}

func TestLogUnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	auditLogger.LogUnknownCommand("req-9", "DELETE_REQUEST", "a.txt")

	if !strings.Contains(buf.String(), `"command":"DELETE_REQUEST"`) {
		t.Errorf("missing command field: %s", buf.String())
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.LogUpload("", "a", 1, nil, ResultOK)
	l.LogDownload("", "a", 0, false)
	l.LogUnknownCommand("", "X", "a")
}
