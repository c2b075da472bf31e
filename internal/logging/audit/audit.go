// Package audit records placement decisions and lookups as structured log events.
package audit

import (
	"github.com/rs/zerolog"
)

// Result values carried in the "result" field.
const (
	ResultOK      = "ok"
	ResultNoNodes = "no_nodes"
	ResultMiss    = "miss"
)

// Logger provides structured audit logging for coordinator requests.
// All audit events are logged with an event_type field for easy filtering.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger from a zerolog.Logger.
// Pass zerolog.Nop() to discard all events.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// LogUpload logs an upload placement decision.
// nodes: the node recorded for each chunk, in chunk order
// result: "ok" or "no_nodes"
func (l *Logger) LogUpload(requestID, filename string, chunks int, nodes []string, result string) {
	if l == nil {
		return
	}

	level := zerolog.InfoLevel
	if result == ResultNoNodes {
		level = zerolog.WarnLevel
	}

	event := l.logger.WithLevel(level).
		Str("event_type", "upload").
		Str("filename", filename).
		Int("chunks", chunks).
		Str("result", result)

	if requestID != "" {
		event = event.Str("request_id", requestID)
	}
	if len(nodes) > 0 {
		event = event.Strs("nodes", nodes)
	}

	event.Msg("Upload placement")
}

// LogDownload logs a lookup. A filename with no record is logged with result "miss"; a record
// with zero chunks is still "ok".
func (l *Logger) LogDownload(requestID, filename string, chunks int, found bool) {
	if l == nil {
		return
	}

	result := ResultOK
	if !found {
		result = ResultMiss
	}

	event := l.logger.Info().
		Str("event_type", "download").
		Str("filename", filename).
		Int("chunks", chunks).
		Str("result", result)

	if requestID != "" {
		event = event.Str("request_id", requestID)
	}

	event.Msg("Download lookup")
}

// LogUnknownCommand logs a request whose command was neither upload nor download.
func (l *Logger) LogUnknownCommand(requestID, command, filename string) {
	if l == nil {
		return
	}

	event := l.logger.Debug().
		Str("event_type", "unknown_command").
		Str("command", command).
		Str("filename", filename)

	if requestID != "" {
		event = event.Str("request_id", requestID)
	}

	event.Msg("Unknown command")
}
