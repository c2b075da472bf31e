package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrProtocol marks a request that could not be decoded in the expected order.
var ErrProtocol = errors.New("protocol error")

// DefaultMaxChunks caps the chunk count of one upload request when no other limit is given.
// At 64MB per chunk it allows files of 64TB.
const DefaultMaxChunks = 1 << 20

// A request is a stream of JSON values: the command string, the filename string and, for
// uploads only, a non-negative chunk count. The response is a single JSON array of
// ChunkPlacement objects.

// ReadRequest decodes one request from r. Any failure is wrapped with ErrProtocol, including a
// chunk count above maxChunks. maxChunks <= 0 uses DefaultMaxChunks.
func ReadRequest(r io.Reader, maxChunks int) (*Request, error) {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	dec := json.NewDecoder(r)

	command, err := decodeString(dec, "command")
	if err != nil {
		return nil, err
	}
	filename, err := decodeString(dec, "filename")
	if err != nil {
		return nil, err
	}

	req := &Request{Command: command, Filename: filename}
	if !req.IsUpload() {
		return req, nil
	}

	var count *int
	if err := dec.Decode(&count); err != nil {
		return nil, fmt.Errorf("%w: decode chunk count: %w", ErrProtocol, err)
	}
	if count == nil {
		return nil, fmt.Errorf("%w: chunk count is null", ErrProtocol)
	}
	if *count < 0 {
		return nil, fmt.Errorf("%w: negative chunk count %d", ErrProtocol, *count)
	}
	if *count > maxChunks {
		return nil, fmt.Errorf("%w: chunk count %d exceeds limit %d", ErrProtocol, *count, maxChunks)
	}
	req.NumberOfChunks = *count

	return req, nil
}

func decodeString(dec *json.Decoder, field string) (string, error) {
	var s *string
	if err := dec.Decode(&s); err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", ErrProtocol, field, err)
	}
	if s == nil {
		return "", fmt.Errorf("%w: %s is null", ErrProtocol, field)
	}
	return *s, nil
}

// WriteRequest encodes req to w. The chunk count is only written for uploads.
func WriteRequest(w io.Writer, req Request) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(req.Command); err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := enc.Encode(req.Filename); err != nil {
		return fmt.Errorf("encode filename: %w", err)
	}
	if req.IsUpload() {
		if err := enc.Encode(req.NumberOfChunks); err != nil {
			return fmt.Errorf("encode chunk count: %w", err)
		}
	}
	return nil
}

// WriteResponse encodes the placement list to w. A nil list is written as [].
func WriteResponse(w io.Writer, placements []ChunkPlacement) error {
	if placements == nil {
		placements = []ChunkPlacement{}
	}
	if err := json.NewEncoder(w).Encode(placements); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}

// ReadResponse decodes a placement list from r.
func ReadResponse(r io.Reader) ([]ChunkPlacement, error) {
	var placements []ChunkPlacement
	if err := json.NewDecoder(r).Decode(&placements); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if placements == nil {
		placements = []ChunkPlacement{}
	}
	return placements, nil
}
