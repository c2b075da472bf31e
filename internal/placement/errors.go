package placement

import "errors"

var (
	// ErrNoNodes is returned when placement is attempted against an empty node set.
	ErrNoNodes = errors.New("no storage nodes available")

	// ErrInvalidChunkCount is returned for a negative chunk count or one above the policy limit.
	ErrInvalidChunkCount = errors.New("invalid chunk count")
)
