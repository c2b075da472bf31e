// Package metadata holds the coordinator's filename to chunk-placement table.
package metadata

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// FileRecord is the stored placement list for one filename.
type FileRecord struct {
	Filename   string                 `json:"filename"`
	Placements []proto.ChunkPlacement `json:"placements"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Copy returns a deep copy of the record.
func (fr *FileRecord) Copy() *FileRecord {
	if fr == nil {
		return nil
	}
	return &FileRecord{
		Filename:   fr.Filename,
		Placements: proto.ClonePlacements(fr.Placements),
		UpdatedAt:  fr.UpdatedAt,
	}
}

// Table maps filenames to their ordered chunk placements. Records are replaced whole, so a
// reader sees either the previous or the new record, never a mix. Volatile: nothing is persisted.
type Table struct {
	files  map[string]*FileRecord
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewTable creates an empty table.
func NewTable(logger zerolog.Logger) *Table {
	return &Table{
		files:  make(map[string]*FileRecord),
		logger: logger.With().Str("component", "metadata").Logger(),
	}
}

// Put replaces the record for filename with placements. The table keeps its own copy.
func (t *Table) Put(filename string, placements []proto.ChunkPlacement) {
	record := &FileRecord{
		Filename:   filename,
		Placements: proto.ClonePlacements(placements),
		UpdatedAt:  time.Now(),
	}

	t.mu.Lock()
	_, replaced := t.files[filename]
	t.files[filename] = record
	t.mu.Unlock()

	t.logger.Debug().
		Str("filename", filename).
		Int("chunks", len(placements)).
		Bool("replaced", replaced).
		Msg("stored file record")
}

// Lookup returns a copy of the placements stored for filename, or an empty slice when the
// filename is unknown.
func (t *Table) Lookup(filename string) []proto.ChunkPlacement {
	placements, _ := t.Find(filename)
	return placements
}

// Find is Lookup that also reports whether filename has a record. A file stored with zero
// chunks is found with an empty slice.
func (t *Table) Find(filename string) ([]proto.ChunkPlacement, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.files[filename]
	if !ok {
		return []proto.ChunkPlacement{}, false
	}
	return proto.ClonePlacements(record.Placements), true
}

// Get returns a copy of the full record for filename, or nil.
func (t *Table) Get(filename string) *FileRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.files[filename].Copy()
}

// Len returns the number of tracked files.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.files)
}

// Stats summarises the table contents.
type Stats struct {
	Files         int            `json:"files"`
	Chunks        int            `json:"chunks"`
	ChunksPerNode map[string]int `json:"chunks_per_node"`
}

// Stats returns counts of files, chunks and chunks per storage node.
func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{
		Files:         len(t.files),
		ChunksPerNode: make(map[string]int),
	}
	for _, record := range t.files {
		stats.Chunks += len(record.Placements)
		for _, p := range record.Placements {
			stats.ChunksPerNode[p.NodeAddress]++
		}
	}
	return stats
}
