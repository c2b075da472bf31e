package coord

import (
	"hash/fnv"
	"sync"
)

const fileLockStripes = 32

// fileLocks serializes work per filename without one mutex per name. Distinct names that hash
// to the same stripe share a lock, which only costs throughput.
type fileLocks struct {
	stripes [fileLockStripes]sync.Mutex
}

func (l *fileLocks) forName(filename string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(filename))
	return &l.stripes[h.Sum32()%fileLockStripes]
}
