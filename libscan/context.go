package libscan

import (
	"sync"
)

// ScanContext is the per-file aggregate: one shared lazy hash and one slot
// per configured service.
//
// A slot holds the current authoritative scan item for its service.
// Superseding a slot aborts the previous occupant rather than destroying
// it; a worker may still be finishing it, but readers only ever go through
// the slot.
type ScanContext struct {
	fileName string
	hash     *fileHash

	mu    sync.Mutex
	slots []*scanItem
}

// FileName returns the file this context evaluates.
func (sc *ScanContext) FileName() string { return sc.fileName }

// Close aborts every live item in every slot. Items already dispatched
// run to completion harmlessly.
func (sc *ScanContext) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, it := range sc.slots {
		if it != nil {
			it.abort.Store(true)
		}
	}
}

func (sc *ScanContext) slot(i int) *scanItem {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.slots[i]
}
