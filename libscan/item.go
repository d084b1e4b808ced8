package libscan

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/repscan/repscan"
)

// CompleteFunc is invoked after an item has been processed. The digest is
// zero when hashing did not succeed. An item superseded before its worker
// picked it up is skipped entirely, callback included.
type CompleteFunc func(service, fileName string, d repscan.Digest, result string)

// ScanItem is one dispatched unit of work for one (file, service) pair.
//
// The item's result starts as [repscan.ResultScanning] and is rewritten
// under the item lock; readers through the owning slot see either the old
// value or the new one, never a torn write. Superseding a slot sets the
// abort flag; the item still runs to completion, but its cache write is
// suppressed and readers no longer reach it.
type scanItem struct {
	ref      uuid.UUID
	ctx      context.Context // enqueue-time context, carried to the worker
	service  int
	flags    repscan.Flag
	fileName string
	hash     *fileHash
	prev     string
	callback CompleteFunc

	abort  atomic.Bool
	expiry atomic.Int64 // unix nanoseconds

	mu     sync.RWMutex
	result string

	done chan struct{}
}

func newScanItem(ctx context.Context, sc *ScanContext, service int, flags repscan.Flag, prev string, cb CompleteFunc) *scanItem {
	i := &scanItem{
		ref:      uuid.New(),
		ctx:      ctx,
		service:  service,
		flags:    flags,
		fileName: sc.fileName,
		hash:     sc.hash,
		prev:     prev,
		callback: cb,
		result:   repscan.ResultScanning,
		done:     make(chan struct{}),
	}
	i.expiry.Store(math.MaxInt64)
	return i
}

func (i *scanItem) setResult(s string) {
	i.mu.Lock()
	i.result = s
	i.mu.Unlock()
}

func (i *scanItem) currentResult() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.result
}

func (i *scanItem) setExpiry(t time.Time) { i.expiry.Store(t.UnixNano()) }

func (i *scanItem) expired(now time.Time) bool {
	return i.expiry.Load() <= now.UnixNano()
}
