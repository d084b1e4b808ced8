package libscan

import (
	"fmt"

	"github.com/repscan/repscan/datastore"
	"github.com/repscan/repscan/libscan/driver"
)

const (
	// DefaultMaxFileSize is the hashing size ceiling. Files above it are
	// published as [repscan.ResultFileTooLarge] without touching the
	// network.
	DefaultMaxFileSize = 32 << 20
	// DefaultWorkers is the per-tier drain concurrency.
	DefaultWorkers = 3
	// DefaultMaxQueueDepth bounds items awaiting a worker across both
	// tiers; past it, Enqueue and Evaluate report [repscan.ErrBusy].
	DefaultMaxQueueDepth = 512
)

// Options are dependencies and options for constructing an instance of
// Libscan.
type Options struct {
	// Adapters are the reputation services to consult. Required, at least
	// one. The order fixes each service's slot index in every
	// ScanContext.
	Adapters []driver.Adapter
	// Store is the persistent result cache. Optional; a nil Store behaves
	// as a permanent miss and drops writes.
	Store datastore.Store
	// MaxFileSize is the hashing size ceiling in bytes.
	MaxFileSize int64
	// Workers is the number of concurrent drains per tier.
	Workers int64
	// MaxQueueDepth bounds the number of undrained items.
	MaxQueueDepth int64
}

func (o *Options) parse() error {
	// required
	if len(o.Adapters) == 0 {
		return fmt.Errorf("field Adapters cannot be empty")
	}
	seen := make(map[string]struct{}, len(o.Adapters))
	for _, a := range o.Adapters {
		if _, ok := seen[a.Name()]; ok {
			return fmt.Errorf("duplicate adapter %q", a.Name())
		}
		seen[a.Name()] = struct{}{}
	}

	// optional
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxQueueDepth <= 0 {
		o.MaxQueueDepth = DefaultMaxQueueDepth
	}
	return nil
}
