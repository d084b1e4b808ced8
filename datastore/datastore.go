// Package datastore defines the persistence interface for reputation scan
// results.
package datastore

import (
	"context"
	"time"

	"github.com/repscan/repscan"
)

// Entry is one cached lookup result for a (service, digest) pair.
type Entry struct {
	Digest     repscan.Digest
	HTTPStatus int
	Expiry     time.Time
	// Payload holds the service-specific columns. Values are int64 or
	// string; columns absent from the map are stored as NULL.
	Payload map[string]any
}

// Store is the persistent, expiring cache of lookup results.
//
// Writes are upserts keyed by digest. Reads compare expiry against the
// clock at read time: an entry whose expiry has passed is a miss even
// though the row still exists.
type Store interface {
	// Get returns the unexpired entry for the digest, or nil on a miss.
	Get(ctx context.Context, service string, d repscan.Digest) (*Entry, error)
	// Put upserts the entry into the service's table.
	Put(ctx context.Context, service string, e *Entry) error
	// Close releases the underlying handle.
	Close() error
}
