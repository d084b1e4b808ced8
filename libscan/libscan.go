// Package libscan implements the reputation-scan dispatch and cache
// engine: per-file scan contexts, content-addressed hashing deduplication,
// a two-tier lock-free intake feeding a bounded worker pool, and a
// persistent expiring result cache shared across all configured services.
package libscan

import (
	"context"
	"errors"
	"time"

	"github.com/quay/zlog"

	"github.com/repscan/repscan"
	"github.com/repscan/repscan/datastore"
	"github.com/repscan/repscan/libscan/driver"
)

// Libscan exports methods for evaluating files against reputation
// services without redundant hashing, redundant network calls, or
// blocking the caller.
type Libscan struct {
	adapters    []driver.Adapter
	index       map[string]int
	store       datastore.Store
	maxFileSize int64
	dispatch    *dispatcher
}

// New creates a new instance of the libscan engine.
//
// If opts.Store is non-nil the engine assumes ownership and closes it in
// Close.
func New(ctx context.Context, opts *Options) (*Libscan, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "libscan/New")
	if err := opts.parse(); err != nil {
		return nil, err
	}
	l := &Libscan{
		adapters:    opts.Adapters,
		index:       make(map[string]int, len(opts.Adapters)),
		store:       opts.Store,
		maxFileSize: opts.MaxFileSize,
	}
	for i, a := range opts.Adapters {
		l.index[a.Name()] = i
	}
	l.dispatch = newDispatcher(opts.Workers, opts.MaxQueueDepth, l.process)
	zlog.Info(ctx).
		Int("services", len(l.adapters)).
		Msg("libscan initialized")
	return l, nil
}

// Tables maps each adapter to its payload columns, shaped for
// [github.com/repscan/repscan/datastore/sqlite.Open].
func Tables(adapters ...driver.Adapter) map[string][]string {
	m := make(map[string][]string, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a.Columns()
	}
	return m
}

// Services returns the configured service names, in slot order.
func (l *Libscan) Services() []string {
	names := make([]string, len(l.adapters))
	for i, a := range l.adapters {
		names[i] = a.Name()
	}
	return names
}

// NewContext creates the scan context for a file entering scope.
func (l *Libscan) NewContext(fileName string) *ScanContext {
	return &ScanContext{
		fileName: fileName,
		hash:     &fileHash{},
		slots:    make([]*scanItem, len(l.adapters)),
	}
}

// Evaluate re-checks every service slot whose occupant is missing or
// expired (or every slot, under [repscan.FlagRescan]) on the normal tier.
//
// It returns without waiting for workers; read progress through Result.
func (l *Libscan) Evaluate(ctx context.Context, sc *ScanContext, now time.Time, flags repscan.Flag) error {
	var errs []error
	for i := range l.adapters {
		it := sc.slot(i)
		if it != nil && !it.expired(now) && !flags.Has(repscan.FlagRescan) {
			continue
		}
		if err := l.enqueueSlot(ctx, sc, i, flags, false, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enqueue dispatches one service slot on the priority tier, superseding
// any current occupant regardless of expiry. The callback, if any, runs on
// the worker after the result is published.
func (l *Libscan) Enqueue(ctx context.Context, sc *ScanContext, service string, flags repscan.Flag, cb CompleteFunc) error {
	i, ok := l.index[service]
	if !ok {
		return repscan.ErrUnknownService
	}
	return l.enqueueSlot(ctx, sc, i, flags, true, cb)
}

// Result is a non-blocking read of a slot's latest published value. A
// slot that has never been evaluated reads as the empty string.
func (l *Libscan) Result(sc *ScanContext, service string) (string, error) {
	i, ok := l.index[service]
	if !ok {
		return "", repscan.ErrUnknownService
	}
	it := sc.slot(i)
	if it == nil {
		return "", nil
	}
	return it.currentResult(), nil
}

// EnqueueSlot supersedes the slot's occupant with a fresh item and hands
// it to the dispatcher. On [repscan.ErrBusy] the previous occupant stays
// authoritative and is not aborted.
func (l *Libscan) enqueueSlot(ctx context.Context, sc *ScanContext, idx int, flags repscan.Flag, priority bool, cb CompleteFunc) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	prev := sc.slots[idx]
	var fallback string
	if prev != nil {
		fallback = prev.currentResult()
	}
	item := newScanItem(ctx, sc, idx, flags, fallback, cb)
	if err := l.dispatch.enqueue(item, priority); err != nil {
		return err
	}
	if prev != nil {
		prev.abort.Store(true)
	}
	sc.slots[idx] = item
	return nil
}

// Close stops the dispatcher, waits for in-flight workers, and closes the
// store if one was configured.
func (l *Libscan) Close(ctx context.Context) error {
	l.dispatch.shutdown()
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}
