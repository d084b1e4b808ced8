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

// Process runs one scan item to completion: resolve the shared hash,
// consult the cache, call the service on a miss, publish, and persist.
// The pipeline is identical for every adapter.
func (l *Libscan) process(ctx context.Context, item *scanItem) {
	defer close(item.done)
	ad := l.adapters[item.service]
	ctx = zlog.ContextWithValues(ctx,
		"component", "libscan/Libscan.process",
		"scan_ref", item.ref.String(),
		"service", ad.Name())

	if item.abort.Load() {
		zlog.Debug(ctx).Msg("superseded before processing")
		return
	}

	digest, err := item.hash.resolve(item.fileName, l.maxFileSize)
	switch {
	case errors.Is(err, repscan.ErrFileTooLarge):
		item.setResult(repscan.ResultFileTooLarge)
	case err != nil:
		// The hash state stays pending; expire the slot now so the next
		// evaluation retries.
		zlog.Debug(ctx).Err(err).Msg("unable to hash file")
		item.setExpiry(time.Now())
	default:
		l.consult(ctx, item, ad, digest)
	}

	// Anything that bailed out without a verdict falls back to the
	// superseded item's last result, or to empty for a first scan.
	if item.currentResult() == repscan.ResultScanning {
		item.setResult(item.prev)
	}

	if item.callback != nil {
		item.callback(ad.Name(), item.fileName, item.hash.digest(), item.currentResult())
	}
}

func (l *Libscan) consult(ctx context.Context, item *scanItem, ad driver.Adapter, d repscan.Digest) {
	now := time.Now()
	if !item.flags.Has(repscan.FlagRescan) && l.store != nil {
		e, err := l.store.Get(ctx, ad.Name(), d)
		switch {
		case err != nil:
			zlog.Warn(ctx).Err(err).Msg("cache read failed, treating as miss")
		case e != nil:
			l.publish(item, ad, &driver.Report{HTTPStatus: e.HTTPStatus, Payload: e.Payload}, e.Expiry, now)
			return
		}
	}

	if item.flags.Has(repscan.FlagLocalOnly) {
		// A miss under FlagLocalOnly leaves the slot immediately stale;
		// an evaluation allowed to touch the network can fill it in.
		item.setExpiry(now)
		return
	}

	report, err := ad.Lookup(ctx, d.String())
	if err != nil {
		// No usable response is classified like any other error: keep
		// the fallback result with the short backoff window.
		zlog.Debug(ctx).Err(err).Msg("lookup failed")
		item.setExpiry(makeExpiry(now, noResponseExpiryMin, noResponseExpiryMax))
		return
	}
	outcome := repscan.OutcomeFromStatus(report.HTTPStatus)
	expiry, cacheable := outcomeExpiry(now, outcome)
	l.publish(item, ad, report, expiry, now)

	switch {
	case !cacheable:
		return
	case l.store == nil:
		return
	case item.abort.Load():
		// A newer item owns this slot; its cache row must not be
		// clobbered with ours.
		zlog.Debug(ctx).Msg("superseded, skipping cache update")
		return
	}
	payload := report.Payload
	if outcome != repscan.OutcomeSuccess {
		payload = nil
	}
	err = l.store.Put(ctx, ad.Name(), &datastore.Entry{
		Digest:     d,
		HTTPStatus: report.HTTPStatus,
		Expiry:     expiry,
		Payload:    payload,
	})
	if err != nil {
		zlog.Warn(ctx).Err(err).Msg("cache write dropped")
	}
}

// Publish applies the outcome classification to the item. The same path
// handles live responses and cache rows; for a cache hit the row's stored
// expiry is carried onto the item.
func (l *Libscan) publish(item *scanItem, ad driver.Adapter, r *driver.Report, expiry, now time.Time) {
	switch repscan.OutcomeFromStatus(r.HTTPStatus) {
	case repscan.OutcomeSuccess:
		item.setExpiry(expiry)
		item.setResult(ad.Render(r))
	case repscan.OutcomeRateLimited:
		item.setExpiry(expiry)
		item.setResult(repscan.ResultRateLimited)
	case repscan.OutcomeUnauthorized:
		// Never cached and retried on the next evaluation, so a broken
		// credential stays visible instead of silently reading "clean".
		item.setExpiry(now)
		item.setResult(repscan.ResultUnauthorized)
	default:
		item.setExpiry(expiry)
		item.setResult(repscan.ResultUnknown)
	}
}
