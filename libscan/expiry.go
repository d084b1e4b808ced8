package libscan

import (
	"math/rand/v2"
	"time"

	"github.com/repscan/repscan"
)

// Cache windows per outcome class. Each entry gets uniform random jitter
// within its window so that re-validation across many files does not
// thunder onto the service at once.
const (
	okExpiryMin = 10 * 24 * time.Hour
	okExpiryMax = 14 * 24 * time.Hour

	rateLimitExpiryMin = 15 * time.Minute
	rateLimitExpiryMax = 60 * time.Minute

	noResponseExpiryMin = 1 * 24 * time.Hour
	noResponseExpiryMax = 2 * 24 * time.Hour
)

func makeExpiry(now time.Time, min, max time.Duration) time.Time {
	return now.Add(min + rand.N(max-min))
}

// OutcomeExpiry computes the jittered expiry for an outcome class. The
// second return is false when the outcome must not be cached; unauthorized
// results are retried on every evaluation so a bad credential stays
// visible.
func outcomeExpiry(now time.Time, o repscan.Outcome) (time.Time, bool) {
	switch o {
	case repscan.OutcomeSuccess:
		return makeExpiry(now, okExpiryMin, okExpiryMax), true
	case repscan.OutcomeRateLimited:
		return makeExpiry(now, rateLimitExpiryMin, rateLimitExpiryMax), true
	case repscan.OutcomeUnauthorized:
		return now, false
	}
	return makeExpiry(now, noResponseExpiryMin, noResponseExpiryMax), true
}
