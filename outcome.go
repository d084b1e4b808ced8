package repscan

import "fmt"

// Outcome is the normalized result class of a reputation lookup. Every
// service adapter folds its responses into one of these four classes; the
// engine picks cache expiry windows and display strings from the class
// alone.
type Outcome int

const (
	// OutcomeSuccess is a definitive verdict from the service.
	OutcomeSuccess Outcome = iota
	// OutcomeRateLimited means the service refused the request due to
	// quota and should be retried after a short backoff.
	OutcomeRateLimited
	// OutcomeUnauthorized means the credential was rejected. Never cached,
	// so a misconfigured token is visibly broken rather than silently
	// "clean".
	OutcomeUnauthorized
	// OutcomeError covers every other response.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate-limited"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeError:
		return "error"
	}
	return fmt.Sprintf("invalid outcome: %d", int(o))
}

// OutcomeFromStatus classifies an HTTP status code.
//
// The same classification is applied to live responses and to rows read
// back from the cache, so a cached 429 renders the same way a fresh one
// does.
func OutcomeFromStatus(code int) Outcome {
	switch code {
	case 200:
		return OutcomeSuccess
	case 429:
		return OutcomeRateLimited
	case 401, 403:
		return OutcomeUnauthorized
	}
	return OutcomeError
}

// Flag adjusts how an evaluation treats the cache and the network.
type Flag uint32

const (
	// FlagRescan forces a service query even when an unexpired cache entry
	// exists.
	FlagRescan Flag = 1 << iota
	// FlagLocalOnly suppresses all network access; only the cache is
	// consulted.
	FlagLocalOnly
)

// Has reports whether all bits of x are set.
func (f Flag) Has(x Flag) bool { return f&x == x }

// Display strings published through scan slots. Result readers may see any
// of these in addition to service-rendered verdict strings.
const (
	ResultScanning     = "Scanning..."
	ResultUnauthorized = "Unauthorized"
	ResultClean        = "Clean"
	ResultUnknown      = "Unknown"
	ResultRateLimited  = "Rate limited..."
	ResultFileTooLarge = "File too large"
)
