// Package driver holds the contract between the scan engine and the
// reputation services it queries.
package driver

import "context"

// Report is the normalized result of one service lookup.
//
// HTTPStatus carries the classification (see repscan.OutcomeFromStatus);
// Payload carries the service-specific columns persisted alongside it.
// Adapters fold anything that is not one of the four classified outcomes
// into the status before returning; transport and decode failures are
// returned as errors instead.
type Report struct {
	HTTPStatus int
	Payload    map[string]any
}

// Int returns the integer payload value for key, tolerating the types a
// SQL read produces. Missing or NULL values are zero.
func (r *Report) Int(key string) int64 {
	switch v := r.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Str returns the string payload value for key. Missing or NULL values are
// empty.
func (r *Report) Str(key string) string {
	if v, ok := r.Payload[key].(string); ok {
		return v
	}
	return ""
}

// Adapter is one external reputation service.
//
// Adapters perform their own network I/O and response decoding but never
// touch the cache or the dispatch queue; the engine applies the expiry
// policy and the cache store uniformly across all adapters.
type Adapter interface {
	// Name is the service identifier, also used as the cache table name.
	Name() string
	// Columns lists the service-specific payload columns, in the order
	// they appear in the cache schema.
	Columns() []string
	// Lookup queries the service for the given hex SHA-256.
	//
	// A response from the service, of any status, yields a Report and a
	// nil error. An error return means no usable response was obtained;
	// the engine falls back to the slot's previous result and does not
	// cache anything.
	Lookup(ctx context.Context, sha256 string) (*Report, error)
	// Render produces the display string for a successful report, live or
	// rehydrated from the cache.
	Render(r *Report) string
}
