// Package hybridanalysis implements the Hybrid Analysis overview adapter.
package hybridanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quay/zlog"
	"golang.org/x/time/rate"

	"github.com/repscan/repscan"
	"github.com/repscan/repscan/internal/httputil"
	"github.com/repscan/repscan/libscan/driver"
)

// Name is the service identifier and cache table name.
const Name = "hybrid_analysis"

// DefaultRoot is the v2 API root.
const DefaultRoot = "https://www.hybrid-analysis.com/api/v2/"

// The service rejects requests without a browser-ish or sandbox
// User-Agent.
const userAgent = `Falcon Sandbox`

var _ driver.Adapter = (*Adapter)(nil)

// Options configure an Adapter.
type Options struct {
	// APIKey is the account token sent as the api-key header. Required.
	APIKey string
	// Client is the HTTP client to use. Defaults to http.DefaultClient.
	Client *http.Client
	// Root overrides the API root. Mostly useful in tests.
	Root string
	// Limiter paces outgoing requests. Optional.
	Limiter *rate.Limiter
}

// Adapter queries Hybrid Analysis for sample overviews by SHA-256.
type Adapter struct {
	c     *http.Client
	root  *url.URL
	key   string
	limit *rate.Limiter
}

// New constructs an Adapter.
func New(opts *Options) (*Adapter, error) {
	a := Adapter{
		c:     opts.Client,
		key:   opts.APIKey,
		limit: opts.Limiter,
	}
	if a.c == nil {
		a.c = http.DefaultClient
	}
	r := opts.Root
	if r == "" {
		r = DefaultRoot
	}
	root, err := url.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("hybridanalysis: bad root URL: %w", err)
	}
	a.root = root
	return &a, nil
}

// Name implements driver.Adapter.
func (*Adapter) Name() string { return Name }

// Columns implements driver.Adapter.
func (*Adapter) Columns() []string {
	return []string{"multiscan_result", "vx_family", "threat_score", "verdict"}
}

type overview struct {
	MultiscanResult int64  `json:"multiscan_result"`
	VxFamily        string `json:"vx_family"`
	ThreatScore     int64  `json:"threat_score"`
	Verdict         string `json:"verdict"`
}

// Lookup implements driver.Adapter.
func (a *Adapter) Lookup(ctx context.Context, sha256 string) (*driver.Report, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "hybridanalysis/Adapter.Lookup")
	if a.limit != nil {
		if err := a.limit.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u, err := a.root.Parse("overview/" + sha256)
	if err != nil {
		return nil, fmt.Errorf("hybridanalysis: bad lookup URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("api-key", a.key)
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("accept", "application/json")
	res, err := a.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hybridanalysis: request failed: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		var o overview
		if err := json.NewDecoder(res.Body).Decode(&o); err != nil {
			return nil, fmt.Errorf("hybridanalysis: decoding overview: %w", err)
		}
		return &driver.Report{
			HTTPStatus: res.StatusCode,
			Payload: map[string]any{
				"multiscan_result": o.MultiscanResult,
				"vx_family":        o.VxFamily,
				"threat_score":     o.ThreatScore,
				"verdict":          o.Verdict,
			},
		}, nil
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
	default:
		zlog.Debug(ctx).
			Int("status", res.StatusCode).
			Str("body", httputil.Snippet(res.Body)).
			Msg("unexpected response")
	}
	return &driver.Report{HTTPStatus: res.StatusCode}, nil
}

// Render implements driver.Adapter. An overview with no family name reads
// as clean; otherwise the multiscan detection rate and family are shown.
func (a *Adapter) Render(r *driver.Report) string {
	family := r.Str("vx_family")
	if family == "" {
		return repscan.ResultClean
	}
	return fmt.Sprintf("%d%% %s", r.Int("multiscan_result"), family)
}
