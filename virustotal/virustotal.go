// Package virustotal implements the VirusTotal file-report adapter.
package virustotal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quay/zlog"
	"golang.org/x/time/rate"

	"github.com/repscan/repscan/internal/httputil"
	"github.com/repscan/repscan/libscan/driver"
)

// Name is the service identifier and cache table name.
const Name = "virus_total"

// DefaultRoot is the v3 API root.
const DefaultRoot = "https://www.virustotal.com/api/v3/"

var _ driver.Adapter = (*Adapter)(nil)

// Options configure an Adapter.
type Options struct {
	// APIKey is the account token sent as the x-apikey header. Required;
	// requests without one come back 401 and surface as Unauthorized.
	APIKey string
	// Client is the HTTP client to use. Defaults to
	// http.DefaultClient.
	Client *http.Client
	// Root overrides the API root. Mostly useful in tests.
	Root string
	// Limiter paces outgoing requests. Optional; the public API tier
	// allows 4 requests a minute.
	Limiter *rate.Limiter
}

// Adapter queries VirusTotal for file reports by SHA-256.
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
		return nil, fmt.Errorf("virustotal: bad root URL: %w", err)
	}
	a.root = root
	return &a, nil
}

// Name implements driver.Adapter.
func (*Adapter) Name() string { return Name }

// Columns implements driver.Adapter.
func (*Adapter) Columns() []string { return []string{"malicious", "undetected"} }

type fileReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int64 `json:"malicious"`
				Undetected int64 `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Lookup implements driver.Adapter.
func (a *Adapter) Lookup(ctx context.Context, sha256 string) (*driver.Report, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "virustotal/Adapter.Lookup")
	if a.limit != nil {
		if err := a.limit.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u, err := a.root.Parse("files/" + sha256)
	if err != nil {
		return nil, fmt.Errorf("virustotal: bad lookup URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", a.key)
	res, err := a.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("virustotal: request failed: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		var fr fileReport
		if err := json.NewDecoder(res.Body).Decode(&fr); err != nil {
			return nil, fmt.Errorf("virustotal: decoding report: %w", err)
		}
		stats := fr.Data.Attributes.LastAnalysisStats
		return &driver.Report{
			HTTPStatus: res.StatusCode,
			Payload: map[string]any{
				"malicious":  stats.Malicious,
				"undetected": stats.Undetected,
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

// Render implements driver.Adapter, formatting a report as
// "malicious/undetected" counts.
func (a *Adapter) Render(r *driver.Report) string {
	return fmt.Sprintf("%d/%d", r.Int("malicious"), r.Int("undetected"))
}
