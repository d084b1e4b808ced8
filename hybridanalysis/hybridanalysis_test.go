package hybridanalysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	"github.com/repscan/repscan"
	"github.com/repscan/repscan/libscan/driver"
)

const testDigest = `275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f`

func TestLookup(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got, want := r.URL.Path, "/overview/"+testDigest; got != want {
			t.Errorf("got path %q, want %q", got, want)
		}
		if got := r.Header.Get("api-key"); got != "test-key" {
			t.Errorf("got api key %q", got)
		}
		if got := r.Header.Get("user-agent"); got != userAgent {
			t.Errorf("got user agent %q", got)
		}
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"multiscan_result":78,"vx_family":"Eicar","threat_score":100,"verdict":"malicious"}`))
	}))
	defer srv.Close()

	a, err := New(&Options{APIKey: "test-key", Client: srv.Client(), Root: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.Lookup(ctx, testDigest)
	if err != nil {
		t.Fatal(err)
	}
	want := &driver.Report{
		HTTPStatus: http.StatusOK,
		Payload: map[string]any{
			"multiscan_result": int64(78),
			"vx_family":        "Eicar",
			"threat_score":     int64(100),
			"verdict":          "malicious",
		},
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
	if got, want := a.Render(got), "78% Eicar"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestRenderClean(t *testing.T) {
	a, err := New(&Options{APIKey: "test-key"})
	if err != nil {
		t.Fatal(err)
	}
	r := &driver.Report{
		HTTPStatus: http.StatusOK,
		Payload: map[string]any{
			"multiscan_result": int64(0),
			"vx_family":        "",
			"threat_score":     int64(0),
			"verdict":          "whitelisted",
		},
	}
	if got := a.Render(r); got != repscan.ResultClean {
		t.Errorf("got: %q, want: %q", got, repscan.ResultClean)
	}
}

func TestLookupStatuses(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	for _, status := range []int{
		http.StatusNotFound,
		http.StatusUnauthorized,
		http.StatusTooManyRequests,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(status), status)
		}))
		a, err := New(&Options{APIKey: "test-key", Client: srv.Client(), Root: srv.URL + "/"})
		if err != nil {
			t.Fatal(err)
		}
		got, err := a.Lookup(ctx, testDigest)
		if err != nil {
			t.Fatal(err)
		}
		if got.HTTPStatus != status {
			t.Errorf("got status %d, want %d", got.HTTPStatus, status)
		}
		srv.Close()
	}
}
