package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	"github.com/repscan/repscan"
	"github.com/repscan/repscan/datastore"
)

var testTables = map[string][]string{
	"virus_total":     {"malicious", "undetected"},
	"hybrid_analysis": {"multiscan_result", "vx_family", "threat_score", "verdict"},
}

// Entry holds opaque types; compare them by their canonical forms.
var entryCmp = cmp.Options{
	cmp.Comparer(func(a, b time.Time) bool {
		return a.UnixNano() == b.UnixNano()
	}),
	cmp.Comparer(func(a, b repscan.Digest) bool {
		return a.String() == b.String()
	}),
}

func testDigest(t *testing.T) repscan.Digest {
	t.Helper()
	d, err := repscan.ParseDigest(`275a021bbfb6489e54d471899f7db9d1663fc695ec2fe2a2c4538aabf651fd0f`)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRoundTrip(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "scan.db"), testTables)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	in := &datastore.Entry{
		Digest:     testDigest(t),
		HTTPStatus: 200,
		Expiry:     time.Now().Add(12 * 24 * time.Hour),
		Payload: map[string]any{
			"malicious":  int64(62),
			"undetected": int64(8),
		},
	}
	if err := s.Put(ctx, "virus_total", in); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "virus_total", in.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(got, in, entryCmp) {
		t.Error(cmp.Diff(got, in, entryCmp))
	}
	// The other service's table is unaffected.
	miss, err := s.Get(ctx, "hybrid_analysis", in.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if miss != nil {
		t.Errorf("unexpected entry: %+v", miss)
	}
}

func TestUpsert(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "scan.db"), testTables)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	d := testDigest(t)
	for i, malicious := range []int64{0, 5} {
		e := &datastore.Entry{
			Digest:     d,
			HTTPStatus: 200,
			Expiry:     time.Now().Add(time.Duration(i+1) * time.Hour),
			Payload:    map[string]any{"malicious": malicious, "undetected": int64(70)},
		}
		if err := s.Put(ctx, "virus_total", e); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Get(ctx, "virus_total", d)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Payload["malicious"] != int64(5) {
		t.Errorf("got: %+v, want the rewritten row", got)
	}
	var ct int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM virus_total`).Scan(&ct); err != nil {
		t.Fatal(err)
	}
	if ct != 1 {
		t.Errorf("got %d rows, want 1", ct)
	}
}

// TestExpiredMiss checks that a stale row reads as a miss while staying on
// disk.
func TestExpiredMiss(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "scan.db"), testTables)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	d := testDigest(t)
	e := &datastore.Entry{
		Digest:     d,
		HTTPStatus: 200,
		Expiry:     time.Now().Add(-time.Minute),
		Payload:    map[string]any{"malicious": int64(0), "undetected": int64(70)},
	}
	if err := s.Put(ctx, "virus_total", e); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "virus_total", d)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got: %+v, want miss", got)
	}
	var ct int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM virus_total`).Scan(&ct); err != nil {
		t.Fatal(err)
	}
	if ct != 1 {
		t.Errorf("got %d rows, want the stale row kept", ct)
	}
}

func TestNullPayload(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "scan.db"), testTables)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	d := testDigest(t)
	in := &datastore.Entry{
		Digest:     d,
		HTTPStatus: 429,
		Expiry:     time.Now().Add(30 * time.Minute),
	}
	if err := s.Put(ctx, "hybrid_analysis", in); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "hybrid_analysis", d)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("got miss, want entry")
	}
	if got.HTTPStatus != 429 {
		t.Errorf("got status %d, want 429", got.HTTPStatus)
	}
	if len(got.Payload) != 0 {
		t.Errorf("got payload %v, want empty", got.Payload)
	}
}

// TestReopen opens the same file twice; the second open must find the
// schema already current and leave the data intact.
func TestReopen(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	file := filepath.Join(t.TempDir(), "scan.db")
	d := testDigest(t)

	s, err := Open(ctx, file, testTables)
	if err != nil {
		t.Fatal(err)
	}
	in := &datastore.Entry{
		Digest:     d,
		HTTPStatus: 200,
		Expiry:     time.Now().Add(time.Hour),
		Payload:    map[string]any{"malicious": int64(1), "undetected": int64(69)},
	}
	if err := s.Put(ctx, "virus_total", in); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(ctx, file, testTables)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "virus_total", d)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(got, in, entryCmp) {
		t.Error(cmp.Diff(got, in, entryCmp))
	}
	var applied int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM repscan_migrations`).Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if want := 2; applied != want {
		t.Errorf("got %d applied migrations, want %d", applied, want)
	}
}
