package libscan

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/repscan/repscan"
)

func TestFileHashResolve(t *testing.T) {
	n := testFile(t, "hello")
	want := sha256.Sum256([]byte("hello"))
	h := &fileHash{}

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		eg.Go(func() error {
			d, err := h.resolve(n, 1<<20)
			if err != nil {
				return err
			}
			got, err := repscan.NewDigest(want[:])
			if err != nil {
				return err
			}
			if d.String() != got.String() {
				t.Errorf("got: %v, want: %v", d, got)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Error(err)
	}
}

func TestFileHashTooLarge(t *testing.T) {
	n := testFile(t, "definitely more than eight bytes")
	h := &fileHash{}
	for i := 0; i < 2; i++ {
		if _, err := h.resolve(n, 8); !errors.Is(err, repscan.ErrFileTooLarge) {
			t.Errorf("got: %v, want: %v", err, repscan.ErrFileTooLarge)
		}
	}
	if !h.digest().IsZero() {
		t.Error("digest populated for oversize file")
	}
}

// TestFileHashRetry checks that an open error is not memoized: once the
// file appears, resolution succeeds.
func TestFileHashRetry(t *testing.T) {
	n := filepath.Join(t.TempDir(), "late.bin")
	h := &fileHash{}
	if _, err := h.resolve(n, 1<<20); err == nil {
		t.Fatal("expected error for missing file")
	}
	if err := os.WriteFile(n, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := h.resolve(n, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if d.IsZero() {
		t.Error("got zero digest after retry")
	}
}
