package libscan

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/repscan/repscan"
)

type hashState int

const (
	hashPending hashState = iota
	hashOK
	hashTooLarge
)

// FileHash is the lazily computed digest shared by every scan item of one
// ScanContext.
//
// The digest is computed at most once; concurrent resolvers serialize on
// the per-hash lock, never on anything global. A file over the size
// ceiling is a terminal state. Any other I/O error leaves the state
// pending so the next evaluation retries.
type fileHash struct {
	mu    sync.Mutex
	state hashState
	d     repscan.Digest
}

func (h *fileHash) resolve(fileName string, maxSize int64) (repscan.Digest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case hashOK:
		return h.d, nil
	case hashTooLarge:
		return repscan.Digest{}, repscan.ErrFileTooLarge
	}

	f, err := os.Open(fileName)
	if err != nil {
		return repscan.Digest{}, fmt.Errorf("hash: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return repscan.Digest{}, fmt.Errorf("hash: %w", err)
	}
	if fi.Size() > maxSize {
		h.state = hashTooLarge
		return repscan.Digest{}, repscan.ErrFileTooLarge
	}

	sum := sha256.New()
	if _, err := io.Copy(sum, f); err != nil {
		return repscan.Digest{}, fmt.Errorf("hash: %w", err)
	}
	d, err := repscan.NewDigest(sum.Sum(nil))
	if err != nil {
		return repscan.Digest{}, err
	}
	h.d = d
	h.state = hashOK
	return d, nil
}

// Digest returns the computed digest, which may be zero if resolution has
// not succeeded.
func (h *fileHash) digest() repscan.Digest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.d
}
