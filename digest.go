// Package repscan holds the value types shared across the reputation-scan
// engine: content digests, outcome classes, scan flags, and the sentinel
// display strings published through scan slots.
package repscan

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// Digest is a SHA-256 content digest.
//
// The zero value reports IsZero and renders as the empty string. Digests
// round-trip through text and SQL as lowercase hex.
type Digest struct {
	checksum []byte
}

func (d Digest) Checksum() []byte { return d.checksum }

// IsZero reports whether the digest has been set.
func (d Digest) IsZero() bool { return len(d.checksum) == 0 }

func (d Digest) String() string {
	b, _ := d.MarshalText()
	return string(b)
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	b := make([]byte, hex.EncodedLen(len(d.checksum)))
	hex.Encode(b, d.checksum)
	return b, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(t []byte) error {
	t = bytes.ToLower(t)
	if len(t) != hex.EncodedLen(sha256.Size) {
		return fmt.Errorf("invalid digest format")
	}
	d.checksum = make([]byte, hex.DecodedLen(len(t)))
	if _, err := hex.Decode(d.checksum, t); err != nil {
		return fmt.Errorf("invalid digest format")
	}
	return nil
}

// Scan implements sql.Scanner.
func (d *Digest) Scan(i interface{}) error {
	s, ok := i.(string)
	if !ok {
		return fmt.Errorf("invalid digest type")
	}
	return d.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer.
func (d Digest) Value() (driver.Value, error) {
	b, err := d.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NewDigest constructs a Digest from a raw SHA-256 sum.
func NewDigest(sum []byte) (Digest, error) {
	if len(sum) != sha256.Size {
		return Digest{}, fmt.Errorf("bad checksum length: %d", len(sum))
	}
	return Digest{checksum: sum}, nil
}

// ParseDigest interprets a hex string as a Digest.
func ParseDigest(digest string) (Digest, error) {
	d := Digest{}
	return d, d.UnmarshalText([]byte(digest))
}
