// Package httputil has helpers for dealing with external HTTP services.
package httputil

import (
	"io"
)

// Snippet reads the start of a server response body for inclusion in an
// error or log message. Capped at 256 bytes in order to not flood the log.
func Snippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 256))
	if err != nil {
		return ""
	}
	return string(b)
}
