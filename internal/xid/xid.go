// Package xid mints prefixed ids for transactions and cart lines, readable
// enough to type back into the terminal ("tx-...", "line-...").
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const randomBytes = 8

// New returns "<prefix>-<unix-nanos>-<random hex>". The timestamp keeps ids
// roughly sortable; the random suffix separates ids minted in the same
// nanosecond. If the random source fails the timestamp alone is still unique
// enough for a single-terminal session.
func New(prefix string) string {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
