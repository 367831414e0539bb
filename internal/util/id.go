package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "dbt_9f2c…". The prefix encodes
// the entity kind so IDs stay self-describing in logs and event payloads.
func NewID(prefix string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
