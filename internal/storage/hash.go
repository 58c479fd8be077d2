package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DedupHash computes the deterministic dedup key for hash-keyed curated rows:
// the lowercase hex SHA-256 (64 chars) over the "|"-joined parts.
//
// Parts must be deterministic renderings of the fields, so that re-submitting
// an identical upstream record always produces the same key. Parts are joined
// without escaping, so a part that itself contains "|" can collide with a
// different split of the same text.
func DedupHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return hex.EncodeToString(sum[:])
}
