package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupHashStable(t *testing.T) {
	first := DedupHash("05001", "301", "2", "550", "2026-01-02T00:00:00-05:00", "Tomate chonto")
	second := DedupHash("05001", "301", "2", "550", "2026-01-02T00:00:00-05:00", "Tomate chonto")

	assert.Equal(t, first, second, "identical business fields produce the same key")
	assert.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestDedupHashSensitiveToEveryPart(t *testing.T) {
	base := DedupHash("a", "b", "c")

	assert.NotEqual(t, base, DedupHash("a", "b", "d"))
	assert.NotEqual(t, base, DedupHash("a", "b", ""))
	assert.Equal(t, base, DedupHash("a", "b|c"), "parts are joined with a literal |, so a part containing | yields the same key")
}
