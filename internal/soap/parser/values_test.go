package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLong(t *testing.T) {
	v := ParseLong("42")
	require.NotNil(t, v)
	assert.Equal(t, int64(42), *v)

	v = ParseLong(" 17.9 ")
	require.NotNil(t, v, "decimal input truncates")
	assert.Equal(t, int64(17), *v)

	assert.Nil(t, ParseLong("abc"))
	assert.Nil(t, ParseLong(""))
}

func TestParseDecimal(t *testing.T) {
	v := ParseDecimal("3250.50")
	require.NotNil(t, v)
	assert.Equal(t, "3250.5", v.String())

	assert.Nil(t, ParseDecimal("12,5"))
	assert.Nil(t, ParseDecimal("   "))
}

func TestParseXMLDateTime(t *testing.T) {
	v := ParseXMLDateTime("2026-01-02T08:30:00Z")
	require.NotNil(t, v)
	assert.Equal(t, int64(1767342600000), *v)

	v = ParseXMLDateTime("2026-01-02T08:30:00-05:00")
	require.NotNil(t, v)
	assert.Equal(t, int64(1767360600000), *v)

	v = ParseXMLDateTime("1735819200000")
	require.NotNil(t, v, "epoch millis fallback")
	assert.Equal(t, int64(1735819200000), *v)

	assert.Nil(t, ParseXMLDateTime("not-a-date"))
	assert.Nil(t, ParseXMLDateTime(""))
}
