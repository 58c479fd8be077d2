package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListReturnsConformingFiles(t *testing.T) {
	files, err := List()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, filename := range files {
		assert.Regexp(t, `^\d{3}_[a-zA-Z0-9_]+\.(up|down)\.sql$`, filename)
	}
}

func TestParseExtractsSequenceAndDirection(t *testing.T) {
	info, err := Parse("001_create_control_tables.up.sql")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Sequence)
	assert.Equal(t, "create_control_tables", info.Name)
	assert.Equal(t, "up", info.Direction)
	assert.Len(t, info.Checksum, 64)

	_, err = Parse("bogus.sql")
	assert.Error(t, err)
}

func TestValidatePassesOnEmbeddedSet(t *testing.T) {
	assert.NoError(t, Validate())
}
