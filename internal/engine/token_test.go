package engine

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}

	tokens := make([]string, 100)
	for i := range tokens {
		tokens[i] = gen.Generate()
	}

	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		assert.False(t, seen[tok], "token %s repeated", tok)
		seen[tok] = true

		id, err := uuid.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
	}

	assert.True(t, sort.StringsAreSorted(tokens),
		"v7 tokens sort by creation time")
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("pass-1", "pass-2")
	assert.Equal(t, "pass-1", gen.Generate())
	assert.Equal(t, "pass-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() },
		"exhaustion means the test ran more passes than scripted")
}

func TestFixedGenerator_Empty(t *testing.T) {
	assert.Panics(t, func() { NewFixedGenerator().Generate() })
}
