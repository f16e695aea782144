package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_Order(t *testing.T) {
	var ids []string
	for _, p := range All() {
		ids = append(ids, p.ID)
		assert.NotEmpty(t, p.Content)
	}
	assert.Equal(t, []string{"default", "research", "critic", "rag"}, ids)
}

func TestAll_ReturnsCopy(t *testing.T) {
	got := All()
	got[0].Content = "changed"
	assert.NotEqual(t, "changed", Default().Content)
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("critic")
	require.True(t, ok)
	assert.Equal(t, "Critical reviewer", p.Label)

	_, ok = Lookup("pirate")
	assert.False(t, ok)
}
