package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum(t *testing.T) {
	h, err := New("pepper")
	require.NoError(t, err)

	a := h.Sum("203.0.113.7")
	assert.Len(t, a, length)
	assert.Equal(t, a, h.Sum("203.0.113.7"))
	assert.NotEqual(t, a, h.Sum("203.0.113.8"))
	assert.NotContains(t, a, "203")
	assert.Empty(t, h.Sum(""))
}

func TestSum_SaltChangesOutput(t *testing.T) {
	h1, err := New("one")
	require.NoError(t, err)
	h2, err := New("two")
	require.NoError(t, err)

	assert.NotEqual(t, h1.Sum("Mozilla/5.0"), h2.Sum("Mozilla/5.0"))
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	h, err := New(strings.Repeat("x", 200))
	require.NoError(t, err)
	assert.Len(t, h.Sum("value"), length)

	r, err := NewRandom()
	require.NoError(t, err)
	assert.Len(t, r.Sum("value"), length)
}
