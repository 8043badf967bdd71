package idgen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestGeneratorProducesShortURLSafeIDs(t *testing.T) {
	gen, err := New("")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id, err := gen.New()
		require.NoError(t, err)
		require.Regexp(t, urlSafe, id)
		require.GreaterOrEqual(t, len(id), minLength)
		require.LessOrEqual(t, len(id), 12)

		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestSaltShufflesAlphabetDeterministically(t *testing.T) {
	a := shuffleAlphabet("gallery")
	b := shuffleAlphabet("gallery")
	c := shuffleAlphabet("other")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.ElementsMatch(t, []rune(DefaultAlphabet), []rune(a))

	gen, err := New("gallery")
	require.NoError(t, err)

	id, err := gen.New()
	require.NoError(t, err)
	require.Regexp(t, urlSafe, id)
}
