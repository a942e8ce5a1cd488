package hrw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPick_Empty(t *testing.T) {
	_, ok := Pick("k", nil, "")
	require.False(t, ok)
}

func TestPick_Deterministic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	first, ok := Pick("corr-1", nodes, "seed")
	require.True(t, ok)
	for range 10 {
		again, _ := Pick("corr-1", nodes, "seed")
		require.Equal(t, first, again)
	}
}

func TestPick_Spreads(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	seen := map[string]int{}
	for i := range 300 {
		n, _ := Pick(fmt.Sprintf("key-%d", i), nodes, "")
		seen[n]++
	}
	require.Len(t, seen, 3)
	for _, c := range seen {
		require.Greater(t, c, 50)
	}
}
