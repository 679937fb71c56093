package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginate_EmptyInput(t *testing.T) {
	chunks := Paginate([]string{}, 10)

	// Even an empty sequence terminates explicitly.
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0].Items)
	require.NotNil(t, chunks[0].Items)
	require.True(t, chunks[0].Done)
}

func TestPaginate_ExactChunks(t *testing.T) {
	chunks := Paginate([]int{1, 2, 3, 4}, 2)

	require.Len(t, chunks, 2)
	require.Equal(t, []int{1, 2}, chunks[0].Items)
	require.Equal(t, 0, chunks[0].Seq)
	require.False(t, chunks[0].Done)
	require.Equal(t, []int{3, 4}, chunks[1].Items)
	require.Equal(t, 1, chunks[1].Seq)
	require.True(t, chunks[1].Done)
}

func TestPaginate_Remainder(t *testing.T) {
	chunks := Paginate([]int{1, 2, 3, 4, 5}, 2)

	require.Len(t, chunks, 3)
	require.Equal(t, []int{5}, chunks[2].Items)
	require.True(t, chunks[2].Done)
}

func TestPaginate_ZeroSizeMeansWhole(t *testing.T) {
	chunks := Paginate([]int{1, 2, 3}, 0)

	require.Len(t, chunks, 1)
	require.Equal(t, []int{1, 2, 3}, chunks[0].Items)
	require.True(t, chunks[0].Done)
}
