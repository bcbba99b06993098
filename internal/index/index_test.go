package index

import (
	"testing"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestIndexAddDocAndSearchAnd(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "hello world")
	idx.AddDoc(2, "hello there")

	require.Equal(t, []domain.DocID{1, 2}, idx.SearchAnd([]string{"he"}))
	require.Equal(t, []domain.DocID{1}, idx.SearchAnd([]string{"he", "wo"}))
}

func TestIndexSearchAndMissingTermIsEmpty(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "hello world")
	require.Nil(t, idx.SearchAnd([]string{"zz"}))
}

func TestIndexSearchOrUnion(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "apple")
	idx.AddDoc(2, "banana")
	idx.AddDoc(3, "cherry")

	got := idx.SearchOr([]string{"ap", "ba"})
	require.Equal(t, []domain.DocID{1, 2}, got)
}

func TestIndexSearchNot(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "apple")
	idx.AddDoc(2, "banana")
	idx.AddDoc(3, "cherry")

	universe := []domain.DocID{1, 2, 3}
	got := idx.SearchNot(universe, []string{"ap"})
	require.Equal(t, []domain.DocID{2, 3}, got)
}

func TestIndexRemoveDoc(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "hello world")
	idx.RemoveDoc(1, "hello world")
	require.Equal(t, uint64(0), idx.Count("he"))
}

func TestIndexUpdateDocSymmetricDifference(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "hello world")
	idx.UpdateDoc(1, "hello world", "hello earth")

	// "he" is shared by old and new text; its posting list must never be
	// touched by the update even though the count stays correct.
	pl, ok := idx.Posting("he")
	require.True(t, ok)
	require.True(t, pl.Contains(1))
	require.Equal(t, uint64(0), idx.Count("wo"))
	require.Greater(t, idx.Count("ea"), uint64(0))
}

func TestIndexAddBatchMatchesSequentialAdds(t *testing.T) {
	seq := New(2, 1)
	seq.AddDoc(1, "hello world")
	seq.AddDoc(2, "hello there")

	batch := New(2, 1)
	batch.AddBatch([]BatchItem{
		{DocID: 1, Text: "hello world"},
		{DocID: 2, Text: "hello there"},
	})

	require.Equal(t, seq.SearchAnd([]string{"he"}), batch.SearchAnd([]string{"he"}))
	require.Equal(t, seq.Count("wo"), batch.Count("wo"))
}

func TestIndexSearchAndTopReverse(t *testing.T) {
	idx := New(2, 1)
	for i := domain.DocID(1); i <= 10; i++ {
		idx.AddDoc(i, "hello")
	}
	got := idx.SearchAndTop([]string{"he"}, 3, true)
	require.Equal(t, []domain.DocID{10, 9, 8}, got)
}

func TestIndexOptimizeTracksFlag(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "hello")
	require.False(t, idx.IsOptimizing())
	idx.Optimize(100)
	require.False(t, idx.IsOptimizing())
}

func TestIndexClear(t *testing.T) {
	idx := New(2, 1)
	idx.AddDoc(1, "hello")
	idx.Clear()
	require.Equal(t, 0, idx.Statistics().TokenCount)
}
