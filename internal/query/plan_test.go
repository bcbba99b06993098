package query

import (
	"testing"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/docstore"
	"github.com/libraz/mygramdb-go/internal/index"
	"github.com/stretchr/testify/require"
)

func buildFixture(t *testing.T) (*index.Index, *docstore.Store) {
	t.Helper()
	idx := index.New(2, 1)
	store := docstore.New()

	docs := []string{"hello world", "hello there", "goodbye world"}
	for _, text := range docs {
		id, err := store.AddDocument([]byte(text), map[string]domain.FilterValue{
			"status": domain.NewFilterInt8(1),
		})
		require.NoError(t, err)
		idx.AddDoc(id, text)
	}
	return idx, store
}

func TestExecuteSingleTerm(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("hello")
	require.NoError(t, err)

	got, _, err := Execute(idx, store, Plan{AST: ast, NgramSize: 2, KanjiSize: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestExecuteAndOfTwoTerms(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("hello world")
	require.NoError(t, err)

	got, _, err := Execute(idx, store, Plan{AST: ast, NgramSize: 2, KanjiSize: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExecuteOrOfTwoTerms(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("hello OR goodbye")
	require.NoError(t, err)

	got, _, err := Execute(idx, store, Plan{AST: ast, NgramSize: 2, KanjiSize: 1})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestExecuteNotExcludesTerm(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("world NOT goodbye")
	require.NoError(t, err)

	got, _, err := Execute(idx, store, Plan{AST: ast, NgramSize: 2, KanjiSize: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExecuteFilterNarrows(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("hello")
	require.NoError(t, err)

	got, _, err := Execute(idx, store, Plan{
		AST:       ast,
		NgramSize: 2, KanjiSize: 1,
		Filters: []domain.FilterPredicate{{Column: "status", Op: domain.OpEq, Value: domain.NewFilterInt8(9)}},
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestExecutePaginateLimitAndOffset(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("hello OR goodbye")
	require.NoError(t, err)

	got, _, err := Execute(idx, store, Plan{
		AST: ast, NgramSize: 2, KanjiSize: 1,
		Sort:   domain.SortSpec{Column: "doc_id", Direction: domain.SortDescending},
		Limit:  1,
		Offset: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExecuteDebugEmitsStages(t *testing.T) {
	idx, store := buildFixture(t)
	ast, err := Parse("hello")
	require.NoError(t, err)

	_, stages, err := Execute(idx, store, Plan{AST: ast, NgramSize: 2, KanjiSize: 1, Debug: true})
	require.NoError(t, err)
	require.NotEmpty(t, stages)
}

func TestSearchAndTopTermsFastPathEligibility(t *testing.T) {
	ast, err := Parse("hello")
	require.NoError(t, err)
	_, ok := SearchAndTopTerms(Plan{
		AST: ast, NgramSize: 2, KanjiSize: 1,
		Sort: domain.SortSpec{Column: "doc_id", Direction: domain.SortDescending}, Limit: 5,
	})
	require.True(t, ok)

	ast2, err := Parse("hello world")
	require.NoError(t, err)
	_, ok = SearchAndTopTerms(Plan{AST: ast2, NgramSize: 2, KanjiSize: 1, Limit: 5})
	require.False(t, ok, "multi-term AST does not qualify")
}
